package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "rbac:permissions:version"
	cacheStaleKey   = "rbac:permissions:stale"
	bumpChannel     = "rbac.permissions.bump"
)

// PermissionCache keeps effective permission sets in Redis under a global
// version. Invalidate bumps the version, orphaning every cached set.
//
// A failed bump leaves cached sets that may predate the write. The failing
// process stops reading from Redis and retries the bump on its next read;
// other processes see the stale marker key and bypass the cache until a bump
// succeeds or the marker expires along with the sets it guards.
type PermissionCache struct {
	client *redis.Client
	ttl    time.Duration
	stale  atomic.Bool
}

// NewPermissionCache instantiates the cache helper.
func NewPermissionCache(client *redis.Client, ttl time.Duration) *PermissionCache {
	return &PermissionCache{client: client, ttl: ttl}
}

// Version returns the current cache version. A missing version is seeded
// from the wall clock so it never falls back below a value used before an
// eviction.
func (c *PermissionCache) Version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == nil {
		return ver, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, err
	}
	if err := c.client.SetNX(ctx, cacheVersionKey, time.Now().UnixNano(), 0).Err(); err != nil {
		return 0, err
	}
	return c.client.Get(ctx, cacheVersionKey).Int64()
}

// Fetch returns the cached names for userID or populates them with loader.
func (c *PermissionCache) Fetch(ctx context.Context, userID int64, loader func(context.Context) ([]string, error)) ([]string, error) {
	if loader == nil {
		return nil, errors.New("rbac: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	if c.stale.Load() && c.Invalidate(ctx) != nil {
		return loader(ctx)
	}
	vals, err := c.client.MGet(ctx, cacheVersionKey, cacheStaleKey).Result()
	if err != nil {
		return nil, err
	}
	if vals[1] != nil {
		return loader(ctx)
	}
	ver, err := c.currentVersion(ctx, vals[0])
	if err != nil {
		return nil, err
	}
	key := userKey(userID, ver)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var names []string
		if err := json.Unmarshal(payload, &names); err != nil {
			return nil, fmt.Errorf("rbac: decode cached permissions: %w", err)
		}
		return names, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, err
	}
	names, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// Invalidate bumps the version and announces it on the bump channel. When
// the bump fails the cache is marked stale for every process.
func (c *PermissionCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.bump(ctx)
	if err != nil {
		c.stale.Store(true)
		_ = c.client.Set(ctx, cacheStaleKey, 1, c.ttl).Err()
		return err
	}
	c.stale.Store(false)
	// The version is already bumped: a marker left behind only costs reads
	// until it expires, and subscribers use the announcement as a hint.
	_ = c.client.Del(ctx, cacheStaleKey).Err()
	_ = c.client.Publish(ctx, bumpChannel, ver).Err()
	return nil
}

func (c *PermissionCache) bump(ctx context.Context) (int64, error) {
	if _, err := c.Version(ctx); err != nil {
		return 0, err
	}
	return c.client.Incr(ctx, cacheVersionKey).Result()
}

// currentVersion parses a version read alongside the stale marker, seeding
// it when absent.
func (c *PermissionCache) currentVersion(ctx context.Context, raw any) (int64, error) {
	str, ok := raw.(string)
	if !ok {
		return c.Version(ctx)
	}
	ver, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rbac: cache version %q: %w", str, err)
	}
	return ver, nil
}

func userKey(userID, version int64) string {
	return fmt.Sprintf("rbac:permissions:user:%d:%d", userID, version)
}
