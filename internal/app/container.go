package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-rbac/internal/audit"
	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/bootstrap"
	"github.com/odyssey-erp/odyssey-rbac/internal/console"
	"github.com/odyssey-erp/odyssey-rbac/internal/observability"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/roles"
	"github.com/odyssey-erp/odyssey-rbac/internal/users"
	"github.com/odyssey-erp/odyssey-rbac/jobs"
)

// Container holds the wired services shared by the binaries.
type Container struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics

	Credentials *auth.Service
	Registry    *rbac.Registry
	Engine      *rbac.Engine
	Trail       *audit.Trail
	Console     *console.Service
	Sequencer   *bootstrap.Sequencer
	VerifyJob   *jobs.AuditVerifyJob
}

// Build connects to the stores and wires every service.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*Container, error) {
	policy, err := bootstrap.LoadPolicyFile(cfg.BootstrapPolicyFile)
	if err != nil {
		return nil, err
	}
	chain, err := audit.NewChain([]byte(cfg.AuditChainKey))
	if err != nil {
		return nil, err
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c := &Container{Config: cfg, Logger: logger, Pool: pool, Metrics: observability.NewMetrics()}

	var permCache *rbac.PermissionCache
	if cfg.PermissionCacheEnabled {
		c.Redis, err = cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		permCache = rbac.NewPermissionCache(c.Redis, cfg.PermissionCacheTTL)
	}

	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	rbacRepo := rbac.NewRepository(pool)

	var invalidator rbac.Invalidator
	if permCache != nil {
		invalidator = permCache
	}

	c.Credentials = auth.NewService(auth.NewRepository(pool), hasher)
	c.Registry = rbac.NewRegistry(rbacRepo, invalidator)
	c.Engine = rbac.NewEngine(rbac.EngineConfig{
		Source:   rbacRepo,
		Cache:    permCache,
		Observer: c.Metrics.Auth,
		Logger:   logger,
	})
	c.Trail = audit.NewTrail(audit.NewRepository(pool), chain, c.Metrics.Auth)
	c.Console = console.NewService(console.Config{
		Credentials: c.Credentials,
		Registry:    c.Registry,
		Engine:      c.Engine,
		Trail:       c.Trail,
		Users:       users.NewRepository(pool),
		Roles:       roles.NewRepository(pool),
		Tx:          console.NewPGTransactor(pool),
		Hasher:      hasher,
		Chain:       chain,
		Invalidator: invalidator,
		Observer:    c.Metrics.Auth,
		Logger:      logger,
	})
	c.Sequencer = bootstrap.NewSequencer(bootstrap.Config{
		Roles:       c.Registry,
		Credentials: c.Credentials,
		Policy:      policy,
		Admin: bootstrap.AdminAccount{
			Username: cfg.AdminUsername,
			Password: cfg.AdminPassword,
			FullName: cfg.AdminFullName,
		},
		Logger: logger,
	})
	c.VerifyJob = jobs.NewAuditVerifyJob(c.Trail, logger, c.Metrics.Jobs)
	return c, nil
}

// ReadyChecks probes the connected stores.
func (c *Container) ReadyChecks() []ReadyCheck {
	checks := []ReadyCheck{{Name: "postgres", Check: c.Pool.Ping}}
	if c.Redis != nil {
		checks = append(checks, ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return c.Redis.Ping(ctx).Err()
		}})
	}
	return checks
}

// Close releases store connections.
func (c *Container) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("redis close", slog.Any("error", err))
		}
	}
	c.Pool.Close()
}
