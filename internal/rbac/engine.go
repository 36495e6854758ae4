package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// PermissionSource resolves the permission names reachable from a user.
type PermissionSource interface {
	UserPermissionNames(ctx context.Context, userID int64) ([]string, error)
}

// DecisionObserver is notified of every authorization decision.
type DecisionObserver interface {
	ObserveDecision(permission string, granted bool)
}

// EngineConfig collects the engine dependencies. Cache, Observer and Logger
// are optional.
type EngineConfig struct {
	Source   PermissionSource
	Cache    *PermissionCache
	Observer DecisionObserver
	Logger   *slog.Logger
}

// Engine answers authorization questions for a principal.
type Engine struct {
	source   PermissionSource
	cache    *PermissionCache
	observer DecisionObserver
	logger   *slog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		source:   cfg.Source,
		cache:    cfg.Cache,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}
}

// EffectivePermissions returns the union of permissions over every role held
// by userID. A user without roles gets an empty set.
func (e *Engine) EffectivePermissions(ctx context.Context, userID int64) (PermissionSet, error) {
	names, err := e.load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: effective permissions for user %d: %w", userID, err)
	}
	return NewPermissionSet(names...), nil
}

// IsAuthorized reports whether userID holds permission.
func (e *Engine) IsAuthorized(ctx context.Context, userID int64, permission string) (bool, error) {
	set, err := e.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	granted := set.Has(permission)
	e.observe(permission, granted)
	return granted, nil
}

// Require returns shared.ErrForbidden unless userID holds every permission.
func (e *Engine) Require(ctx context.Context, userID int64, permissions ...string) error {
	set, err := e.EffectivePermissions(ctx, userID)
	if err != nil {
		return err
	}
	for _, perm := range permissions {
		granted := set.Has(perm)
		e.observe(perm, granted)
		if !granted {
			return fmt.Errorf("rbac: user %d lacks %s: %w", userID, perm, shared.ErrForbidden)
		}
	}
	return nil
}

// AvailableActions filters catalog down to the entries userID may run, in
// catalog order, and appends EndSession.
func (e *Engine) AvailableActions(ctx context.Context, userID int64, catalog Catalog) ([]Action, error) {
	set, err := e.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	actions := make([]Action, 0, len(catalog)+1)
	for _, action := range catalog {
		if action.Permission == "" || set.Has(action.Permission) {
			actions = append(actions, action)
		}
	}
	return append(actions, EndSession), nil
}

func (e *Engine) load(ctx context.Context, userID int64) ([]string, error) {
	if e.cache == nil {
		return e.source.UserPermissionNames(ctx, userID)
	}
	names, err := e.cache.Fetch(ctx, userID, func(ctx context.Context) ([]string, error) {
		return e.source.UserPermissionNames(ctx, userID)
	})
	if err == nil {
		return names, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	if e.logger != nil {
		e.logger.Warn("permission cache unavailable", slog.String("user_id", strconv.FormatInt(userID, 10)), slog.Any("error", err))
	}
	return e.source.UserPermissionNames(ctx, userID)
}

func (e *Engine) observe(permission string, granted bool) {
	if e.observer != nil {
		e.observer.ObserveDecision(permission, granted)
	}
}
