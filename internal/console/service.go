// Package console implements the operations offered to an interactive
// operator: login, the permission filtered menu and the gated actions behind
// it. Rendering lives in cmd/odyssey-rbac/cli.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-rbac/internal/audit"
	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/roles"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
	"github.com/odyssey-erp/odyssey-rbac/internal/users"
)

// Login outcomes reported to a LoginObserver.
const (
	LoginSucceeded = "success"
	LoginRejected  = "rejected"
	LoginErrored   = "error"
)

// LoginObserver is notified of each login attempt.
type LoginObserver interface {
	ObserveLogin(outcome string)
}

// Config wires a Service. Invalidator, Observer, Logger and Now are optional.
type Config struct {
	Credentials *auth.Service
	Registry    *rbac.Registry
	Engine      *rbac.Engine
	Trail       *audit.Trail
	Users       users.RepositoryPort
	Roles       roles.RepositoryPort
	Tx          Transactor
	Hasher      auth.Hasher
	Chain       *audit.Chain
	Invalidator rbac.Invalidator
	Catalog     rbac.Catalog
	Observer    LoginObserver
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service coordinates the console use cases.
type Service struct {
	creds       *auth.Service
	registry    *rbac.Registry
	engine      *rbac.Engine
	trail       *audit.Trail
	users       users.RepositoryPort
	roles       roles.RepositoryPort
	tx          Transactor
	hasher      auth.Hasher
	chain       *audit.Chain
	invalidator rbac.Invalidator
	catalog     rbac.Catalog
	observer    LoginObserver
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a Service.
func NewService(cfg Config) *Service {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		creds:       cfg.Credentials,
		registry:    cfg.Registry,
		engine:      cfg.Engine,
		trail:       cfg.Trail,
		users:       cfg.Users,
		roles:       cfg.Roles,
		tx:          cfg.Tx,
		hasher:      cfg.Hasher,
		chain:       cfg.Chain,
		invalidator: cfg.Invalidator,
		catalog:     catalog,
		observer:    cfg.Observer,
		logger:      logger,
		now:         now,
	}
}

// Login verifies credentials and opens a session. Both outcomes are audited;
// if the audit record cannot be written no session is returned.
func (s *Service) Login(ctx context.Context, username, password string) (*shared.Session, error) {
	username = shared.NormalizeName(username)
	user, err := s.creds.Verify(ctx, username, password)
	if errors.Is(err, shared.ErrInvalidCredentials) {
		s.observe(LoginRejected)
		attempted := strings.ToValidUTF8(username, "\uFFFD")
		if _, auditErr := s.trail.Append(ctx, nil, audit.LoginFailure(attempted)); auditErr != nil {
			return nil, auditErr
		}
		s.logger.Warn("login rejected", slog.String("username", attempted))
		return nil, err
	}
	if err != nil {
		s.observe(LoginErrored)
		return nil, err
	}
	if _, err := s.trail.Append(ctx, &user.ID, audit.ActionLoginSuccess); err != nil {
		s.observe(LoginErrored)
		return nil, err
	}
	s.observe(LoginSucceeded)
	sess := shared.NewSession(user.ID, user.Username, user.FullName, s.now())
	s.logger.Info("login", slog.String("username", user.Username), slog.String("session_id", sess.ID))
	return sess, nil
}

// Logout audits the end of sess.
func (s *Service) Logout(ctx context.Context, sess *shared.Session) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if _, err := s.trail.Append(ctx, sess.Actor(), audit.ActionLogout); err != nil {
		return err
	}
	s.logger.Info("logout", slog.String("username", sess.Username), slog.String("session_id", sess.ID))
	return nil
}

// Actions returns the menu entries sess may pick, ending with Logout.
func (s *Service) Actions(ctx context.Context, sess *shared.Session) ([]rbac.Action, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.engine.AvailableActions(ctx, sess.UserID, s.catalog)
}

// Dashboard is the landing view of a session.
type Dashboard struct {
	FullName    string
	Username    string
	Permissions []string
	Now         time.Time
}

// Dashboard returns the dashboard for sess.
func (s *Service) Dashboard(ctx context.Context, sess *shared.Session) (Dashboard, error) {
	if err := s.require(ctx, sess, shared.PermDashboardView); err != nil {
		return Dashboard{}, err
	}
	set, err := s.engine.EffectivePermissions(ctx, sess.UserID)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		FullName:    sess.FullName,
		Username:    sess.Username,
		Permissions: set.Names(),
		Now:         s.now(),
	}, nil
}

// ListUsers returns every account.
func (s *Service) ListUsers(ctx context.Context, sess *shared.Session) ([]users.User, error) {
	if err := s.require(ctx, sess, shared.PermUserRead); err != nil {
		return nil, err
	}
	return s.users.ListUsers(ctx)
}

// ListRoles returns every role with its permission names.
func (s *Service) ListRoles(ctx context.Context, sess *shared.Session) ([]roles.Role, error) {
	if err := s.require(ctx, sess, shared.PermRoleRead); err != nil {
		return nil, err
	}
	return s.roles.ListRoles(ctx)
}

// EditData performs the sensitive data edit and audits it.
func (s *Service) EditData(ctx context.Context, sess *shared.Session) error {
	if err := s.require(ctx, sess, shared.PermDataEdit); err != nil {
		return err
	}
	_, err := s.trail.Append(ctx, sess.Actor(), audit.ActionDataEdit)
	return err
}

// AuditLog returns the newest audit entries.
func (s *Service) AuditLog(ctx context.Context, sess *shared.Session, limit int) ([]audit.Entry, error) {
	if err := s.require(ctx, sess, shared.PermAuditRead); err != nil {
		return nil, err
	}
	return s.trail.Recent(ctx, limit)
}

// NewAccount is the input of CreateUser.
type NewAccount struct {
	Username string
	Password string
	FullName string
	Role     string
}

// CreateUser creates an account holding one existing role. The user row, the
// role assignment and the USER_CREATE audit entry commit together.
func (s *Service) CreateUser(ctx context.Context, sess *shared.Session, in NewAccount) (auth.User, error) {
	if err := s.require(ctx, sess, shared.PermUserCreate); err != nil {
		return auth.User{}, err
	}
	role, err := s.registry.FindRole(ctx, in.Role)
	if errors.Is(err, shared.ErrNotFound) {
		return auth.User{}, fmt.Errorf("%w: role %q does not exist", shared.ErrInvalidInput, shared.NormalizeName(in.Role))
	}
	if err != nil {
		return auth.User{}, err
	}

	deferred := &deferredInvalidator{}
	var created auth.User
	err = s.tx.InTx(ctx, func(ctx context.Context, stores Stores) error {
		creds := auth.NewService(stores.Users, s.hasher)
		registry := rbac.NewRegistry(stores.RBAC, deferred)
		trail := audit.NewTrail(stores.Audit, s.chain, nil)

		user, err := creds.Create(ctx, in.Username, in.Password, in.FullName)
		if err != nil {
			return err
		}
		if err := registry.AssignRoleToUser(ctx, user.ID, role.ID); err != nil {
			return err
		}
		if _, err := trail.Append(ctx, sess.Actor(), audit.UserCreate(user.Username)); err != nil {
			return err
		}
		created = user
		return nil
	})
	if err != nil {
		return auth.User{}, err
	}
	if err := deferred.flush(ctx, s.invalidator); err != nil {
		s.logger.Warn("permission cache invalidation failed", slog.Int64("user_id", created.ID), slog.Any("error", err))
	}
	s.logger.Info("user created",
		slog.String("username", created.Username),
		slog.String("role", role.Name),
		slog.String("by", sess.Username))
	return created, nil
}

func (s *Service) require(ctx context.Context, sess *shared.Session, perm string) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	return s.engine.Require(ctx, sess.UserID, perm)
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveLogin(outcome)
	}
}

func requireSession(sess *shared.Session) error {
	if sess == nil {
		return fmt.Errorf("console: no session: %w", shared.ErrForbidden)
	}
	return nil
}
