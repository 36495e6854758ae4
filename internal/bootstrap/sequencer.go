package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// State is a step of the bootstrap sequence.
type State int

const (
	StateStart State = iota
	StateEnsureRoles
	StateEnsureAdminUser
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateEnsureRoles:
		return "ensure_roles"
	case StateEnsureAdminUser:
		return "ensure_admin_user"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Credentials is the slice of the credential store used for seeding.
type Credentials interface {
	FindByUsername(ctx context.Context, username string) (auth.User, error)
	Create(ctx context.Context, username, rawPassword, fullName string) (auth.User, error)
}

// Roles is the slice of the registry used for seeding.
type Roles interface {
	EnsureRole(ctx context.Context, name string, permissionNames []string) (rbac.Role, error)
	FindRole(ctx context.Context, name string) (rbac.Role, error)
	AssignRoleToUser(ctx context.Context, userID, roleID int64) error
	UserRoleCount(ctx context.Context, userID int64) (int, error)
}

// AdminAccount describes the reserved administrator.
type AdminAccount struct {
	Username string
	Password string
	FullName string
}

// Config wires a Sequencer.
type Config struct {
	Roles       Roles
	Credentials Credentials
	Policy      Policy
	Admin       AdminAccount
	Logger      *slog.Logger
}

// Result reports what a run did.
type Result struct {
	Roles        []rbac.Role
	Admin        auth.User
	AdminCreated bool
	AdminGranted bool
}

// Sequencer seeds the role catalog and the administrator. Every step is
// idempotent, so an interrupted run is completed by the next one.
type Sequencer struct {
	roles  Roles
	creds  Credentials
	policy Policy
	admin  AdminAccount
	logger *slog.Logger
	state  State
}

// NewSequencer constructs a Sequencer in StateStart.
func NewSequencer(cfg Config) *Sequencer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		roles:  cfg.Roles,
		creds:  cfg.Credentials,
		policy: cfg.Policy,
		admin:  cfg.Admin,
		logger: logger,
		state:  StateStart,
	}
}

// State returns the step the sequencer reached.
func (s *Sequencer) State() State {
	return s.state
}

// Run drives the sequence to StateDone. On error the sequencer stays in the
// failing state.
func (s *Sequencer) Run(ctx context.Context) (Result, error) {
	var result Result
	if err := s.policy.Validate(); err != nil {
		return result, fmt.Errorf("bootstrap: %w", err)
	}
	for s.state != StateDone {
		var err error
		switch s.state {
		case StateStart:
			s.state = StateEnsureRoles
			continue
		case StateEnsureRoles:
			result.Roles, err = s.ensureRoles(ctx)
		case StateEnsureAdminUser:
			err = s.ensureAdmin(ctx, &result)
		}
		if err != nil {
			s.logger.Error("bootstrap step failed", slog.String("state", s.state.String()), slog.Any("error", err))
			return result, fmt.Errorf("bootstrap: %s: %w", s.state, err)
		}
		s.state++
	}
	s.logger.Info("bootstrap complete",
		slog.Int("roles", len(result.Roles)),
		slog.Bool("admin_created", result.AdminCreated),
		slog.Bool("admin_granted", result.AdminGranted))
	return result, nil
}

func (s *Sequencer) ensureRoles(ctx context.Context) ([]rbac.Role, error) {
	out := make([]rbac.Role, 0, len(s.policy.Roles))
	for _, spec := range s.policy.Roles {
		role, err := s.roles.EnsureRole(ctx, spec.Name, spec.Permissions)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

// ensureAdmin creates the administrator when absent and grants the admin
// role. An existing account is only granted the role when it holds no role
// at all, which is what an interrupted run leaves behind; roles an operator
// assigned are never changed.
func (s *Sequencer) ensureAdmin(ctx context.Context, result *Result) error {
	role, err := s.roles.FindRole(ctx, s.policy.AdminRole)
	if err != nil {
		return fmt.Errorf("admin role %q: %w", s.policy.AdminRole, err)
	}

	user, err := s.creds.FindByUsername(ctx, s.admin.Username)
	switch {
	case err == nil:
		held, err := s.roles.UserRoleCount(ctx, user.ID)
		if err != nil {
			return err
		}
		if held > 0 {
			result.Admin = user
			return nil
		}
	case errors.Is(err, shared.ErrNotFound):
		user, err = s.creds.Create(ctx, s.admin.Username, s.admin.Password, s.admin.FullName)
		if errors.Is(err, shared.ErrDuplicateUsername) {
			user, err = s.creds.FindByUsername(ctx, s.admin.Username)
		} else if err == nil {
			result.AdminCreated = true
			s.logger.Info("administrator created", slog.String("username", user.Username))
		}
		if err != nil {
			return err
		}
	default:
		return err
	}
	result.Admin = user

	err = s.roles.AssignRoleToUser(ctx, user.ID, role.ID)
	switch {
	case err == nil:
		result.AdminGranted = true
	case errors.Is(err, shared.ErrAssignmentConflict):
	default:
		return err
	}
	return nil
}
