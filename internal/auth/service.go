package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Service wraps credential store rules: lookup, creation and verification.
type Service struct {
	repo      Repository
	hasher    Hasher
	validator *validator.Validate

	decoyOnce sync.Once
	decoyHash string
}

// NewService constructs a new Service.
func NewService(repo Repository, hasher Hasher) *Service {
	return &Service{
		repo:      repo,
		hasher:    hasher,
		validator: validator.New(),
	}
}

type createUserForm struct {
	Username string `validate:"required,min=3,max=50"`
	Password string `validate:"required,min=8,max=72"`
	FullName string `validate:"required,max=100"`
}

// FindByUsername returns the user or shared.ErrNotFound.
func (s *Service) FindByUsername(ctx context.Context, username string) (User, error) {
	return s.repo.FindByUsername(ctx, shared.NormalizeName(username))
}

// Create hashes rawPassword and stores a new user. It returns
// shared.ErrDuplicateUsername when the username is taken.
func (s *Service) Create(ctx context.Context, username, rawPassword, fullName string) (User, error) {
	form := createUserForm{
		Username: shared.NormalizeName(username),
		Password: rawPassword,
		FullName: strings.TrimSpace(fullName),
	}
	if err := s.validate(form); err != nil {
		return User{}, err
	}
	hash, err := s.hasher.Hash(form.Password)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.Insert(ctx, NewUser{
		Username:     form.Username,
		PasswordHash: hash,
		FullName:     form.FullName,
	})
	if errors.Is(err, shared.ErrConflict) {
		return User{}, fmt.Errorf("auth: create %q: %w", form.Username, shared.ErrDuplicateUsername)
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Verify checks username/password credentials. Unknown usernames and wrong
// passwords both yield shared.ErrInvalidCredentials, and both pay for one
// hash comparison. A username that is not valid UTF-8 can never be stored,
// so it is treated as unknown without reaching the store.
func (s *Service) Verify(ctx context.Context, username, rawPassword string) (User, error) {
	username = shared.NormalizeName(username)
	if !utf8.ValidString(username) {
		s.hasher.Compare(s.decoy(), rawPassword)
		return User{}, shared.ErrInvalidCredentials
	}
	user, err := s.repo.FindByUsername(ctx, username)
	if errors.Is(err, shared.ErrNotFound) {
		s.hasher.Compare(s.decoy(), rawPassword)
		return User{}, shared.ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("auth: verify: %w", err)
	}
	if !s.hasher.Compare(user.PasswordHash, rawPassword) {
		return User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) decoy() string {
	s.decoyOnce.Do(func() {
		hash, err := s.hasher.Hash("odyssey-rbac:decoy")
		if err == nil {
			s.decoyHash = hash
		}
	})
	return s.decoyHash
}

func (s *Service) validate(form createUserForm) error {
	if !utf8.ValidString(form.Username) || !utf8.ValidString(form.FullName) {
		return fmt.Errorf("%w: username and full name must be valid UTF-8", shared.ErrInvalidInput)
	}
	err := s.validator.Struct(form)
	if err == nil {
		if strings.IndexFunc(form.Username, invalidUsernameRune) >= 0 {
			return fmt.Errorf("%w: username must not contain spaces or control characters", shared.ErrInvalidInput)
		}
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		msgs = append(msgs, describeField(fieldErr))
	}
	return fmt.Errorf("%w: %s", shared.ErrInvalidInput, strings.Join(msgs, "; "))
}

func invalidUsernameRune(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsControl(r)
}

func describeField(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	if field == "fullname" {
		field = "full name"
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return field + " is invalid"
	}
}
