package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	sessionapp "github.com/session-hub/session-hub/internal/application/session"
	domainUser "github.com/session-hub/session-hub/internal/domain/user"
)

var (
	// ErrInvalidCredentials covers unknown emails, accounts without a
	// password and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyExists      = errors.New("email or username already in use")
	ErrDisabled           = errors.New("user is disabled")
	ErrValidation         = errors.New("validation failed")
)

// ValidationError reports a rejected registration field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Sessions is the part of the session service auth depends on.
type Sessions interface {
	CreateSession(ctx context.Context, userID uuid.UUID) (*sessionapp.Issued, error)
	TouchSession(ctx context.Context, token string) (*sessionapp.TouchResult, error)
	GetPrincipalForToken(ctx context.Context, token string) (*domainUser.Principal, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteUserSessions(ctx context.Context, userID uuid.UUID) (int, error)
}

// Service handles registration, login and session-backed identity.
type Service struct {
	userRepo domainUser.Repository
	sessions Sessions
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates an auth service.
func NewService(userRepo domainUser.Repository, sessions Sessions, logger zerolog.Logger) *Service {
	return &Service{
		userRepo: userRepo,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("service", "auth").Logger(),
	}
}

// RegisterInput defines registration input. Empty optional fields are treated as unset.
type RegisterInput struct {
	Email     string
	Password  string
	Username  string
	FirstName string
	LastName  string
}

// Result is a principal together with the session issued for it.
type Result struct {
	Principal *domainUser.Principal
	Token     string
	ExpiresAt time.Time
}

// MeResult is the identity behind a token. Refreshed is set when the session
// was rotated and Token carries its replacement.
type MeResult struct {
	Principal *domainUser.Principal
	Refreshed bool
	Token     string
	ExpiresAt time.Time
}

// Register creates a user and signs it in.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Result, error) {
	email := domainUser.NormalizeEmail(input.Email)
	if err := domainUser.ValidateEmail(email); err != nil {
		return nil, &ValidationError{Field: "email", Message: err.Error()}
	}
	if err := domainUser.ValidatePassword(input.Password); err != nil {
		return nil, &ValidationError{Field: "password", Message: err.Error()}
	}
	username := optional(input.Username)
	if username != nil {
		if err := domainUser.ValidateUsername(*username); err != nil {
			return nil, &ValidationError{Field: "username", Message: err.Error()}
		}
	}

	hash, err := domainUser.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	firstName := optional(input.FirstName)
	lastName := optional(input.LastName)
	now := s.now()
	u := &domainUser.User{
		UserID:       uuid.New(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		DisplayName:  domainUser.BuildDisplayName(firstName, lastName),
		Role:         domainUser.RoleUser,
		Status:       domainUser.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, domainUser.ErrDuplicate) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("auth: create user: %w", err)
	}

	issued, err := s.sessions.CreateSession(ctx, u.UserID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.UserID.String()).Msg("user registered")
	return &Result{Principal: u.Principal(), Token: issued.Token, ExpiresAt: issued.ExpiresAt}, nil
}

// Login verifies credentials and issues a session.
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	u, err := s.userRepo.GetByEmail(ctx, domainUser.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if u == nil || u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if !domainUser.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive() {
		return nil, ErrDisabled
	}

	issued, err := s.sessions.CreateSession(ctx, u.UserID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.UserID.String()).Msg("user login")
	return &Result{Principal: u.Principal(), Token: issued.Token, ExpiresAt: issued.ExpiresAt}, nil
}

// Authenticate resolves the principal behind token without refreshing the session.
// It returns nil when the token does not identify a live session.
func (s *Service) Authenticate(ctx context.Context, token string) (*domainUser.Principal, error) {
	return s.sessions.GetPrincipalForToken(ctx, token)
}

// Me resolves the principal behind token and applies the rolling refresh.
// It returns nil when the token does not identify a live session.
func (s *Service) Me(ctx context.Context, token string) (*MeResult, error) {
	principal, err := s.sessions.GetPrincipalForToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if principal == nil {
		return nil, nil
	}

	touched, err := s.sessions.TouchSession(ctx, token)
	if err != nil {
		return nil, err
	}
	result := &MeResult{Principal: principal}
	if touched != nil {
		result.Refreshed = touched.Refreshed
		result.Token = touched.Token
		result.ExpiresAt = touched.ExpiresAt
	}
	return result, nil
}

// Logout ends the session for token. An empty token is a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.DeleteSession(ctx, token)
}

// LogoutAll ends every session owned by userID.
func (s *Service) LogoutAll(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := s.sessions.DeleteUserSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("user_id", userID.String()).Int("sessions", n).Msg("user logged out everywhere")
	return n, nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
