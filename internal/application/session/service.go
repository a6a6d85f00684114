package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	domain "github.com/session-hub/session-hub/internal/domain/session"
	"github.com/session-hub/session-hub/internal/domain/user"
)

// maxTokenLen bounds presented tokens; anything longer cannot have been issued here.
const maxTokenLen = 512

// Config holds the session lifetime tunables.
type Config struct {
	// TTL is the absolute lifetime of a session from creation or rotation.
	TTL time.Duration
	// RollingRefresh is the quiet period after which a touch rotates the session.
	RollingRefresh time.Duration
}

// DefaultConfig returns a 30 day TTL with a 12 hour rolling refresh.
func DefaultConfig() Config {
	return Config{
		TTL:            30 * 24 * time.Hour,
		RollingRefresh: 12 * time.Hour,
	}
}

// Issued is the result of creating a session. Token is the only copy of the
// raw credential.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// TouchResult describes a valid session after a touch. Token is set only when
// Refreshed is true and replaces the credential the caller presented.
type TouchResult struct {
	Refreshed bool
	Token     string
	ExpiresAt time.Time
}

// Service manages the session lifecycle: issue, touch, rotate, resolve and delete.
type Service struct {
	repo    domain.Repository
	cfg     Config
	now     func() time.Time
	metrics *Metrics
	logger  zerolog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records lifecycle events into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a session service backed by repo.
func NewService(repo domain.Repository, cfg Config, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("service", "session").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession issues a new session for userID.
func (s *Service) CreateSession(ctx context.Context, userID uuid.UUID) (*Issued, error) {
	token, hash, err := domain.NewToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &domain.Session{
		SessionID:   ulid.Make().String(),
		SessionHash: hash,
		UserID:      userID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.TTL),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	s.metrics.incCreated()
	s.logger.Info().
		Str("session_id", sess.SessionID).
		Str("user_id", userID.String()).
		Time("expires_at", sess.ExpiresAt).
		Msg("session created")
	return &Issued{Token: token, ExpiresAt: sess.ExpiresAt}, nil
}

// TouchSession validates token and applies the rolling-refresh policy.
//
// It returns nil for a missing or expired session. A recently seen session
// costs exactly one store read. A stale one is rotated and the new token is
// returned in the result.
func (s *Service) TouchSession(ctx context.Context, token string) (*TouchResult, error) {
	hash, ok := lookupHash(token)
	if !ok {
		s.metrics.incTouched(domain.Invalid.String())
		return nil, nil
	}
	sess, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("session: lookup: %w", err)
	}

	now := s.now()
	verdict := domain.Evaluate(sess, now, s.cfg.RollingRefresh)
	switch verdict {
	case domain.Invalid:
		s.metrics.incTouched(verdict.String())
		return nil, nil
	case domain.Fresh:
		s.metrics.incTouched(verdict.String())
		return &TouchResult{Refreshed: false, ExpiresAt: sess.ExpiresAt}, nil
	}

	newToken, expiresAt, err := s.rotate(ctx, sess, now)
	if err != nil {
		return nil, err
	}
	s.metrics.incTouched("rotated")
	return &TouchResult{Refreshed: true, Token: newToken, ExpiresAt: expiresAt}, nil
}

// GetPrincipalForToken resolves the principal owning token without refreshing it.
// It returns nil for a missing or expired session.
func (s *Service) GetPrincipalForToken(ctx context.Context, token string) (*user.Principal, error) {
	hash, ok := lookupHash(token)
	if !ok {
		return nil, nil
	}
	sess, principal, err := s.repo.GetByHashWithPrincipal(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("session: lookup principal: %w", err)
	}
	if sess == nil || principal == nil || sess.IsExpired(s.now()) {
		return nil, nil
	}
	return principal, nil
}

// DeleteSession removes the session for token. Unknown tokens are not an error.
func (s *Service) DeleteSession(ctx context.Context, token string) error {
	hash, ok := lookupHash(token)
	if !ok {
		return nil
	}
	removed, err := s.repo.DeleteByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	if removed {
		s.metrics.addDeleted(1)
	}
	return nil
}

// DeleteUserSessions removes every session owned by userID and returns how many were removed.
func (s *Service) DeleteUserSessions(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := s.repo.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("session: delete for user: %w", err)
	}
	s.metrics.addDeleted(n)
	s.logger.Info().Str("user_id", userID.String()).Int("count", n).Msg("user sessions deleted")
	return n, nil
}

// SweepExpired removes sessions that expired at or before now.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("session: sweep: %w", err)
	}
	s.metrics.addSwept(n)
	if n > 0 {
		s.logger.Debug().Int("count", n).Msg("expired sessions swept")
	}
	return n, nil
}

func lookupHash(token string) (string, bool) {
	if token == "" || len(token) > maxTokenLen {
		return "", false
	}
	return domain.HashToken(token), true
}
