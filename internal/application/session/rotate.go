package session

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/session-hub/session-hub/internal/domain/session"
)

// rotate replaces old with a new session for the same user and returns the
// new token and expiry.
//
// Stores that implement domain.Replacer swap the rows atomically. Otherwise
// the new row is created first and the old one deleted only once the create
// has succeeded, so a failure in between leaves a duplicate, never a lost
// session.
func (s *Service) rotate(ctx context.Context, old *domain.Session, now time.Time) (string, time.Time, error) {
	token, hash, err := domain.NewToken()
	if err != nil {
		return "", time.Time{}, err
	}
	seen := now
	next := &domain.Session{
		SessionID:   ulid.Make().String(),
		SessionHash: hash,
		UserID:      old.UserID,
		CreatedAt:   now,
		LastSeenAt:  &seen,
		ExpiresAt:   now.Add(s.cfg.TTL),
	}

	if r, ok := s.repo.(domain.Replacer); ok {
		if err := r.Replace(ctx, old.SessionHash, next); err != nil {
			return "", time.Time{}, fmt.Errorf("session: rotate: %w", err)
		}
	} else {
		if err := s.repo.Create(ctx, next); err != nil {
			return "", time.Time{}, fmt.Errorf("session: rotate: %w", err)
		}
		if _, err := s.repo.DeleteByHash(ctx, old.SessionHash); err != nil {
			// The new row is live; the old one stays valid until it expires.
			s.logger.Warn().Err(err).
				Str("session_id", old.SessionID).
				Str("replaced_by", next.SessionID).
				Msg("rotated session left behind")
		}
	}

	s.logger.Debug().
		Str("session_id", old.SessionID).
		Str("replaced_by", next.SessionID).
		Str("user_id", old.UserID.String()).
		Time("expires_at", next.ExpiresAt).
		Msg("session rotated")
	return token, next.ExpiresAt, nil
}
