package session

import (
	"time"

	"github.com/google/uuid"
)

// Session represents one authenticated client context.
//
// SessionHash is the only lookup key; the raw token is never stored.
// ExpiresAt is the sole authority on validity.
type Session struct {
	ID          int64      `json:"-"`
	SessionID   string     `json:"sessionId"`
	SessionHash string     `json:"-"`
	UserID      uuid.UUID  `json:"userId"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty"`
	ExpiresAt   time.Time  `json:"expiresAt"`
}

// IsExpired reports whether the session is no longer valid at now.
// A session expiring exactly at now is expired.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// SeenAt returns the last time the session was confirmed active,
// falling back to the creation time.
func (s *Session) SeenAt() time.Time {
	if s.LastSeenAt != nil {
		return *s.LastSeenAt
	}
	return s.CreatedAt
}
