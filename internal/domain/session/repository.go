package session

//go:generate mockgen -source=repository.go -destination=mocks/mock_repository.go -package=mocks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/session-hub/session-hub/internal/domain/user"
)

// Repository defines persistence for sessions.
//
// Lookups return nil (and no error) when no row matches. Deletes are
// idempotent: removing a row that does not exist is not an error.
type Repository interface {
	Create(ctx context.Context, session *Session) error
	GetByHash(ctx context.Context, sessionHash string) (*Session, error)
	GetByHashWithPrincipal(ctx context.Context, sessionHash string) (*Session, *user.Principal, error)
	// DeleteByHash reports whether a row was removed.
	DeleteByHash(ctx context.Context, sessionHash string) (bool, error)
	DeleteByUserID(ctx context.Context, userID uuid.UUID) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Replacer is implemented by stores that can insert next and delete the row
// keyed by oldHash as a single all-or-nothing unit.
//
// If the old row is already gone the insert still succeeds.
type Replacer interface {
	Replace(ctx context.Context, oldHash string, next *Session) error
}
