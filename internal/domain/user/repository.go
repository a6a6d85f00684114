package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrDuplicate is returned by Create when the email or username is already taken.
var ErrDuplicate = errors.New("user already exists")

// Repository defines persistence for users.
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, userID uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
