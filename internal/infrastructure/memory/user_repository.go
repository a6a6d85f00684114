package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/session-hub/session-hub/internal/domain/user"
)

// UserRepository implements user.Repository in process memory.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*user.User
	byEmail map[string]*user.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[uuid.UUID]*user.User),
		byEmail: make(map[string]*user.User),
	}
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[u.Email]; ok {
		return user.ErrDuplicate
	}
	if u.Username != nil {
		for _, existing := range r.byID {
			if existing.Username != nil && *existing.Username == *u.Username {
				return user.ErrDuplicate
			}
		}
	}
	u2 := *u
	r.byID[u.UserID] = &u2
	r.byEmail[u.Email] = &u2
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[userID]
	if !ok {
		return nil, nil
	}
	u2 := *u
	return &u2, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	u2 := *u
	return &u2, nil
}
