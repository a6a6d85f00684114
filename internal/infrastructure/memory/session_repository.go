package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/session-hub/session-hub/internal/domain/session"
	"github.com/session-hub/session-hub/internal/domain/user"
)

// ErrDuplicateHash is returned when a session hash is already stored.
var ErrDuplicateHash = errors.New("session hash already exists")

// SessionRepository implements session.Repository and session.Replacer in
// process memory. Principals are resolved through users.
type SessionRepository struct {
	mu     sync.RWMutex
	byHash map[string]*session.Session
	users  user.Repository
}

func NewSessionRepository(users user.Repository) *SessionRepository {
	return &SessionRepository{
		byHash: make(map[string]*session.Session),
		users:  users,
	}
}

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(s)
}

func (r *SessionRepository) GetByHash(ctx context.Context, sessionHash string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byHash[sessionHash]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

func (r *SessionRepository) GetByHashWithPrincipal(ctx context.Context, sessionHash string) (*session.Session, *user.Principal, error) {
	s, err := r.GetByHash(ctx, sessionHash)
	if err != nil || s == nil {
		return nil, nil, err
	}
	u, err := r.users.GetByID(ctx, s.UserID)
	if err != nil {
		return nil, nil, err
	}
	if u == nil {
		return nil, nil, nil
	}
	return s, u.Principal(), nil
}

func (r *SessionRepository) DeleteByHash(ctx context.Context, sessionHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byHash[sessionHash]; !ok {
		return false, nil
	}
	delete(r.byHash, sessionHash)
	return true, nil
}

func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for hash, s := range r.byHash {
		if s.UserID == userID {
			delete(r.byHash, hash)
			n++
		}
	}
	return n, nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for hash, s := range r.byHash {
		if s.IsExpired(now) {
			delete(r.byHash, hash)
			n++
		}
	}
	return n, nil
}

// Replace inserts next and removes oldHash under one lock.
func (r *SessionRepository) Replace(ctx context.Context, oldHash string, next *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.insertLocked(next); err != nil {
		return err
	}
	delete(r.byHash, oldHash)
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (r *SessionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHash)
}

func (r *SessionRepository) insertLocked(s *session.Session) error {
	if _, ok := r.byHash[s.SessionHash]; ok {
		return ErrDuplicateHash
	}
	r.byHash[s.SessionHash] = copySession(s)
	return nil
}

func copySession(s *session.Session) *session.Session {
	s2 := *s
	if s.LastSeenAt != nil {
		seen := *s.LastSeenAt
		s2.LastSeenAt = &seen
	}
	return &s2
}
