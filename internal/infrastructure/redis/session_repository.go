package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/session-hub/session-hub/internal/domain/session"
	"github.com/session-hub/session-hub/internal/domain/user"
)

const (
	sessionPrefix   = "session:"
	userIndexPrefix = "session:user:"
)

// record is the stored form of a session. Session hides its hash from JSON.
type record struct {
	SessionID   string     `json:"sid"`
	SessionHash string     `json:"hash"`
	UserID      uuid.UUID  `json:"uid"`
	CreatedAt   time.Time  `json:"created"`
	LastSeenAt  *time.Time `json:"seen,omitempty"`
	ExpiresAt   time.Time  `json:"exp"`
}

// SessionRepository implements session.Repository and session.Replacer on
// Redis. Each session is a JSON string keyed by its hash that Redis expires
// at ExpiresAt; a per-user set indexes the hashes a user owns.
// Principals are resolved through users.
type SessionRepository struct {
	client goredis.UniversalClient
	users  user.Repository
}

func NewSessionRepository(client goredis.UniversalClient, users user.Repository) *SessionRepository {
	return &SessionRepository{client: client, users: users}
}

func sessionKey(hash string) string {
	return sessionPrefix + hash
}

func userIndexKey(userID uuid.UUID) string {
	return userIndexPrefix + userID.String()
}

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		queueInsert(ctx, pipe, s, data)
		return nil
	})
	return err
}

func (r *SessionRepository) GetByHash(ctx context.Context, sessionHash string) (*session.Session, error) {
	val, err := r.client.Get(ctx, sessionKey(sessionHash)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(val)
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
	s, err := r.GetByHash(ctx, sessionHash)
	if err != nil || s == nil {
		return false, err
	}
	var del *goredis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, sessionKey(sessionHash))
		pipe.SRem(ctx, userIndexKey(s.UserID), sessionHash)
		return nil
	})
	if err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	idx := userIndexKey(userID)
	hashes, err := r.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, err
	}
	if len(hashes) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(hashes))
	members := make([]interface{}, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, sessionKey(h))
		members = append(members, h)
	}

	// Only the members read above leave the index; a session created in the
	// meantime keeps its entry.
	var del *goredis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, keys...)
		pipe.SRem(ctx, idx, members...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(del.Val()), nil
}

// DeleteExpired drops index entries whose session keys Redis has already
// expired and returns how many it found. The keys themselves expire on their own.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var cursor uint64
	total := 0
	for {
		keys, next, err := r.client.Scan(ctx, cursor, userIndexPrefix+"*", 100).Result()
		if err != nil {
			return total, err
		}
		for _, idx := range keys {
			n, err := r.pruneIndex(ctx, idx)
			total += n
			if err != nil {
				return total, err
			}
		}
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

func (r *SessionRepository) pruneIndex(ctx context.Context, idx string) (int, error) {
	hashes, err := r.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, h := range hashes {
		n, err := r.client.Exists(ctx, sessionKey(h)).Result()
		if err != nil {
			return pruned, err
		}
		if n > 0 {
			continue
		}
		if err := r.client.SRem(ctx, idx, h).Err(); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// Replace writes next and removes oldHash in one MULTI/EXEC block.
func (r *SessionRepository) Replace(ctx context.Context, oldHash string, next *session.Session) error {
	data, err := encode(next)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		queueInsert(ctx, pipe, next, data)
		pipe.Del(ctx, sessionKey(oldHash))
		pipe.SRem(ctx, userIndexKey(next.UserID), oldHash)
		return nil
	})
	return err
}

func queueInsert(ctx context.Context, pipe goredis.Pipeliner, s *session.Session, data []byte) {
	key := sessionKey(s.SessionHash)
	pipe.Set(ctx, key, data, 0)
	pipe.ExpireAt(ctx, key, s.ExpiresAt)
	pipe.SAdd(ctx, userIndexKey(s.UserID), s.SessionHash)
}

func encode(s *session.Session) ([]byte, error) {
	data, err := json.Marshal(record{
		SessionID:   s.SessionID,
		SessionHash: s.SessionHash,
		UserID:      s.UserID,
		CreatedAt:   s.CreatedAt,
		LastSeenAt:  s.LastSeenAt,
		ExpiresAt:   s.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("session: marshal: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*session.Session, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &session.Session{
		SessionID:   rec.SessionID,
		SessionHash: rec.SessionHash,
		UserID:      rec.UserID,
		CreatedAt:   rec.CreatedAt,
		LastSeenAt:  rec.LastSeenAt,
		ExpiresAt:   rec.ExpiresAt,
	}, nil
}
