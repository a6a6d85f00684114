package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/session-hub/session-hub/internal/domain/session"
	"github.com/session-hub/session-hub/internal/domain/user"
)

const insertSession = `
	INSERT INTO sessions
	(session_id, session_hash, user_id, created_at, last_seen_at, expires_at)
	VALUES ($1,$2,$3,$4,$5,$6)
`

const deleteSessionByHash = `DELETE FROM sessions WHERE session_hash=$1`

// SessionRepository implements session.Repository and session.Replacer.
type SessionRepository struct {
	db DB
}

func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	_, err := r.db.Exec(ctx, insertSession, s.SessionID, s.SessionHash, s.UserID, s.CreatedAt, s.LastSeenAt, s.ExpiresAt)
	return err
}

func (r *SessionRepository) GetByHash(ctx context.Context, sessionHash string) (*session.Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, session_id, session_hash, user_id, created_at, last_seen_at, expires_at
		FROM sessions WHERE session_hash=$1
	`, sessionHash)
	return scanSession(row)
}

// GetByHashWithPrincipal fetches the session and its owner in one round trip.
func (r *SessionRepository) GetByHashWithPrincipal(ctx context.Context, sessionHash string) (*session.Session, *user.Principal, error) {
	row := r.db.QueryRow(ctx, `
		SELECT s.id, s.session_id, s.session_hash, s.user_id, s.created_at, s.last_seen_at, s.expires_at,
		       u.email, u.username, u.first_name, u.last_name, u.role
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_hash=$1
	`, sessionHash)

	var s session.Session
	var p user.Principal
	if err := row.Scan(&s.ID, &s.SessionID, &s.SessionHash, &s.UserID, &s.CreatedAt, &s.LastSeenAt, &s.ExpiresAt,
		&p.Email, &p.Username, &p.FirstName, &p.LastName, &p.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	p.UserID = s.UserID
	return &s, &p, nil
}

func (r *SessionRepository) DeleteByHash(ctx context.Context, sessionHash string) (bool, error) {
	res, err := r.db.Exec(ctx, deleteSessionByHash, sessionHash)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	res, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

// Replace inserts next and deletes the row for oldHash in one transaction.
func (r *SessionRepository) Replace(ctx context.Context, oldHash string, next *session.Session) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, insertSession, next.SessionID, next.SessionHash, next.UserID, next.CreatedAt, next.LastSeenAt, next.ExpiresAt); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if _, err := tx.Exec(ctx, deleteSessionByHash, oldHash); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	if err := row.Scan(&s.ID, &s.SessionID, &s.SessionHash, &s.UserID, &s.CreatedAt, &s.LastSeenAt, &s.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
