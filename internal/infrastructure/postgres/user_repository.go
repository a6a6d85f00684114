package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/session-hub/session-hub/internal/domain/user"
)

const userColumns = `id, user_id, email, username, password_hash, first_name, last_name, display_name, role, status, created_at, updated_at`

// UserRepository implements user.Repository.
type UserRepository struct {
	db DB
}

func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	var passwordHash *string
	if u.PasswordHash != "" {
		passwordHash = &u.PasswordHash
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO users
		(user_id, email, username, password_hash, first_name, last_name, display_name, role, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, u.UserID, u.Email, u.Username, passwordHash, u.FirstName, u.LastName, u.DisplayName, u.Role, u.Status, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return user.ErrDuplicate
	}
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id=$1`, userID)
	return scanUser(row)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	var passwordHash *string
	if err := row.Scan(&u.ID, &u.UserID, &u.Email, &u.Username, &passwordHash, &u.FirstName, &u.LastName, &u.DisplayName, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	return &u, nil
}
