package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sentryhound/sentryhound/pkg/models"
)

// UserRepository persists analyst/admin accounts.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository constructs a repository bound to client's pool.
func NewUserRepository(client *Client) *UserRepository {
	return &UserRepository{db: client.DB()}
}

// Create inserts a new user. PasswordHash is expected to already be hashed —
// this package never hashes or verifies passwords itself.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	u.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Username, u.PasswordHash, string(u.Role), u.Active, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByUsername fetches an active or inactive user by username, for the
// authentication path to check both password and the active flag itself.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, active, created_at
		FROM users WHERE username = $1`, username)
	return scanUser(row)
}

// Get fetches a user by id.
func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, active, created_at
		FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// Count returns the total number of registered users — used by the
// registration endpoint to decide whether the next registrant becomes the
// first admin (spec §6: "allowed only when the user table is empty").
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// UpdatePassword overwrites a user's password hash, e.g. after a successful
// change-password request.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash=$2 WHERE id=$1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row scannable) (*models.User, error) {
	u := &models.User{}
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.Active, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = models.UserRole(role)
	return u, nil
}
