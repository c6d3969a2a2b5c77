package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sentryhound/sentryhound/pkg/models"
)

// SessionRepository persists the durable subset of Session (spec §3): the
// runtime handles (mutexes, shell connection) never reach this package.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository constructs a repository bound to client's pool.
func NewSessionRepository(client *Client) *SessionRepository {
	return &SessionRepository{db: client.DB()}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, asset_id, analyst_id, state, mode, locked_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,'')::uuid,$7,$8)`,
		s.ID, s.AssetID, s.AnalystID, string(s.State), string(s.Mode), s.LockedBy, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// UpdateState writes through the FSM transition performed in memory
// (spec §4.1 step (c): "writes through to the persistent row when a DB
// handle is provided"). Callers are expected to have already validated the
// transition via models.CanTransition.
func (r *SessionRepository) UpdateState(ctx context.Context, id string, state models.SessionState) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET state=$2, updated_at=now() WHERE id=$1`, id, string(state))
	if err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateMode persists a mode switch (spec §4.1 mode mutex).
func (r *SessionRepository) UpdateMode(ctx context.Context, id string, mode models.SessionMode) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET mode=$2, updated_at=now() WHERE id=$1`, id, string(mode))
	if err != nil {
		return fmt.Errorf("update session mode: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLockedBy sets or clears (empty string) the analyst holding the LOCKED state.
func (r *SessionRepository) UpdateLockedBy(ctx context.Context, id, lockedBy string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET locked_by=NULLIF($2,'')::uuid, updated_at=now() WHERE id=$1`, id, lockedBy)
	if err != nil {
		return fmt.Errorf("update session locked_by: %w", err)
	}
	return nil
}

// Get fetches a session by id.
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, asset_id, analyst_id, state, mode, COALESCE(locked_by::text,''), created_at, updated_at
		FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// ListByState returns every session in one of the given states, used by the
// reaper (spec §4.1) to find DISCONNECTED/FAILED sessions past their age threshold.
func (r *SessionRepository) ListByState(ctx context.Context, states ...models.SessionState) ([]*models.Session, error) {
	strs := make([]string, len(states))
	for i, s := range states {
		strs[i] = string(s)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, asset_id, analyst_id, state, mode, COALESCE(locked_by::text,''), created_at, updated_at
		FROM sessions WHERE state = ANY($1)`, strs)
	if err != nil {
		return nil, fmt.Errorf("list sessions by state: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a session row once the FSM has reached TERMINATED and
// cleanup has completed (spec §4.1: "Cleanup is idempotent").
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func scanSession(row scannable) (*models.Session, error) {
	s := &models.Session{}
	var state, mode string
	if err := row.Scan(&s.ID, &s.AssetID, &s.AnalystID, &state, &mode, &s.LockedBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	s.State = models.SessionState(state)
	s.Mode = models.SessionMode(mode)
	return s, nil
}
