package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sentryhound/sentryhound/pkg/models"
)

// HuntExecutionRepository persists HuntExecution rows (spec §3, §4.4).
type HuntExecutionRepository struct {
	db *sql.DB
}

// NewHuntExecutionRepository constructs a repository bound to client's pool.
func NewHuntExecutionRepository(client *Client) *HuntExecutionRepository {
	return &HuntExecutionRepository{db: client.DB()}
}

// Create inserts a new hunt execution in PENDING state.
func (r *HuntExecutionRepository) Create(ctx context.Context, h *models.HuntExecution) error {
	obs, err := json.Marshal(h.Observations)
	if err != nil {
		return fmt.Errorf("marshal observations: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO hunt_executions (id, session_id, module_id, state, started_at, finished_at, observations, report_text)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		h.ID, h.SessionID, h.ModuleID, string(h.State), nullTime(h.StartedAt), h.FinishedAt, obs, h.AIReportText)
	if err != nil {
		return fmt.Errorf("insert hunt execution: %w", err)
	}
	return nil
}

// UpdateState transitions state and, for RUNNING, stamps started_at.
func (r *HuntExecutionRepository) UpdateState(ctx context.Context, id string, state models.HuntState) error {
	var err error
	switch state {
	case models.HuntRunning:
		_, err = r.db.ExecContext(ctx, `UPDATE hunt_executions SET state=$2, started_at=now() WHERE id=$1`, id, string(state))
	case models.HuntCompleted, models.HuntFailed, models.HuntCancelled:
		_, err = r.db.ExecContext(ctx, `UPDATE hunt_executions SET state=$2, finished_at=now() WHERE id=$1`, id, string(state))
	default:
		_, err = r.db.ExecContext(ctx, `UPDATE hunt_executions SET state=$2 WHERE id=$1`, id, string(state))
	}
	if err != nil {
		return fmt.Errorf("update hunt execution state: %w", err)
	}
	return nil
}

// AppendObservation rewrites the full observation list. Called once per
// completed HuntStep (spec §4.4): the set is small enough per run that a
// read-modify-write under the caller's own serialization (one hunt runs at
// a time per session) is simpler than a JSONB append expression.
func (r *HuntExecutionRepository) AppendObservation(ctx context.Context, id string, observations []models.Observation) error {
	obs, err := json.Marshal(observations)
	if err != nil {
		return fmt.Errorf("marshal observations: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `UPDATE hunt_executions SET observations=$2 WHERE id=$1`, id, obs)
	if err != nil {
		return fmt.Errorf("update hunt observations: %w", err)
	}
	return nil
}

// SetReportText persists the assembled AI report text as its own write
// (spec §4.5, §9 design note): the AI pipeline commits this in an
// independent transaction from finding persistence so a later finding
// failure never rolls back a report the analyst already saw streamed.
func (r *HuntExecutionRepository) SetReportText(ctx context.Context, id, reportText string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE hunt_executions SET report_text=$2 WHERE id=$1`, id, reportText)
	if err != nil {
		return fmt.Errorf("set hunt report text: %w", err)
	}
	return nil
}

// Get fetches one hunt execution by id.
func (r *HuntExecutionRepository) Get(ctx context.Context, id string) (*models.HuntExecution, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, module_id, state, started_at, finished_at, observations, report_text
		FROM hunt_executions WHERE id = $1`, id)
	return scanHuntExecution(row)
}

// ListBySession returns every hunt execution for a session, most recent first.
func (r *HuntExecutionRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.HuntExecution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, module_id, state, started_at, finished_at, observations, report_text
		FROM hunt_executions WHERE session_id = $1 ORDER BY created_at DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list hunt executions: %w", err)
	}
	defer rows.Close()

	var out []*models.HuntExecution
	for rows.Next() {
		h, err := scanHuntExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHuntExecution(row scannable) (*models.HuntExecution, error) {
	h := &models.HuntExecution{}
	var state string
	var started sql.NullTime
	var obs []byte
	if err := row.Scan(&h.ID, &h.SessionID, &h.ModuleID, &state, &started, &h.FinishedAt, &obs, &h.AIReportText); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan hunt execution: %w", err)
	}
	h.State = models.HuntState(state)
	if started.Valid {
		h.StartedAt = started.Time
	}
	if len(obs) > 0 {
		if err := json.Unmarshal(obs, &h.Observations); err != nil {
			return nil, fmt.Errorf("unmarshal observations: %w", err)
		}
	}
	return h, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
