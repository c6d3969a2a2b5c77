package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sentryhound/sentryhound/pkg/models"
)

// TimelineRepository persists immutable TimelineEvent rows (spec §3). There
// is deliberately no Update or Delete here — the timeline is append-only.
type TimelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository constructs a repository bound to client's pool.
func NewTimelineRepository(client *Client) *TimelineRepository {
	return &TimelineRepository{db: client.DB()}
}

// Record appends a new timeline event.
func (r *TimelineRepository) Record(ctx context.Context, e *models.TimelineEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO timeline_events (id, asset_id, session_id, type, payload, timestamp, analyst_id)
		VALUES ($1, $2, NULLIF($3,'')::uuid, $4, $5, $6, NULLIF($7,'')::uuid)`,
		e.ID, e.AssetID, e.SessionID, e.Type, []byte(e.Payload), e.Timestamp, e.AnalystID)
	if err != nil {
		return fmt.Errorf("insert timeline event: %w", err)
	}
	return nil
}

// ListByAsset returns every event for an asset, oldest first, for timeline reconstruction.
func (r *TimelineRepository) ListByAsset(ctx context.Context, assetID string) ([]*models.TimelineEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, asset_id, COALESCE(session_id::text,''), type, payload, timestamp, COALESCE(analyst_id::text,'')
		FROM timeline_events WHERE asset_id = $1 ORDER BY timestamp ASC`, assetID)
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	defer rows.Close()

	var out []*models.TimelineEvent
	for rows.Next() {
		e, err := scanTimelineEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanTimelineEvent(row scannable) (*models.TimelineEvent, error) {
	e := &models.TimelineEvent{}
	var payload []byte
	if err := row.Scan(&e.ID, &e.AssetID, &e.SessionID, &e.Type, &payload, &e.Timestamp, &e.AnalystID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan timeline event: %w", err)
	}
	e.Payload = payload
	return e, nil
}
