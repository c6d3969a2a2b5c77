package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sentryhound/sentryhound/pkg/models"
)

// FindingRepository persists deduplicated Finding rows (spec §3, §4.7).
type FindingRepository struct {
	db *sql.DB
}

// NewFindingRepository constructs a repository bound to client's pool.
func NewFindingRepository(client *Client) *FindingRepository {
	return &FindingRepository{db: client.DB()}
}

// Upsert implements spec invariant (ii): a Finding is unique by content_hash;
// re-insert is upgraded to a sighting increment and a monotonic max-merge of
// confidence. last_seen always advances; first_seen, title, and the STIX/
// remediation payloads are kept from the original insert on a sighting hit,
// since the dedup key already encodes the identity that produced them.
func (r *FindingRepository) Upsert(ctx context.Context, f *models.Finding) (*models.Finding, error) {
	now := time.Now().UTC()
	if f.FirstSeen.IsZero() {
		f.FirstSeen = now
	}
	f.LastSeen = now
	if f.SightingCount == 0 {
		f.SightingCount = 1
	}

	stix, err := marshalOrEmptyObject(f.STIXBundle)
	if err != nil {
		return nil, fmt.Errorf("marshal stix bundle: %w", err)
	}
	remediation, err := marshalOrEmptyObject(f.Remediation)
	if err != nil {
		return nil, fmt.Errorf("marshal remediation: %w", err)
	}
	indicators, err := json.Marshal(f.Indicators)
	if err != nil {
		return nil, fmt.Errorf("marshal indicators: %w", err)
	}
	techniqueIDs := f.TechniqueIDs
	if techniqueIDs == nil {
		techniqueIDs = []string{}
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO findings (id, session_id, asset_id, hunt_execution_id, title,
			description, severity, confidence, content_hash, first_seen, last_seen,
			sighting_count, stix_bundle, remediation, status, technique_ids, indicators, raw_evidence)
		VALUES ($1,NULLIF($2,'')::uuid,$3,NULLIF($4,'')::uuid,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (content_hash) DO UPDATE SET
			last_seen = EXCLUDED.last_seen,
			sighting_count = findings.sighting_count + 1,
			confidence = GREATEST(findings.confidence, EXCLUDED.confidence)
		RETURNING id, session_id, asset_id, hunt_execution_id, title, description,
			severity, confidence, content_hash, first_seen, last_seen, sighting_count,
			stix_bundle, remediation, status, technique_ids, indicators, raw_evidence`,
		f.ID, f.SessionID, f.AssetID, f.HuntID, f.Title, f.Description, string(f.Severity),
		f.Confidence, f.ContentHash, f.FirstSeen, f.LastSeen, f.SightingCount,
		stix, remediation, string(f.Status), techniqueIDs, indicators, f.RawEvidence)

	return scanFinding(row)
}

// Get fetches one finding by id.
func (r *FindingRepository) Get(ctx context.Context, id string) (*models.Finding, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, asset_id, hunt_execution_id, title, description,
			severity, confidence, content_hash, first_seen, last_seen, sighting_count,
			stix_bundle, remediation, status, technique_ids, indicators, raw_evidence
		FROM findings WHERE id = $1`, id)
	return scanFinding(row)
}

// ListByAsset returns every finding for an asset, most recently seen first.
func (r *FindingRepository) ListByAsset(ctx context.Context, assetID string) ([]*models.Finding, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, asset_id, hunt_execution_id, title, description,
			severity, confidence, content_hash, first_seen, last_seen, sighting_count,
			stix_bundle, remediation, status, technique_ids, indicators, raw_evidence
		FROM findings WHERE asset_id = $1 ORDER BY last_seen DESC`, assetID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []*models.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListBySession returns every finding produced within a session, most
// recently seen first.
func (r *FindingRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.Finding, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, asset_id, hunt_execution_id, title, description,
			severity, confidence, content_hash, first_seen, last_seen, sighting_count,
			stix_bundle, remediation, status, technique_ids, indicators, raw_evidence
		FROM findings WHERE session_id = $1 ORDER BY last_seen DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list findings by session: %w", err)
	}
	defer rows.Close()

	var out []*models.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateStatus moves a finding through the analyst triage lifecycle
// (open → acknowledged → resolved).
func (r *FindingRepository) UpdateStatus(ctx context.Context, id string, status models.FindingStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE findings SET status=$2 WHERE id=$1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update finding status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFinding(row scannable) (*models.Finding, error) {
	f := &models.Finding{}
	var severity, status string
	var stix, remediation, indicators []byte
	var sessionID, huntID sql.NullString
	m := pgtype.NewMap()
	if err := row.Scan(&f.ID, &sessionID, &f.AssetID, &huntID, &f.Title, &f.Description,
		&severity, &f.Confidence, &f.ContentHash, &f.FirstSeen, &f.LastSeen, &f.SightingCount,
		&stix, &remediation, &status, m.SQLScanner(&f.TechniqueIDs), &indicators, &f.RawEvidence); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan finding: %w", err)
	}
	f.SessionID, f.HuntID = sessionID.String, huntID.String
	f.Severity = models.ParseSeverity(severity)
	f.Status = models.FindingStatus(status)
	f.STIXBundle = json.RawMessage(stix)
	f.Remediation = json.RawMessage(remediation)
	if len(indicators) > 0 {
		if err := json.Unmarshal(indicators, &f.Indicators); err != nil {
			return nil, fmt.Errorf("unmarshal indicators: %w", err)
		}
	}
	return f, nil
}

func marshalOrEmptyObject(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	return raw, nil
}
