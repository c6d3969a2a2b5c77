package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sentryhound/sentryhound/pkg/models"
)

// ErrNotFound is returned by repository lookups that find no matching row.
var ErrNotFound = errors.New("not found")

// AssetRepository persists Asset rows. Credential fields are expected to
// already be ciphertext — this package never decrypts; that is pkg/credentials'
// job exclusively (spec §3 invariant iv).
type AssetRepository struct {
	db *sql.DB
}

// NewAssetRepository constructs a repository bound to client's pool.
func NewAssetRepository(client *Client) *AssetRepository {
	return &AssetRepository{db: client.DB()}
}

// Create inserts a new asset.
func (r *AssetRepository) Create(ctx context.Context, a *models.Asset) error {
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assets (id, hostname, ip, os_type, tags, ssh_port, username,
			ssh_key_enc, ssh_password_enc, sudo_method, sudo_password_enc,
			vault_path, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.Hostname, a.IP, string(a.OSType), tags, a.SSHPort, a.Username,
		a.SSHKeyEnc, a.SSHPasswordEnc, string(a.SudoMethod), a.SudoPasswordEnc,
		a.VaultPath, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// Get fetches one asset by id.
func (r *AssetRepository) Get(ctx context.Context, id string) (*models.Asset, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, hostname, ip, os_type, tags, ssh_port, username,
			ssh_key_enc, ssh_password_enc, sudo_method, sudo_password_enc,
			vault_path, created_at, updated_at
		FROM assets WHERE id = $1`, id)
	return scanAsset(row)
}

// List returns every asset, ordered by hostname.
func (r *AssetRepository) List(ctx context.Context) ([]*models.Asset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, hostname, ip, os_type, tags, ssh_port, username,
			ssh_key_enc, ssh_password_enc, sudo_method, sudo_password_enc,
			vault_path, created_at, updated_at
		FROM assets ORDER BY hostname`)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var out []*models.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Update persists metadata and credential changes for an existing asset.
func (r *AssetRepository) Update(ctx context.Context, a *models.Asset) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE assets SET hostname=$2, ip=$3, os_type=$4, tags=$5, ssh_port=$6,
			username=$7, ssh_key_enc=$8, ssh_password_enc=$9, sudo_method=$10,
			sudo_password_enc=$11, vault_path=$12, updated_at=$13
		WHERE id=$1`,
		a.ID, a.Hostname, a.IP, string(a.OSType), a.Tags, a.SSHPort,
		a.Username, a.SSHKeyEnc, a.SSHPasswordEnc, string(a.SudoMethod),
		a.SudoPasswordEnc, a.VaultPath, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an asset row. sessions.asset_id references assets with
// ON DELETE CASCADE, so the asset's session rows (and, through them, their
// hunt executions) are deleted with it.
func (r *AssetRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAsset(row scannable) (*models.Asset, error) {
	a := &models.Asset{}
	var osType, sudoMethod string
	var tags []string
	m := pgtype.NewMap()
	if err := row.Scan(&a.ID, &a.Hostname, &a.IP, &osType, m.SQLScanner(&tags), &a.SSHPort,
		&a.Username, &a.SSHKeyEnc, &a.SSHPasswordEnc, &sudoMethod, &a.SudoPasswordEnc,
		&a.VaultPath, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan asset: %w", err)
	}
	a.OSType = models.ParseOSType(osType)
	a.SudoMethod = models.ParseSudoMethod(sudoMethod)
	a.Tags = tags
	return a, nil
}
