package database

import (
	"context"
	stdsql "database/sql"
	"fmt"
)

// CreateSearchIndexes creates full-text search GIN indexes for PostgreSQL.
// These are applied after the schema migrations run, rather than baked into
// a migration file, so they can be safely re-run (IF NOT EXISTS) regardless
// of which migration version introduced the underlying column.
func CreateSearchIndexes(ctx context.Context, db *stdsql.DB) error {
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_findings_title_gin
		ON findings USING gin(to_tsvector('english', title))`)
	if err != nil {
		return fmt.Errorf("failed to create findings title GIN index: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_findings_description_gin
		ON findings USING gin(to_tsvector('english', COALESCE(description, '')))`)
	if err != nil {
		return fmt.Errorf("failed to create findings description GIN index: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_assets_hostname_gin
		ON assets USING gin(to_tsvector('english', hostname))`)
	if err != nil {
		return fmt.Errorf("failed to create assets hostname GIN index: %w", err)
	}

	return nil
}
