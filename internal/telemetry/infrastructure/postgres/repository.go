package postgres

import (
	"context"
	"database/sql"
	"errors"

	telemetry "harborgrid-cloud/internal/telemetry/domain"
)

const defaultReadingsTable = "readings"

// ReadingRepository is a Postgres repository for raw readings.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(r *ReadingRepository) {
		if r != nil && table != "" {
			r.table = table
		}
	}
}

// NewReadingRepository constructs a repository.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// InsertReadings writes a batch inside one transaction. Conflicting
// (duplicate) points are overwritten with the latest value.
func (r *ReadingRepository) InsertReadings(ctx context.Context, readings []telemetry.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	if len(readings) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO `+r.table+` (tenant_id, zone_id, device_id, point_key, ts, value_numeric, value_text, quality)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (tenant_id, zone_id, device_id, point_key, ts)
DO UPDATE SET value_numeric = EXCLUDED.value_numeric, value_text = EXCLUDED.value_text, quality = EXCLUDED.quality`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, reading := range readings {
		if reading.TenantID == "" || reading.ZoneID == "" || reading.PointKey == "" || reading.TS.IsZero() {
			return errors.New("reading repo: incomplete reading")
		}
		if _, err := stmt.ExecContext(ctx,
			reading.TenantID, reading.ZoneID, reading.DeviceID, reading.PointKey,
			reading.TS.UTC(), reading.ValueNumeric, reading.ValueText, reading.Quality,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}
