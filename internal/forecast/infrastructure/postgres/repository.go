// Package postgres persists PV forecast estimates.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"harborgrid-cloud/internal/forecast/domain"
)

// ForecastRepository stores estimates in the forecast_pv table.
type ForecastRepository struct {
	db *sql.DB
}

// NewForecastRepository constructs a ForecastRepository.
func NewForecastRepository(db *sql.DB) (*ForecastRepository, error) {
	if db == nil {
		return nil, errors.New("forecast repository: nil db")
	}
	return &ForecastRepository{db: db}, nil
}

// Upsert writes a batch of estimates, replacing rows already present
// for the same tenant and period. Re-fetching overlapping horizons is
// normal, newer bands win.
func (r *ForecastRepository) Upsert(ctx context.Context, estimates []domain.Estimate) error {
	if len(estimates) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("forecast repository: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecast_pv (tenant_id, period_end, period_minutes, p10_kw, p50_kw, p90_kw, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, period_end) DO UPDATE SET
			period_minutes = EXCLUDED.period_minutes,
			p10_kw = EXCLUDED.p10_kw,
			p50_kw = EXCLUDED.p50_kw,
			p90_kw = EXCLUDED.p90_kw,
			fetched_at = EXCLUDED.fetched_at`)
	if err != nil {
		return fmt.Errorf("forecast repository: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range estimates {
		if e.TenantID == "" || e.PeriodEnd.IsZero() {
			return errors.New("forecast repository: incomplete estimate")
		}
		if _, err := stmt.ExecContext(ctx,
			e.TenantID, e.PeriodEnd.UTC(), e.PeriodMinutes,
			e.P10KW, e.P50KW, e.P90KW, e.FetchedAt.UTC(),
		); err != nil {
			return fmt.Errorf("forecast repository: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("forecast repository: commit: %w", err)
	}
	return nil
}

// Range returns estimates with period_end in (from, to], ordered by
// period_end ascending.
func (r *ForecastRepository) Range(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Estimate, error) {
	if tenantID == "" {
		return nil, errors.New("forecast repository: empty tenant")
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT tenant_id, period_end, period_minutes, p10_kw, p50_kw, p90_kw, fetched_at
		FROM forecast_pv
		WHERE tenant_id = $1 AND period_end > $2 AND period_end <= $3
		ORDER BY period_end ASC`,
		tenantID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("forecast repository: range: %w", err)
	}
	defer rows.Close()

	var estimates []domain.Estimate
	for rows.Next() {
		var e domain.Estimate
		if err := rows.Scan(&e.TenantID, &e.PeriodEnd, &e.PeriodMinutes, &e.P10KW, &e.P50KW, &e.P90KW, &e.FetchedAt); err != nil {
			return nil, fmt.Errorf("forecast repository: scan: %w", err)
		}
		e.PeriodEnd = e.PeriodEnd.UTC()
		e.FetchedAt = e.FetchedAt.UTC()
		estimates = append(estimates, e)
	}
	return estimates, rows.Err()
}
