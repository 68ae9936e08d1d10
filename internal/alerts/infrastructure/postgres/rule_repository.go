// Package postgres persists alert rules and notifications.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alerts "harborgrid-cloud/internal/alerts/domain"
)

// RuleRepository is a Postgres repository for alert rules.
type RuleRepository struct {
	db *sql.DB
}

// NewRuleRepository constructs a RuleRepository.
func NewRuleRepository(db *sql.DB) (*RuleRepository, error) {
	if db == nil {
		return nil, errors.New("alert rule repo: nil db")
	}
	return &RuleRepository{db: db}, nil
}

// Create inserts an alert rule.
func (r *RuleRepository) Create(ctx context.Context, rule *alerts.Rule) error {
	if rule == nil {
		return errors.New("alert rule repo: nil rule")
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alert_rules (id, tenant_id, zone_id, point_key, op, threshold, severity, enabled, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rule.ID, rule.TenantID, rule.ZoneID, rule.PointKey, string(rule.Op),
		rule.Threshold, rule.Severity, rule.Enabled, rule.CreatedAt)
	return err
}

// Get loads a rule by id within a tenant. Returns nil when absent.
func (r *RuleRepository) Get(ctx context.Context, tenantID, id string) (*alerts.Rule, error) {
	if tenantID == "" || id == "" {
		return nil, errors.New("alert rule repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, zone_id, point_key, op, threshold, severity, enabled, created_at
FROM alert_rules
WHERE tenant_id = $1 AND id = $2
LIMIT 1`, tenantID, id)
	rule, err := scanRule(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rule, nil
}

// List returns all rules for a tenant.
func (r *RuleRepository) List(ctx context.Context, tenantID string) ([]alerts.Rule, error) {
	if tenantID == "" {
		return nil, errors.New("alert rule repo: empty tenant")
	}
	return r.queryRules(ctx, `
SELECT id, tenant_id, zone_id, point_key, op, threshold, severity, enabled, created_at
FROM alert_rules
WHERE tenant_id = $1
ORDER BY created_at ASC`, tenantID)
}

// ListEnabledByZone returns enabled rules for a zone.
func (r *RuleRepository) ListEnabledByZone(ctx context.Context, tenantID, zoneID string) ([]alerts.Rule, error) {
	if tenantID == "" || zoneID == "" {
		return nil, errors.New("alert rule repo: invalid query")
	}
	return r.queryRules(ctx, `
SELECT id, tenant_id, zone_id, point_key, op, threshold, severity, enabled, created_at
FROM alert_rules
WHERE tenant_id = $1 AND zone_id = $2 AND enabled = TRUE
ORDER BY created_at ASC`, tenantID, zoneID)
}

// SetEnabled toggles a rule.
func (r *RuleRepository) SetEnabled(ctx context.Context, tenantID, id string, enabled bool) error {
	if tenantID == "" || id == "" {
		return errors.New("alert rule repo: invalid query")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE alert_rules SET enabled = $3 WHERE tenant_id = $1 AND id = $2`, tenantID, id, enabled)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return alerts.ErrNotFound
	}
	return nil
}

// Delete removes a rule.
func (r *RuleRepository) Delete(ctx context.Context, tenantID, id string) error {
	if tenantID == "" || id == "" {
		return errors.New("alert rule repo: invalid query")
	}
	result, err := r.db.ExecContext(ctx, `
DELETE FROM alert_rules WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return alerts.ErrNotFound
	}
	return nil
}

func (r *RuleRepository) queryRules(ctx context.Context, query string, args ...any) ([]alerts.Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerts.Rule
	for rows.Next() {
		rule, err := scanRule(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

func scanRule(scan func(...any) error) (*alerts.Rule, error) {
	var rule alerts.Rule
	var op string
	if err := scan(
		&rule.ID,
		&rule.TenantID,
		&rule.ZoneID,
		&rule.PointKey,
		&op,
		&rule.Threshold,
		&rule.Severity,
		&rule.Enabled,
		&rule.CreatedAt,
	); err != nil {
		return nil, err
	}
	rule.Op = alerts.Operator(op)
	rule.CreatedAt = rule.CreatedAt.UTC()
	return &rule, nil
}
