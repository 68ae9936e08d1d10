package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	alerts "harborgrid-cloud/internal/alerts/domain"
)

const defaultNotificationLimit = 100

// NotificationRepository is a Postgres repository for notifications.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *sql.DB) (*NotificationRepository, error) {
	if db == nil {
		return nil, errors.New("notification repo: nil db")
	}
	return &NotificationRepository{db: db}, nil
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, note *alerts.Notification) error {
	if note == nil {
		return errors.New("notification repo: nil notification")
	}
	if note.ID == "" || note.TenantID == "" || note.RuleID == "" {
		return errors.New("notification repo: incomplete notification")
	}
	if note.Status == "" {
		note.Status = alerts.StatusOpen
	}
	if note.RaisedAt.IsZero() {
		note.RaisedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO notifications (id, rule_id, tenant_id, zone_id, point_key, severity, message, value, status, raised_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		note.ID, note.RuleID, note.TenantID, note.ZoneID, note.PointKey,
		note.Severity, note.Message, note.Value, note.Status, note.RaisedAt.UTC())
	return err
}

// Get loads a notification by id within a tenant. Returns nil when absent.
func (r *NotificationRepository) Get(ctx context.Context, tenantID, id string) (*alerts.Notification, error) {
	if tenantID == "" || id == "" {
		return nil, errors.New("notification repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, rule_id, tenant_id, zone_id, point_key, severity, message, value, status, raised_at, acked_at, acked_by, resolved_at
FROM notifications
WHERE tenant_id = $1 AND id = $2
LIMIT 1`, tenantID, id)
	note, err := scanNotification(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return note, nil
}

// FindUnresolvedByRule returns the open or acked notification for a
// rule and zone, nil when the rule has none outstanding.
func (r *NotificationRepository) FindUnresolvedByRule(ctx context.Context, tenantID, ruleID, zoneID string) (*alerts.Notification, error) {
	if tenantID == "" || ruleID == "" {
		return nil, errors.New("notification repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, rule_id, tenant_id, zone_id, point_key, severity, message, value, status, raised_at, acked_at, acked_by, resolved_at
FROM notifications
WHERE tenant_id = $1 AND rule_id = $2 AND zone_id = $3 AND status IN ('open', 'acked')
ORDER BY raised_at DESC
LIMIT 1`, tenantID, ruleID, zoneID)
	note, err := scanNotification(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return note, nil
}

// List returns recent notifications, optionally filtered by status.
func (r *NotificationRepository) List(ctx context.Context, tenantID, status string, limit int) ([]alerts.Notification, error) {
	if tenantID == "" {
		return nil, errors.New("notification repo: empty tenant")
	}
	if limit <= 0 || limit > 500 {
		limit = defaultNotificationLimit
	}

	query := `
SELECT id, rule_id, tenant_id, zone_id, point_key, severity, message, value, status, raised_at, acked_at, acked_by, resolved_at
FROM notifications
WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY raised_at DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerts.Notification
	for rows.Next() {
		note, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *note)
	}
	return result, rows.Err()
}

// MarkAcked transitions a notification to acked.
func (r *NotificationRepository) MarkAcked(ctx context.Context, id, ackedBy string, at time.Time) error {
	if id == "" {
		return errors.New("notification repo: empty id")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE notifications SET status = 'acked', acked_at = $2, acked_by = $3
WHERE id = $1 AND status = 'open'`, id, at.UTC(), ackedBy)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return alerts.ErrNotFound
	}
	return nil
}

// MarkResolved transitions a notification to resolved.
func (r *NotificationRepository) MarkResolved(ctx context.Context, id string, at time.Time) error {
	if id == "" {
		return errors.New("notification repo: empty id")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE notifications SET status = 'resolved', resolved_at = $2
WHERE id = $1 AND status IN ('open', 'acked')`, id, at.UTC())
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return alerts.ErrNotFound
	}
	return nil
}

func scanNotification(scan func(...any) error) (*alerts.Notification, error) {
	var note alerts.Notification
	var ackedAt, resolvedAt sql.NullTime
	var ackedBy sql.NullString
	if err := scan(
		&note.ID,
		&note.RuleID,
		&note.TenantID,
		&note.ZoneID,
		&note.PointKey,
		&note.Severity,
		&note.Message,
		&note.Value,
		&note.Status,
		&note.RaisedAt,
		&ackedAt,
		&ackedBy,
		&resolvedAt,
	); err != nil {
		return nil, err
	}
	note.RaisedAt = note.RaisedAt.UTC()
	if ackedAt.Valid {
		at := ackedAt.Time.UTC()
		note.AckedAt = &at
	}
	if ackedBy.Valid {
		note.AckedBy = ackedBy.String
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time.UTC()
		note.ResolvedAt = &at
	}
	return &note, nil
}
