// Package postgres persists operator tasks.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	tasks "harborgrid-cloud/internal/tasks/domain"
)

// TaskRepository is a Postgres repository for tasks.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository constructs a TaskRepository.
func NewTaskRepository(db *sql.DB) (*TaskRepository, error) {
	if db == nil {
		return nil, errors.New("task repo: nil db")
	}
	return &TaskRepository{db: db}, nil
}

// Create inserts a task.
func (r *TaskRepository) Create(ctx context.Context, task *tasks.Task) error {
	if task == nil {
		return errors.New("task repo: nil task")
	}
	if err := task.Validate(); err != nil {
		return err
	}
	if task.Status == "" {
		task.Status = tasks.StatusOpen
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	var zoneID any
	if task.ZoneID != "" {
		zoneID = task.ZoneID
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO tasks (id, tenant_id, title, note, zone_id, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		task.ID, task.TenantID, task.Title, task.Note, zoneID,
		task.Status, task.CreatedBy, task.CreatedAt.UTC())
	return err
}

// Get loads a task by id within a tenant. Returns nil when absent.
func (r *TaskRepository) Get(ctx context.Context, tenantID, id string) (*tasks.Task, error) {
	if tenantID == "" || id == "" {
		return nil, errors.New("task repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, title, note, zone_id, status, created_by, created_at, done_at
FROM tasks
WHERE tenant_id = $1 AND id = $2
LIMIT 1`, tenantID, id)
	task, err := scanTask(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return task, nil
}

// List returns tasks for a tenant, optionally filtered by status.
func (r *TaskRepository) List(ctx context.Context, tenantID, status string) ([]tasks.Task, error) {
	if tenantID == "" {
		return nil, errors.New("task repo: empty tenant")
	}
	query := `
SELECT id, tenant_id, title, note, zone_id, status, created_by, created_at, done_at
FROM tasks
WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []tasks.Task
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *task)
	}
	return result, rows.Err()
}

// MarkDone closes an open task.
func (r *TaskRepository) MarkDone(ctx context.Context, tenantID, id string, at time.Time) error {
	if tenantID == "" || id == "" {
		return errors.New("task repo: invalid query")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE tasks SET status = 'done', done_at = $3
WHERE tenant_id = $1 AND id = $2 AND status = 'open'`, tenantID, id, at.UTC())
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return tasks.ErrNotFound
	}
	return nil
}

// Delete removes a task.
func (r *TaskRepository) Delete(ctx context.Context, tenantID, id string) error {
	if tenantID == "" || id == "" {
		return errors.New("task repo: invalid query")
	}
	result, err := r.db.ExecContext(ctx, `
DELETE FROM tasks WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return tasks.ErrNotFound
	}
	return nil
}

func scanTask(scan func(...any) error) (*tasks.Task, error) {
	var task tasks.Task
	var zoneID sql.NullString
	var doneAt sql.NullTime
	if err := scan(
		&task.ID,
		&task.TenantID,
		&task.Title,
		&task.Note,
		&zoneID,
		&task.Status,
		&task.CreatedBy,
		&task.CreatedAt,
		&doneAt,
	); err != nil {
		return nil, err
	}
	task.CreatedAt = task.CreatedAt.UTC()
	if zoneID.Valid {
		task.ZoneID = zoneID.String
	}
	if doneAt.Valid {
		at := doneAt.Time.UTC()
		task.DoneAt = &at
	}
	return &task, nil
}
