// Package domain holds operator task records.
package domain

import (
	"context"
	"errors"
	"time"
)

// Task status lifecycle.
const (
	StatusOpen = "open"
	StatusDone = "done"
)

// ErrNotFound marks a missing task.
var ErrNotFound = errors.New("tasks: not found")

// Task is a lightweight work item on the operations board, often
// created from an alert (defrost cold store 2, check ice plant
// compressor).
type Task struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenantId"`
	Title     string     `json:"title"`
	Note      string     `json:"note,omitempty"`
	ZoneID    string     `json:"zoneId,omitempty"`
	Status    string     `json:"status"`
	CreatedBy string     `json:"createdBy,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	DoneAt    *time.Time `json:"doneAt,omitempty"`
}

// Validate checks task fields before persistence.
func (t Task) Validate() error {
	if t.TenantID == "" {
		return errors.New("tasks: missing tenant")
	}
	if t.Title == "" {
		return errors.New("tasks: missing title")
	}
	return nil
}

// Repository persists tasks.
type Repository interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, tenantID, id string) (*Task, error)
	List(ctx context.Context, tenantID, status string) ([]Task, error)
	MarkDone(ctx context.Context, tenantID, id string, at time.Time) error
	Delete(ctx context.Context, tenantID, id string) error
}
