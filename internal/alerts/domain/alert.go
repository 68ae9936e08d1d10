// Package domain holds alert rules and notifications.
package domain

import (
	"context"
	"errors"
	"time"
)

// Operator compares a reading value against a rule threshold.
type Operator string

const (
	OperatorGreater        Operator = "gt"
	OperatorGreaterOrEqual Operator = "gte"
	OperatorLess           Operator = "lt"
	OperatorLessOrEqual    Operator = "lte"
)

// Notification status lifecycle.
const (
	StatusOpen     = "open"
	StatusAcked    = "acked"
	StatusResolved = "resolved"
)

// ErrNotFound marks a missing rule or notification.
var ErrNotFound = errors.New("alerts: not found")

// Rule watches one point in one zone against a threshold.
type Rule struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	ZoneID    string    `json:"zoneId"`
	PointKey  string    `json:"pointKey"`
	Op        Operator  `json:"op"`
	Threshold float64   `json:"threshold"`
	Severity  string    `json:"severity"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks rule fields before persistence.
func (r Rule) Validate() error {
	if r.TenantID == "" {
		return errors.New("alerts: rule missing tenant")
	}
	if r.ZoneID == "" {
		return errors.New("alerts: rule missing zone")
	}
	if r.PointKey == "" {
		return errors.New("alerts: rule missing point key")
	}
	switch r.Op {
	case OperatorGreater, OperatorGreaterOrEqual, OperatorLess, OperatorLessOrEqual:
	default:
		return errors.New("alerts: unknown operator")
	}
	switch r.Severity {
	case "info", "warning", "critical":
	default:
		return errors.New("alerts: unknown severity")
	}
	return nil
}

// Triggered reports whether value breaches the rule.
func (r Rule) Triggered(value float64) bool {
	switch r.Op {
	case OperatorGreater:
		return value > r.Threshold
	case OperatorGreaterOrEqual:
		return value >= r.Threshold
	case OperatorLess:
		return value < r.Threshold
	case OperatorLessOrEqual:
		return value <= r.Threshold
	default:
		return false
	}
}

// Notification is an open or historical alert occurrence.
type Notification struct {
	ID         string     `json:"id"`
	RuleID     string     `json:"ruleId"`
	TenantID   string     `json:"tenantId"`
	ZoneID     string     `json:"zoneId"`
	PointKey   string     `json:"pointKey"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	Status     string     `json:"status"`
	RaisedAt   time.Time  `json:"raisedAt"`
	AckedAt    *time.Time `json:"ackedAt,omitempty"`
	AckedBy    string     `json:"ackedBy,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// RuleRepository persists alert rules.
type RuleRepository interface {
	Create(ctx context.Context, rule *Rule) error
	Get(ctx context.Context, tenantID, id string) (*Rule, error)
	List(ctx context.Context, tenantID string) ([]Rule, error)
	ListEnabledByZone(ctx context.Context, tenantID, zoneID string) ([]Rule, error)
	SetEnabled(ctx context.Context, tenantID, id string, enabled bool) error
	Delete(ctx context.Context, tenantID, id string) error
}

// NotificationRepository persists notifications.
type NotificationRepository interface {
	Create(ctx context.Context, note *Notification) error
	Get(ctx context.Context, tenantID, id string) (*Notification, error)
	FindUnresolvedByRule(ctx context.Context, tenantID, ruleID, zoneID string) (*Notification, error)
	List(ctx context.Context, tenantID, status string, limit int) ([]Notification, error)
	MarkAcked(ctx context.Context, id, ackedBy string, at time.Time) error
	MarkResolved(ctx context.Context, id string, at time.Time) error
}
