package eventing

import "time"

// TelemetryReceived is published after a measurement batch is stored.
type TelemetryReceived struct {
	TenantID string
	ZoneID   string
	DeviceID string
	At       time.Time
	Values   map[string]float64
}

// EventType implements Event.
func (TelemetryReceived) EventType() string { return "telemetry.received" }

// NotificationRaised is published when an alert rule opens or resolves
// a notification.
type NotificationRaised struct {
	NotificationID string
	RuleID         string
	TenantID       string
	ZoneID         string
	PointKey       string
	Severity       string
	Status         string
	Message        string
	Value          float64
	At             time.Time
}

// EventType implements Event.
func (NotificationRaised) EventType() string { return "notification.raised" }
