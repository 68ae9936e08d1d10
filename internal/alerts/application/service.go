// Package application evaluates telemetry against alert rules and
// drives the notification lifecycle.
package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	alerts "harborgrid-cloud/internal/alerts/domain"
	"harborgrid-cloud/internal/auth"
	"harborgrid-cloud/internal/eventing"
	"harborgrid-cloud/internal/observability/metrics"
)

// Notifier delivers rendered notifications out of band (webhook etc).
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Event is a notification lifecycle update.
type Event struct {
	Type         string              `json:"type"` // raised | acked | resolved
	Notification alerts.Notification `json:"notification"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service evaluates readings and manages notification state.
type Service struct {
	rules    alerts.RuleRepository
	notes    alerts.NotificationRepository
	bus      *eventing.InMemoryBus
	notifier Notifier
	clock    Clock
	logger   *log.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithNotifier assigns an out-of-band notifier.
func WithNotifier(notifier Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs an alert service.
func NewService(rules alerts.RuleRepository, notes alerts.NotificationRepository, bus *eventing.InMemoryBus, opts ...Option) (*Service, error) {
	if rules == nil || notes == nil {
		return nil, errors.New("alerts: nil repository")
	}
	s := &Service{
		rules:  rules,
		notes:  notes,
		bus:    bus,
		clock:  systemClock{},
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// HandleTelemetryReceived evaluates one reading batch against the
// zone's enabled rules. Bound to the bus in main.
func (s *Service) HandleTelemetryReceived(ctx context.Context, evt eventing.TelemetryReceived) error {
	if evt.TenantID == "" || evt.ZoneID == "" {
		return errors.New("alerts: telemetry missing tenant/zone")
	}
	if len(evt.Values) == 0 {
		return nil
	}

	rules, err := s.rules.ListEnabledByZone(ctx, evt.TenantID, evt.ZoneID)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	for _, rule := range rules {
		value, ok := evt.Values[rule.PointKey]
		if !ok {
			continue
		}
		if err := s.evaluateRule(ctx, evt, rule, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) evaluateRule(ctx context.Context, evt eventing.TelemetryReceived, rule alerts.Rule, value float64) error {
	open, err := s.notes.FindUnresolvedByRule(ctx, evt.TenantID, rule.ID, evt.ZoneID)
	if err != nil {
		return err
	}

	if rule.Triggered(value) {
		if open != nil {
			// Already raised; one notification per breach episode.
			return nil
		}
		return s.raise(ctx, evt, rule, value)
	}

	if open != nil {
		resolvedAt := atOrNow(evt.At, s.clock)
		if err := s.notes.MarkResolved(ctx, open.ID, resolvedAt); err != nil {
			if errors.Is(err, alerts.ErrNotFound) {
				return nil
			}
			return err
		}
		open.Status = alerts.StatusResolved
		open.ResolvedAt = &resolvedAt
		open.Value = value
		s.notify(ctx, "resolved", *open)
	}
	return nil
}

func (s *Service) raise(ctx context.Context, evt eventing.TelemetryReceived, rule alerts.Rule, value float64) error {
	raisedAt := atOrNow(evt.At, s.clock)
	note := alerts.Notification{
		ID:       buildNotificationID(evt.TenantID, rule.ID, evt.ZoneID, raisedAt),
		RuleID:   rule.ID,
		TenantID: evt.TenantID,
		ZoneID:   evt.ZoneID,
		PointKey: rule.PointKey,
		Severity: rule.Severity,
		Message:  buildMessage(rule, value),
		Value:    value,
		Status:   alerts.StatusOpen,
		RaisedAt: raisedAt,
	}
	if err := s.notes.Create(ctx, &note); err != nil {
		return err
	}
	s.notify(ctx, "raised", note)
	return nil
}

// Ack acknowledges an open notification for the caller's tenant.
func (s *Service) Ack(ctx context.Context, tenantID, id string) (*alerts.Notification, error) {
	if id == "" {
		return nil, errors.New("alerts: notification id required")
	}
	note, err := s.notes.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, alerts.ErrNotFound
	}
	if note.Status == alerts.StatusResolved {
		return note, nil
	}
	if note.Status != alerts.StatusAcked {
		ackedAt := s.clock.Now().UTC()
		ackedBy := auth.SubjectFromContext(ctx)
		if err := s.notes.MarkAcked(ctx, note.ID, ackedBy, ackedAt); err != nil {
			return nil, err
		}
		note.Status = alerts.StatusAcked
		note.AckedAt = &ackedAt
		note.AckedBy = ackedBy
		s.notify(ctx, "acked", *note)
	}
	return note, nil
}

// List returns recent notifications.
func (s *Service) List(ctx context.Context, tenantID, status string, limit int) ([]alerts.Notification, error) {
	return s.notes.List(ctx, tenantID, status, limit)
}

func (s *Service) notify(ctx context.Context, eventType string, note alerts.Notification) {
	metrics.IncNotificationEvent(eventType)
	if s.bus != nil {
		err := s.bus.Publish(ctx, eventing.NotificationRaised{
			NotificationID: note.ID,
			RuleID:         note.RuleID,
			TenantID:       note.TenantID,
			ZoneID:         note.ZoneID,
			PointKey:       note.PointKey,
			Severity:       note.Severity,
			Status:         note.Status,
			Message:        note.Message,
			Value:          note.Value,
			At:             s.clock.Now().UTC(),
		})
		if err != nil {
			s.logger.Printf("alerts: publish %s event: %v", eventType, err)
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, Event{Type: eventType, Notification: note})
	}
}

func buildMessage(rule alerts.Rule, value float64) string {
	return fmt.Sprintf("%s %s in %s: %.2f (threshold %s %.2f)",
		rule.Severity, rule.PointKey, rule.ZoneID, value, opSymbol(rule.Op), rule.Threshold)
}

func opSymbol(op alerts.Operator) string {
	switch op {
	case alerts.OperatorGreater:
		return ">"
	case alerts.OperatorGreaterOrEqual:
		return ">="
	case alerts.OperatorLess:
		return "<"
	case alerts.OperatorLessOrEqual:
		return "<="
	default:
		return string(op)
	}
}

func buildNotificationID(tenantID, ruleID, zoneID string, raisedAt time.Time) string {
	sum := sha1.Sum([]byte(tenantID + "|" + ruleID + "|" + zoneID + "|" + raisedAt.Format(time.RFC3339Nano)))
	return "note-" + hex.EncodeToString(sum[:8])
}

func atOrNow(value time.Time, clock Clock) time.Time {
	if value.IsZero() {
		return clock.Now().UTC()
	}
	return value.UTC()
}
