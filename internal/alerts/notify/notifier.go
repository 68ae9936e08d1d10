// Package notify delivers alert notifications to external channels
// with cooldown and dedupe guards.
package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	alertapp "harborgrid-cloud/internal/alerts/application"
	alerts "harborgrid-cloud/internal/alerts/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders and sends notification events via a channel,
// suppressing repeats inside the cooldown and dedupe windows.
type Notifier struct {
	channel  Channel
	template *Template
	clock    Clock
	logger   *log.Logger

	mu           sync.Mutex
	sent         map[string]sendRecord
	cooldown     time.Duration
	dedupeWindow time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithCooldown sets a minimum interval between notifications for the
// same notification and event type.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical content within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotifier constructs a notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:  channel,
		template: template,
		clock:    systemClock{},
		logger:   log.Default(),
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements application.Notifier.
func (n *Notifier) Notify(ctx context.Context, event alertapp.Event) {
	if n == nil || n.channel == nil {
		return
	}
	content, err := n.template.Render(buildTemplateData(event))
	if err != nil {
		n.logger.Printf("alert notifier: render: %v", err)
		return
	}
	if !n.shouldSend(event.Notification.ID, event.Type, content) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		n.logger.Printf("alert notifier: send: %v", err)
		return
	}
	n.markSent(event.Notification.ID, event.Type, content)
}

func buildTemplateData(event alertapp.Event) TemplateData {
	note := event.Notification
	return TemplateData{
		Zone:       note.ZoneID,
		Point:      note.PointKey,
		Value:      fmt.Sprintf("%.2f", note.Value),
		Message:    note.Message,
		Severity:   note.Severity,
		RaisedAt:   note.RaisedAt.UTC().Format(time.RFC3339),
		Status:     statusLabel(note.Status),
		Event:      event.Type,
		EventLabel: eventLabel(event.Type),
	}
}

func statusLabel(status string) string {
	switch status {
	case alerts.StatusOpen:
		return "open"
	case alerts.StatusAcked:
		return "acknowledged"
	case alerts.StatusResolved:
		return "resolved"
	default:
		return status
	}
}

func eventLabel(event string) string {
	switch event {
	case "raised":
		return "Raised"
	case "acked":
		return "Acknowledged"
	case "resolved":
		return "Resolved"
	default:
		return event
	}
}

func (n *Notifier) shouldSend(noteID, eventType, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := noteID + "|" + eventType
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(noteID, eventType, content string) {
	key := noteID + "|" + eventType
	now := n.clock.Now().UTC()
	n.mu.Lock()
	n.pruneLocked(now)
	n.sent[key] = sendRecord{
		at:   now,
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

// pruneLocked drops records past both suppression windows so the map
// does not grow with every notification ever sent. Callers hold n.mu.
func (n *Notifier) pruneLocked(now time.Time) {
	retention := n.cooldown
	if n.dedupeWindow > retention {
		retention = n.dedupeWindow
	}
	if retention <= 0 {
		return
	}
	for key, record := range n.sent {
		if now.Sub(record.at) >= retention {
			delete(n.sent, key)
		}
	}
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}
