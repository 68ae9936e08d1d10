package eventing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := NewInMemoryBus()
	got := 0
	SubscribeTyped(bus, "a", func(ctx context.Context, event TelemetryReceived) error {
		got++
		return nil
	})
	SubscribeTyped(bus, "b", func(ctx context.Context, event TelemetryReceived) error {
		got++
		return nil
	})

	err := bus.Publish(context.Background(), TelemetryReceived{ZoneID: "zone-1", At: time.Now()})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
}

func TestBus_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := NewInMemoryBus()
	boom := errors.New("boom")
	delivered := false
	SubscribeTyped(bus, "failing", func(ctx context.Context, event TelemetryReceived) error {
		return boom
	})
	SubscribeTyped(bus, "ok", func(ctx context.Context, event TelemetryReceived) error {
		delivered = true
		return nil
	})

	err := bus.Publish(context.Background(), TelemetryReceived{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !delivered {
		t.Fatal("second subscriber not reached")
	}
}

func TestBus_TypeMismatch(t *testing.T) {
	bus := NewInMemoryBus()
	var got error
	bus.Subscribe(TelemetryReceived{}.EventType(), "raw", func(ctx context.Context, event Event) error {
		return nil
	})
	SubscribeTyped(bus, "typed", func(ctx context.Context, event NotificationRaised) error {
		return nil
	})
	got = bus.Publish(context.Background(), TelemetryReceived{})
	if got != nil {
		t.Fatalf("unexpected error: %v", got)
	}
}
