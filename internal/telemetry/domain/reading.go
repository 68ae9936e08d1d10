package telemetry

import (
	"context"
	"time"
)

// Reading is a raw telemetry value written to storage. Point keys cover
// both power (power_kw, energy_kwh, pv_output_kw) and environment
// (temp_c, humidity_pct, door_open).
type Reading struct {
	TenantID string
	ZoneID   string
	DeviceID string
	PointKey string
	TS       time.Time

	ValueNumeric *float64
	ValueText    *string
	Quality      string
}

// ReadingPoint groups readings at the same timestamp.
type ReadingPoint struct {
	At     time.Time          `json:"at"`
	Values map[string]float64 `json:"values"`
}

// ZoneSnapshot is the most recent value per point key for a zone.
type ZoneSnapshot struct {
	ZoneID string             `json:"zoneId"`
	At     time.Time          `json:"at"`
	Values map[string]float64 `json:"values"`
}

// Repository persists readings.
type Repository interface {
	InsertReadings(ctx context.Context, readings []Reading) error
}

// Query loads readings for charts and the polling fallback.
type Query interface {
	QueryRange(ctx context.Context, tenantID, zoneID string, start, end time.Time) ([]ReadingPoint, error)
	LatestByZone(ctx context.Context, tenantID string) ([]ZoneSnapshot, error)
}
