// Package domain holds the PV forecast model.
package domain

import (
	"context"
	"sort"
	"time"
)

// Estimate is one forecast period for a tenant's rooftop PV array.
// Power values are kW at the inverter, for the interval ending at
// PeriodEnd.
type Estimate struct {
	TenantID      string    `json:"tenantId"`
	PeriodEnd     time.Time `json:"periodEnd"`
	PeriodMinutes int       `json:"periodMinutes"`
	P10KW         float64   `json:"p10Kw"`
	P50KW         float64   `json:"p50Kw"`
	P90KW         float64   `json:"p90Kw"`
	FetchedAt     time.Time `json:"fetchedAt"`
}

// Normalize restores the percentile ordering P10 <= P50 <= P90.
// Upstream occasionally emits crossed bands near sunrise and sunset;
// they are sorted rather than rejected.
func (e *Estimate) Normalize() {
	values := []float64{e.P10KW, e.P50KW, e.P90KW}
	for i, v := range values {
		if v < 0 {
			values[i] = 0
		}
	}
	sort.Float64s(values)
	e.P10KW, e.P50KW, e.P90KW = values[0], values[1], values[2]
}

// Repository persists forecast estimates.
type Repository interface {
	Upsert(ctx context.Context, estimates []Estimate) error
	Range(ctx context.Context, tenantID string, from, to time.Time) ([]Estimate, error)
}

// Source fetches fresh estimates from an upstream provider.
type Source interface {
	Fetch(ctx context.Context, hours int) ([]Estimate, error)
}
