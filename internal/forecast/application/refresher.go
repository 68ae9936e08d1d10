// Package application drives the periodic forecast refresh.
package application

import (
	"context"
	"errors"
	"log"
	"time"

	"harborgrid-cloud/internal/forecast/domain"
	"harborgrid-cloud/internal/observability/metrics"
)

// Refresher pulls fresh PV forecasts on an interval and persists them.
type Refresher struct {
	source   domain.Source
	repo     domain.Repository
	interval time.Duration
	hours    int
	logger   *log.Logger
}

// NewRefresher constructs a Refresher. Interval defaults to 30m and
// horizon to 48h, matching the upstream forecast cadence.
func NewRefresher(source domain.Source, repo domain.Repository, interval time.Duration, hours int, logger *log.Logger) (*Refresher, error) {
	if source == nil {
		return nil, errors.New("forecast refresher: nil source")
	}
	if repo == nil {
		return nil, errors.New("forecast refresher: nil repository")
	}
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if hours <= 0 {
		hours = 48
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Refresher{
		source:   source,
		repo:     repo,
		interval: interval,
		hours:    hours,
		logger:   logger,
	}, nil
}

// Start runs the refresh loop until ctx is done. One refresh runs
// immediately so the dashboard is not empty until the first tick.
func (r *Refresher) Start(ctx context.Context) {
	if r == nil {
		return
	}
	if err := r.RefreshOnce(ctx); err != nil {
		r.logger.Printf("forecast refresh error: %v", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RefreshOnce(ctx); err != nil {
				r.logger.Printf("forecast refresh error: %v", err)
			}
		}
	}
}

// RefreshOnce fetches and persists a single forecast batch.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	start := time.Now()
	estimates, err := r.source.Fetch(ctx, r.hours)
	if err != nil {
		metrics.ObserveForecastRefresh(metrics.ResultError, time.Since(start))
		return err
	}
	if err := r.repo.Upsert(ctx, estimates); err != nil {
		metrics.ObserveForecastRefresh(metrics.ResultError, time.Since(start))
		return err
	}
	metrics.ObserveForecastRefresh(metrics.ResultSuccess, time.Since(start))
	r.logger.Printf("forecast refreshed: periods=%d horizon=%dh", len(estimates), r.hours)
	return nil
}
