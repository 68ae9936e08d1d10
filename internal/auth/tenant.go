package auth

import (
	"context"
	"database/sql"
	"errors"

	"harborgrid-cloud/internal/facility"
)

var (
	// ErrTenantMismatch indicates resource belongs to a different tenant.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("resource not found")
)

// ZoneTenantChecker validates zone tenant ownership.
type ZoneTenantChecker interface {
	EnsureZoneTenant(ctx context.Context, tenantID, zoneID string) error
}

// ZoneChecker checks zone ownership using facility masterdata.
type ZoneChecker struct {
	repo *facility.ZoneRepository
}

// NewZoneChecker constructs a ZoneChecker.
func NewZoneChecker(db *sql.DB) *ZoneChecker {
	if db == nil {
		return nil
	}
	return &ZoneChecker{repo: facility.NewZoneRepository(db)}
}

// EnsureZoneTenant verifies zone belongs to tenant.
func (c *ZoneChecker) EnsureZoneTenant(ctx context.Context, tenantID, zoneID string) error {
	if c == nil || c.repo == nil {
		return nil
	}
	if tenantID == "" || zoneID == "" {
		return nil
	}
	zone, err := c.repo.Get(ctx, zoneID)
	if err != nil {
		return err
	}
	if zone == nil {
		return ErrNotFound
	}
	if zone.TenantID != tenantID {
		return ErrTenantMismatch
	}
	return nil
}
