// Package facility holds masterdata for the plant: zones (cold storage,
// processing lines, ice plant, PV roof) and their tenant ownership.
package facility

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Zone is a monitored area of the facility.
type Zone struct {
	ID        string
	TenantID  string
	Name      string
	Kind      string // cold_storage | processing | ice_plant | pv | utility
	CreatedAt time.Time
}

// ZoneRepository persists zones.
type ZoneRepository struct {
	db *sql.DB
}

// NewZoneRepository constructs a zone repository.
func NewZoneRepository(db *sql.DB) *ZoneRepository {
	if db == nil {
		return nil
	}
	return &ZoneRepository{db: db}
}

// Get loads a zone by id. Returns nil when missing.
func (r *ZoneRepository) Get(ctx context.Context, zoneID string) (*Zone, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("zone repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, name, kind, created_at
FROM zones
WHERE id = $1`, zoneID)
	var zone Zone
	if err := row.Scan(&zone.ID, &zone.TenantID, &zone.Name, &zone.Kind, &zone.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &zone, nil
}

// List returns all zones for a tenant.
func (r *ZoneRepository) List(ctx context.Context, tenantID string) ([]Zone, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("zone repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, name, kind, created_at
FROM zones
WHERE tenant_id = $1
ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	zones := make([]Zone, 0)
	for rows.Next() {
		var zone Zone
		if err := rows.Scan(&zone.ID, &zone.TenantID, &zone.Name, &zone.Kind, &zone.CreatedAt); err != nil {
			return nil, err
		}
		zones = append(zones, zone)
	}
	return zones, rows.Err()
}
