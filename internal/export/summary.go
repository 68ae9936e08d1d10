package export

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"
)

// SummaryQuery aggregates readings and open notifications into a
// DailyReport straight from Postgres.
type SummaryQuery struct {
	db  *sql.DB
	now func() time.Time
}

// NewSummaryQuery constructs a SummaryQuery.
func NewSummaryQuery(db *sql.DB) (*SummaryQuery, error) {
	if db == nil {
		return nil, errors.New("export summary: nil db")
	}
	return &SummaryQuery{db: db, now: time.Now}, nil
}

// DailyReport builds the per-zone summary for the day containing day's
// date in UTC. Energy comes from the cumulative energy_kwh register,
// power and temperature from the raw samples.
func (q *SummaryQuery) DailyReport(ctx context.Context, tenantID string, day time.Time) (*DailyReport, error) {
	if tenantID == "" {
		return nil, errors.New("export summary: empty tenant")
	}
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	rows, err := q.db.QueryContext(ctx, `
SELECT zone_id,
	COALESCE(MAX(value_numeric) FILTER (WHERE point_key = 'energy_kwh')
		- MIN(value_numeric) FILTER (WHERE point_key = 'energy_kwh'), 0),
	COALESCE(AVG(value_numeric) FILTER (WHERE point_key = 'power_kw'), 0),
	MIN(value_numeric) FILTER (WHERE point_key = 'temp_c'),
	MAX(value_numeric) FILTER (WHERE point_key = 'temp_c')
FROM readings
WHERE tenant_id = $1
	AND ts >= $2
	AND ts < $3
GROUP BY zone_id`, tenantID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byZone := make(map[string]*ZoneDaily)
	for rows.Next() {
		var zone ZoneDaily
		var minTemp, maxTemp sql.NullFloat64
		if err := rows.Scan(&zone.ZoneID, &zone.EnergyKWh, &zone.AvgPowerKW, &minTemp, &maxTemp); err != nil {
			return nil, err
		}
		if minTemp.Valid && maxTemp.Valid {
			zone.MinTempC = minTemp.Float64
			zone.MaxTempC = maxTemp.Float64
			zone.HasTemp = true
		}
		byZone[zone.ZoneID] = &zone
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := q.countOpenAlerts(ctx, tenantID, start, end, byZone); err != nil {
		return nil, err
	}

	zoneIDs := make([]string, 0, len(byZone))
	for zoneID := range byZone {
		zoneIDs = append(zoneIDs, zoneID)
	}
	sort.Strings(zoneIDs)

	report := &DailyReport{
		TenantID:    tenantID,
		Day:         start,
		Zones:       make([]ZoneDaily, 0, len(zoneIDs)),
		GeneratedAt: q.now().UTC(),
	}
	for _, zoneID := range zoneIDs {
		report.Zones = append(report.Zones, *byZone[zoneID])
	}
	return report, nil
}

func (q *SummaryQuery) countOpenAlerts(ctx context.Context, tenantID string, start, end time.Time, byZone map[string]*ZoneDaily) error {
	rows, err := q.db.QueryContext(ctx, `
SELECT zone_id, COUNT(*)
FROM notifications
WHERE tenant_id = $1
	AND raised_at >= $2
	AND raised_at < $3
	AND status IN ('open', 'acked')
GROUP BY zone_id`, tenantID, start, end)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var zoneID string
		var count int
		if err := rows.Scan(&zoneID, &count); err != nil {
			return err
		}
		zone := byZone[zoneID]
		if zone == nil {
			// Alerts on a zone with no readings for the day still show up.
			zone = &ZoneDaily{ZoneID: zoneID}
			byZone[zoneID] = zone
		}
		zone.OpenAlerts = count
	}
	return rows.Err()
}
