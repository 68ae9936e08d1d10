package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	telemetry "harborgrid-cloud/internal/telemetry/domain"
)

// ReadingQuery is a Postgres query implementation.
type ReadingQuery struct {
	db    *sql.DB
	table string
}

// QueryOption configures the reading query.
type QueryOption func(*ReadingQuery)

// WithQueryTable overrides the default table name for queries.
func WithQueryTable(table string) QueryOption {
	return func(query *ReadingQuery) {
		if query != nil && table != "" {
			query.table = table
		}
	}
}

// NewReadingQuery constructs a query with default table name.
func NewReadingQuery(db *sql.DB, opts ...QueryOption) *ReadingQuery {
	query := &ReadingQuery{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(query)
	}
	return query
}

// QueryRange returns reading points within [start, end).
func (q *ReadingQuery) QueryRange(ctx context.Context, tenantID, zoneID string, start, end time.Time) ([]telemetry.ReadingPoint, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("reading query: nil db")
	}
	if tenantID == "" || zoneID == "" || start.IsZero() || end.IsZero() {
		return nil, errors.New("reading query: invalid arguments")
	}

	rows, err := q.db.QueryContext(ctx, `
SELECT ts, point_key, value_numeric
FROM `+q.table+`
WHERE tenant_id = $1
	AND zone_id = $2
	AND ts >= $3
	AND ts < $4
ORDER BY ts ASC`, tenantID, zoneID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byTime := make(map[time.Time]map[string]float64)
	order := make([]time.Time, 0)

	for rows.Next() {
		var ts time.Time
		var pointKey string
		var value sql.NullFloat64
		if err := rows.Scan(&ts, &pointKey, &value); err != nil {
			return nil, err
		}
		if !value.Valid {
			continue
		}
		values := byTime[ts]
		if values == nil {
			values = make(map[string]float64)
			byTime[ts] = values
			order = append(order, ts)
		}
		values[pointKey] = value.Float64
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })
	points := make([]telemetry.ReadingPoint, 0, len(order))
	for _, ts := range order {
		points = append(points, telemetry.ReadingPoint{At: ts, Values: byTime[ts]})
	}
	return points, nil
}

// LatestByZone returns the most recent value per point key for every
// zone of the tenant. Used by the dashboard snapshot endpoint and the
// live client's polling fallback.
func (q *ReadingQuery) LatestByZone(ctx context.Context, tenantID string) ([]telemetry.ZoneSnapshot, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("reading query: nil db")
	}
	if tenantID == "" {
		return nil, errors.New("reading query: empty tenant")
	}

	rows, err := q.db.QueryContext(ctx, `
SELECT DISTINCT ON (zone_id, point_key) zone_id, point_key, ts, value_numeric
FROM `+q.table+`
WHERE tenant_id = $1
ORDER BY zone_id, point_key, ts DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byZone := make(map[string]*telemetry.ZoneSnapshot)
	zoneOrder := make([]string, 0)

	for rows.Next() {
		var zoneID, pointKey string
		var ts time.Time
		var value sql.NullFloat64
		if err := rows.Scan(&zoneID, &pointKey, &ts, &value); err != nil {
			return nil, err
		}
		if !value.Valid {
			continue
		}
		snapshot := byZone[zoneID]
		if snapshot == nil {
			snapshot = &telemetry.ZoneSnapshot{ZoneID: zoneID, Values: make(map[string]float64)}
			byZone[zoneID] = snapshot
			zoneOrder = append(zoneOrder, zoneID)
		}
		snapshot.Values[pointKey] = value.Float64
		if ts.After(snapshot.At) {
			snapshot.At = ts
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Strings(zoneOrder)
	snapshots := make([]telemetry.ZoneSnapshot, 0, len(zoneOrder))
	for _, zoneID := range zoneOrder {
		snapshots = append(snapshots, *byZone[zoneID])
	}
	return snapshots, nil
}
