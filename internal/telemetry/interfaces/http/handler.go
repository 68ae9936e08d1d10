package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"harborgrid-cloud/internal/auth"
	"harborgrid-cloud/internal/eventing"
	"harborgrid-cloud/internal/observability/metrics"
	telemetry "harborgrid-cloud/internal/telemetry/domain"
)

// IngestHandler handles telemetry ingestion from the edge gateway.
type IngestHandler struct {
	repo   telemetry.Repository
	bus    *eventing.InMemoryBus
	logger *log.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(repo telemetry.Repository, bus *eventing.InMemoryBus, logger *log.Logger) (*IngestHandler, error) {
	if repo == nil {
		return nil, errors.New("telemetry ingest: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{repo: repo, bus: bus, logger: logger}, nil
}

// ServeHTTP ingests telemetry data.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Printf("telemetry ingest: read body error: %v", err)
		metrics.IncIngestError("read_body")
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Printf("telemetry ingest: decode error: %v", err)
		metrics.IncIngestError("decode")
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	readings, events, err := req.toReadings()
	if err != nil {
		h.logger.Printf("telemetry ingest: invalid payload: %v", err)
		metrics.IncIngestError("payload")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if err := h.repo.InsertReadings(r.Context(), readings); err != nil {
		h.logger.Printf("telemetry ingest: insert error: %v", err)
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		http.Error(w, "insert error", http.StatusInternalServerError)
		return
	}

	if h.bus != nil {
		for _, event := range events {
			if err := h.bus.Publish(r.Context(), event); err != nil {
				// Fanout failures must not fail the ingest.
				h.logger.Printf("telemetry ingest: event fanout: %v", err)
			}
		}
	}
	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))

	resp := map[string]any{"inserted": len(readings)}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type ingestRequest struct {
	TenantID string             `json:"tenantId"`
	ZoneID   string             `json:"zoneId"`
	DeviceID string             `json:"deviceId"`
	TS       int64              `json:"ts"`
	Values   map[string]float64 `json:"values"`
	Quality  string             `json:"quality"`
	Points   []ingestPoint      `json:"points"`
}

type ingestPoint struct {
	TS      int64              `json:"ts"`
	Values  map[string]float64 `json:"values"`
	Quality string             `json:"quality"`
}

func (r ingestRequest) toReadings() ([]telemetry.Reading, []eventing.TelemetryReceived, error) {
	if r.TenantID == "" || r.ZoneID == "" || r.DeviceID == "" {
		return nil, nil, errors.New("missing tenantId/zoneId/deviceId")
	}

	points := r.Points
	if len(points) == 0 && r.TS != 0 {
		points = []ingestPoint{{TS: r.TS, Values: r.Values, Quality: r.Quality}}
	}
	if len(points) == 0 {
		return nil, nil, errors.New("no telemetry points")
	}

	readings := make([]telemetry.Reading, 0, len(points))
	events := make([]eventing.TelemetryReceived, 0, len(points))
	for _, point := range points {
		ts, err := parseTimestamp(point.TS)
		if err != nil {
			return nil, nil, err
		}
		if len(point.Values) == 0 {
			return nil, nil, errors.New("empty values")
		}
		for key, value := range point.Values {
			v := value
			readings = append(readings, telemetry.Reading{
				TenantID:     r.TenantID,
				ZoneID:       r.ZoneID,
				DeviceID:     r.DeviceID,
				PointKey:     key,
				TS:           ts,
				ValueNumeric: &v,
				Quality:      point.Quality,
			})
		}
		events = append(events, eventing.TelemetryReceived{
			TenantID: r.TenantID,
			ZoneID:   r.ZoneID,
			DeviceID: r.DeviceID,
			At:       ts,
			Values:   point.Values,
		})
	}
	return readings, events, nil
}

func parseTimestamp(value int64) (time.Time, error) {
	if value <= 0 {
		return time.Time{}, errors.New("invalid ts")
	}
	// Accept milliseconds or seconds.
	if value > 1_000_000_000_000 {
		return time.UnixMilli(value).UTC(), nil
	}
	return time.Unix(value, 0).UTC(), nil
}

// ReadingsHandler serves time-range series and the latest snapshot.
type ReadingsHandler struct {
	query telemetry.Query
}

// NewReadingsHandler constructs a readings handler.
func NewReadingsHandler(query telemetry.Query) (*ReadingsHandler, error) {
	if query == nil {
		return nil, errors.New("readings handler: nil query")
	}
	return &ReadingsHandler{query: query}, nil
}

// ServeHTTP handles GET /api/v1/readings and /api/v1/readings/latest.
func (h *ReadingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if r.URL.Path == "/api/v1/readings/latest" {
		snapshots, err := h.query.LatestByZone(r.Context(), tenantID)
		if err != nil {
			http.Error(w, "query error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"zones": snapshots})
		return
	}

	zoneID := r.URL.Query().Get("zone")
	if zoneID == "" {
		http.Error(w, "zone is required", http.StatusBadRequest)
		return
	}
	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		start = parsed.UTC()
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		end = parsed.UTC()
	}
	if raw := r.URL.Query().Get("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			http.Error(w, "invalid hours", http.StatusBadRequest)
			return
		}
		start = end.Add(-time.Duration(hours) * time.Hour)
	}
	if !start.Before(end) {
		http.Error(w, "empty range", http.StatusBadRequest)
		return
	}

	points, err := h.query.QueryRange(r.Context(), tenantID, zoneID, start, end)
	if err != nil {
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"zone": zoneID, "from": start, "to": end, "points": points})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
