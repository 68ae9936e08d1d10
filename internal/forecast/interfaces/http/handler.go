// Package http exposes the PV forecast read API.
package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"harborgrid-cloud/internal/auth"
	"harborgrid-cloud/internal/forecast/domain"
)

const maxHorizonHours = 168

// ForecastHandler serves GET /api/v1/forecast/pv.
type ForecastHandler struct {
	repo   domain.Repository
	logger *log.Logger
}

// NewForecastHandler constructs a ForecastHandler.
func NewForecastHandler(repo domain.Repository, logger *log.Logger) (*ForecastHandler, error) {
	if repo == nil {
		return nil, errors.New("forecast handler: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ForecastHandler{repo: repo, logger: logger}, nil
}

func (h *ForecastHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}

	hours := 48
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxHorizonHours {
			http.Error(w, "invalid hours", http.StatusBadRequest)
			return
		}
		hours = parsed
	}

	now := time.Now().UTC()
	estimates, err := h.repo.Range(r.Context(), tenantID, now, now.Add(time.Duration(hours)*time.Hour))
	if err != nil {
		h.logger.Printf("forecast range error: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if estimates == nil {
		estimates = []domain.Estimate{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"from":      now,
		"hours":     hours,
		"forecasts": estimates,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
