// Package http exposes the advisor analyze and schedule endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"harborgrid-cloud/internal/advisor"
	"harborgrid-cloud/internal/auth"
	forecastdomain "harborgrid-cloud/internal/forecast/domain"
)

const maxQuestionLength = 4000

// Analyzer is the agent surface the handler needs.
type Analyzer interface {
	Analyze(ctx context.Context, tenantID string, role auth.Role, question string) (advisor.Analysis, error)
}

// AnalyzeHandler serves POST /api/v1/advisor/analyze.
type AnalyzeHandler struct {
	agent  Analyzer
	logger *log.Logger
}

// NewAnalyzeHandler constructs an AnalyzeHandler.
func NewAnalyzeHandler(agent Analyzer, logger *log.Logger) (*AnalyzeHandler, error) {
	if agent == nil {
		return nil, errors.New("analyze handler: nil agent")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &AnalyzeHandler{agent: agent, logger: logger}, nil
}

func (h *AnalyzeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}

	var body struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if body.Question == "" || len(body.Question) > maxQuestionLength {
		http.Error(w, "invalid question", http.StatusBadRequest)
		return
	}

	analysis, err := h.agent.Analyze(r.Context(), tenantID, auth.RoleFromContext(r.Context()), body.Question)
	if err != nil {
		h.logger.Printf("advisor analyze error: %v", err)
		http.Error(w, "analysis failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// ScheduleHandler serves GET /api/v1/advisor/schedule.
type ScheduleHandler struct {
	planner *advisor.Planner
	repo    forecastdomain.Repository
	logger  *log.Logger
}

// NewScheduleHandler constructs a ScheduleHandler.
func NewScheduleHandler(planner *advisor.Planner, repo forecastdomain.Repository, logger *log.Logger) (*ScheduleHandler, error) {
	if planner == nil {
		return nil, errors.New("schedule handler: nil planner")
	}
	if repo == nil {
		return nil, errors.New("schedule handler: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ScheduleHandler{planner: planner, repo: repo, logger: logger}, nil
}

func (h *ScheduleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}

	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 72 {
			http.Error(w, "invalid hours", http.StatusBadRequest)
			return
		}
		hours = parsed
	}
	top := 10
	if raw := r.URL.Query().Get("top"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			http.Error(w, "invalid top", http.StatusBadRequest)
			return
		}
		top = parsed
	}

	now := time.Now().UTC()
	estimates, err := h.repo.Range(r.Context(), tenantID, now, now.Add(time.Duration(hours)*time.Hour))
	if err != nil {
		h.logger.Printf("schedule forecast range error: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	windows := h.planner.PlanWindows(now, hours, estimates)
	if len(windows) > top {
		windows = windows[:top]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":    now,
		"hours":   hours,
		"windows": windows,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
