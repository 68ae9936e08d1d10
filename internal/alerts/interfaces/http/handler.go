// Package http exposes alert rule management and the notification feed.
package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	alertapp "harborgrid-cloud/internal/alerts/application"
	alerts "harborgrid-cloud/internal/alerts/domain"
	"harborgrid-cloud/internal/audit"
	"harborgrid-cloud/internal/auth"
)

// RulesHandler serves /api/v1/alerts/rules and subpaths.
type RulesHandler struct {
	rules       alerts.RuleRepository
	checker     auth.ZoneTenantChecker
	auditLogger audit.Logger
	logger      *log.Logger
}

// NewRulesHandler constructs a RulesHandler. checker may be nil, in
// which case zone ownership is not verified on create. auditLogger may
// be nil to disable audit trails.
func NewRulesHandler(rules alerts.RuleRepository, checker auth.ZoneTenantChecker, auditLogger audit.Logger, logger *log.Logger) (*RulesHandler, error) {
	if rules == nil {
		return nil, errors.New("rules handler: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RulesHandler{rules: rules, checker: checker, auditLogger: auditLogger, logger: logger}, nil
}

func (h *RulesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/rules"), "/")
	switch {
	case rest == "" && r.Method == http.MethodGet:
		h.list(w, r, tenantID)
	case rest == "" && r.Method == http.MethodPost:
		h.create(w, r, tenantID)
	case rest != "" && r.Method == http.MethodDelete:
		h.delete(w, r, tenantID, rest)
	case strings.HasSuffix(rest, "/enable") && r.Method == http.MethodPost:
		h.setEnabled(w, r, tenantID, strings.TrimSuffix(rest, "/enable"), true)
	case strings.HasSuffix(rest, "/disable") && r.Method == http.MethodPost:
		h.setEnabled(w, r, tenantID, strings.TrimSuffix(rest, "/disable"), false)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *RulesHandler) list(w http.ResponseWriter, r *http.Request, tenantID string) {
	rules, err := h.rules.List(r.Context(), tenantID)
	if err != nil {
		h.logger.Printf("alert rules list error: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if rules == nil {
		rules = []alerts.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *RulesHandler) create(w http.ResponseWriter, r *http.Request, tenantID string) {
	var rule alerts.Rule
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&rule); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	rule.TenantID = tenantID
	if rule.ID == "" {
		rule.ID = newRuleID()
	}
	if rule.Severity == "" {
		rule.Severity = "warning"
	}
	if err := rule.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.checker != nil && rule.ZoneID != "" {
		if err := h.checker.EnsureZoneTenant(r.Context(), tenantID, rule.ZoneID); err != nil {
			if errors.Is(err, auth.ErrNotFound) || errors.Is(err, auth.ErrTenantMismatch) {
				http.Error(w, "unknown zone", http.StatusBadRequest)
				return
			}
			h.logger.Printf("alert rule zone check error: %v", err)
			http.Error(w, "create failed", http.StatusInternalServerError)
			return
		}
	}
	if err := h.rules.Create(r.Context(), &rule); err != nil {
		h.logger.Printf("alert rule create error: %v", err)
		http.Error(w, "create failed", http.StatusInternalServerError)
		return
	}
	h.logAudit(r, "alert_rule.create", rule.ID, rule.ZoneID, map[string]any{
		"point_key": rule.PointKey,
		"op":        rule.Op,
		"threshold": rule.Threshold,
		"severity":  rule.Severity,
	})
	writeJSON(w, http.StatusCreated, rule)
}

func (h *RulesHandler) delete(w http.ResponseWriter, r *http.Request, tenantID, id string) {
	if err := h.rules.Delete(r.Context(), tenantID, id); err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Printf("alert rule delete error: %v", err)
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	h.logAudit(r, "alert_rule.delete", id, "", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *RulesHandler) setEnabled(w http.ResponseWriter, r *http.Request, tenantID, id string, enabled bool) {
	if err := h.rules.SetEnabled(r.Context(), tenantID, id, enabled); err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Printf("alert rule toggle error: %v", err)
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	action := "alert_rule.disable"
	if enabled {
		action = "alert_rule.enable"
	}
	h.logAudit(r, action, id, "", map[string]any{"enabled": enabled})
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": enabled})
}

func (h *RulesHandler) logAudit(r *http.Request, action, ruleID, zoneID string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		return
	}
	var payload json.RawMessage
	if meta != nil {
		payload, _ = json.Marshal(meta)
	}
	if err := h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "alert_rule",
		ResourceID:   ruleID,
		ZoneID:       zoneID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}); err != nil {
		h.logger.Printf("audit %s error: %v", action, err)
	}
}

// NotificationsHandler serves /api/v1/notifications and ack.
type NotificationsHandler struct {
	service     *alertapp.Service
	auditLogger audit.Logger
	logger      *log.Logger
}

// NewNotificationsHandler constructs a NotificationsHandler.
// auditLogger may be nil to disable audit trails.
func NewNotificationsHandler(service *alertapp.Service, auditLogger audit.Logger, logger *log.Logger) (*NotificationsHandler, error) {
	if service == nil {
		return nil, errors.New("notifications handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &NotificationsHandler{service: service, auditLogger: auditLogger, logger: logger}, nil
}

func (h *NotificationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/notifications"), "/")
	switch {
	case rest == "" && r.Method == http.MethodGet:
		h.list(w, r, tenantID)
	case strings.HasSuffix(rest, "/ack") && r.Method == http.MethodPost:
		h.ack(w, r, tenantID, strings.TrimSuffix(rest, "/ack"))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *NotificationsHandler) list(w http.ResponseWriter, r *http.Request, tenantID string) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", alerts.StatusOpen, alerts.StatusAcked, alerts.StatusResolved:
	default:
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	notes, err := h.service.List(r.Context(), tenantID, status, limit)
	if err != nil {
		h.logger.Printf("notifications list error: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if notes == nil {
		notes = []alerts.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notes})
}

func (h *NotificationsHandler) ack(w http.ResponseWriter, r *http.Request, tenantID, id string) {
	note, err := h.service.Ack(r.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Printf("notification ack error: %v", err)
		http.Error(w, "ack failed", http.StatusInternalServerError)
		return
	}
	if h.auditLogger != nil {
		meta, _ := json.Marshal(map[string]any{"severity": note.Severity, "rule_id": note.RuleID})
		if err := h.auditLogger.Log(r.Context(), audit.Entry{
			TenantID:     tenantID,
			Actor:        auth.SubjectFromContext(r.Context()),
			Role:         string(auth.RoleFromContext(r.Context())),
			Action:       "notification.ack",
			ResourceType: "notification",
			ResourceID:   note.ID,
			ZoneID:       note.ZoneID,
			Metadata:     meta,
			IP:           audit.ClientIP(r),
			UserAgent:    r.UserAgent(),
		}); err != nil {
			h.logger.Printf("audit notification.ack error: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, note)
}

func newRuleID() string {
	return "rule-" + uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
