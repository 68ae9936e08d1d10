// Package http exposes the operator task board.
package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"harborgrid-cloud/internal/audit"
	"harborgrid-cloud/internal/auth"
	tasks "harborgrid-cloud/internal/tasks/domain"
)

// TasksHandler serves /api/v1/tasks and subpaths.
type TasksHandler struct {
	repo        tasks.Repository
	auditLogger audit.Logger
	logger      *log.Logger
}

// NewTasksHandler constructs a TasksHandler. auditLogger may be nil to
// disable audit trails.
func NewTasksHandler(repo tasks.Repository, auditLogger audit.Logger, logger *log.Logger) (*TasksHandler, error) {
	if repo == nil {
		return nil, errors.New("tasks handler: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &TasksHandler{repo: repo, auditLogger: auditLogger, logger: logger}, nil
}

func (h *TasksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/tasks"), "/")
	switch {
	case rest == "" && r.Method == http.MethodGet:
		h.list(w, r, tenantID)
	case rest == "" && r.Method == http.MethodPost:
		h.create(w, r, tenantID)
	case strings.HasSuffix(rest, "/done") && r.Method == http.MethodPost:
		h.done(w, r, tenantID, strings.TrimSuffix(rest, "/done"))
	case rest != "" && r.Method == http.MethodGet:
		h.get(w, r, tenantID, rest)
	case rest != "" && r.Method == http.MethodDelete:
		h.delete(w, r, tenantID, rest)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *TasksHandler) list(w http.ResponseWriter, r *http.Request, tenantID string) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", tasks.StatusOpen, tasks.StatusDone:
	default:
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}
	result, err := h.repo.List(r.Context(), tenantID, status)
	if err != nil {
		h.logger.Printf("tasks list error: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if result == nil {
		result = []tasks.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": result})
}

func (h *TasksHandler) create(w http.ResponseWriter, r *http.Request, tenantID string) {
	var task tasks.Task
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&task); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	task.TenantID = tenantID
	task.Status = tasks.StatusOpen
	task.CreatedBy = auth.SubjectFromContext(r.Context())
	if task.ID == "" {
		task.ID = "task-" + uuid.NewString()
	}
	if err := task.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.repo.Create(r.Context(), &task); err != nil {
		h.logger.Printf("task create error: %v", err)
		http.Error(w, "create failed", http.StatusInternalServerError)
		return
	}
	h.logAudit(r, "task.create", task.ID, task.ZoneID, map[string]any{"title": task.Title})
	writeJSON(w, http.StatusCreated, task)
}

func (h *TasksHandler) get(w http.ResponseWriter, r *http.Request, tenantID, id string) {
	task, err := h.repo.Get(r.Context(), tenantID, id)
	if err != nil {
		h.logger.Printf("task get error: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if task == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TasksHandler) done(w http.ResponseWriter, r *http.Request, tenantID, id string) {
	if err := h.repo.MarkDone(r.Context(), tenantID, id, time.Now().UTC()); err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Printf("task done error: %v", err)
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	h.logAudit(r, "task.done", id, "", nil)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": tasks.StatusDone})
}

func (h *TasksHandler) delete(w http.ResponseWriter, r *http.Request, tenantID, id string) {
	if err := h.repo.Delete(r.Context(), tenantID, id); err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Printf("task delete error: %v", err)
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	h.logAudit(r, "task.delete", id, "", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TasksHandler) logAudit(r *http.Request, action, taskID, zoneID string, meta map[string]any) {
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
		ResourceType: "task",
		ResourceID:   taskID,
		ZoneID:       zoneID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}); err != nil {
		h.logger.Printf("audit %s error: %v", action, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
