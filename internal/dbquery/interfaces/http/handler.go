// Package http exposes the structured query endpoint.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"harborgrid-cloud/internal/auth"
	"harborgrid-cloud/internal/dbquery"
	"harborgrid-cloud/internal/observability/metrics"
)

const maxQueryRows = 1000

// Runner executes validated queries. Satisfied by dbquery.Executor.
type Runner interface {
	Select(ctx context.Context, role auth.Role, q dbquery.Query) ([]map[string]any, error)
	SelectAggregate(ctx context.Context, role auth.Role, agg dbquery.Aggregate) ([]map[string]any, error)
}

// queryRequest is the POST /api/v1/query body. Exactly one of query or
// aggregate must be set.
type queryRequest struct {
	Query     *dbquery.Query     `json:"query,omitempty"`
	Aggregate *dbquery.Aggregate `json:"aggregate,omitempty"`
}

// QueryHandler serves structured read queries for dashboard widgets.
type QueryHandler struct {
	runner Runner
	logger *log.Logger
}

// NewQueryHandler constructs a QueryHandler.
func NewQueryHandler(runner Runner, logger *log.Logger) (*QueryHandler, error) {
	if runner == nil {
		return nil, errors.New("query handler: nil runner")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &QueryHandler{runner: runner, logger: logger}, nil
}

func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}
	role := auth.RoleFromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if (req.Query == nil) == (req.Aggregate == nil) {
		http.Error(w, "exactly one of query or aggregate required", http.StatusBadRequest)
		return
	}

	kind := "select"
	if req.Aggregate != nil {
		kind = "aggregate"
	}
	start := time.Now()

	var rows []map[string]any
	var err error
	if req.Query != nil {
		q := *req.Query
		q.Filters = withTenantFilter(q.Filters, tenantID)
		if q.Limit == 0 || q.Limit > maxQueryRows {
			q.Limit = maxQueryRows
		}
		rows, err = h.runner.Select(r.Context(), role, q)
	} else {
		agg := *req.Aggregate
		agg.Filters = withTenantFilter(agg.Filters, tenantID)
		rows, err = h.runner.SelectAggregate(r.Context(), role, agg)
	}
	if err != nil {
		metrics.ObserveQuery(kind, "error", time.Since(start))
		h.writeError(w, err)
		return
	}
	metrics.ObserveQuery(kind, "ok", time.Since(start))

	if rows == nil {
		rows = []map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"rows": rows, "count": len(rows)})
}

// withTenantFilter prepends the tenant scope. Caller-supplied tenant_id
// filters are kept but can only narrow within the tenant.
func withTenantFilter(filters []dbquery.Filter, tenantID string) []dbquery.Filter {
	scoped := make([]dbquery.Filter, 0, len(filters)+1)
	scoped = append(scoped, dbquery.Filter{Column: "tenant_id", Op: dbquery.OpEq, Value: tenantID})
	return append(scoped, filters...)
}

func (h *QueryHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dbquery.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, dbquery.ErrInvalidIdentifier),
		errors.Is(err, dbquery.ErrEmptyList),
		errors.Is(err, dbquery.ErrUnsafeStatement):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Printf("query error: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
	}
}
