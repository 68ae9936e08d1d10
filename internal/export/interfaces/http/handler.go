// Package http serves daily report downloads.
package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"harborgrid-cloud/internal/auth"
	"harborgrid-cloud/internal/export"
	"harborgrid-cloud/internal/observability/metrics"
)

// ReportSource builds the daily summary.
type ReportSource interface {
	DailyReport(ctx context.Context, tenantID string, day time.Time) (*export.DailyReport, error)
}

// ExportHandler serves /api/v1/exports/daily.{xlsx,pdf}.
type ExportHandler struct {
	source ReportSource
	logger *log.Logger
	now    func() time.Time
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(source ReportSource, logger *log.Logger) (*ExportHandler, error) {
	if source == nil {
		return nil, errors.New("export handler: nil source")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ExportHandler{source: source, logger: logger, now: time.Now}, nil
}

func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return
	}

	var format string
	switch {
	case strings.HasSuffix(r.URL.Path, "/daily.xlsx"):
		format = "xlsx"
	case strings.HasSuffix(r.URL.Path, "/daily.pdf"):
		format = "pdf"
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	day := h.now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		day = parsed
	}

	report, err := h.source.DailyReport(r.Context(), tenantID, day)
	if err != nil {
		metrics.IncExport(format, "error")
		h.logger.Printf("export summary error: %v", err)
		http.Error(w, "report failed", http.StatusInternalServerError)
		return
	}

	var body []byte
	var contentType string
	switch format {
	case "xlsx":
		body, err = export.BuildDailyXLSX(report)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		body, err = export.BuildDailyPDF(report)
		contentType = "application/pdf"
	}
	if err != nil {
		metrics.IncExport(format, "error")
		h.logger.Printf("export render error: %v", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	metrics.IncExport(format, "ok")
	filename := fmt.Sprintf("daily-%s.%s", report.Day.Format("2006-01-02"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
