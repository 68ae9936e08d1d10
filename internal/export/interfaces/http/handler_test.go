package http

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"harborgrid-cloud/internal/auth"
	"harborgrid-cloud/internal/export"
)

type fakeSource struct {
	report    *export.DailyReport
	err       error
	gotTenant string
	gotDay    time.Time
}

func (f *fakeSource) DailyReport(ctx context.Context, tenantID string, day time.Time) (*export.DailyReport, error) {
	f.gotTenant = tenantID
	f.gotDay = day
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func TestExportHandler_ServesPDF(t *testing.T) {
	source := &fakeSource{report: &export.DailyReport{
		TenantID:    "tenant-1",
		Day:         time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
		GeneratedAt: time.Now().UTC(),
	}}
	handler, err := NewExportHandler(source, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/exports/daily.pdf?date=2026-08-27", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "tenant-1", auth.RoleViewer, "v@plant"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("content type = %q", got)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("body is not a pdf")
	}
	if source.gotTenant != "tenant-1" {
		t.Fatalf("tenant = %q", source.gotTenant)
	}
	if !source.gotDay.Equal(time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("day = %v", source.gotDay)
	}
}

func TestExportHandler_ServesXLSX(t *testing.T) {
	source := &fakeSource{report: &export.DailyReport{TenantID: "tenant-1", Day: time.Now().UTC()}}
	handler, _ := NewExportHandler(source, nil)

	req := httptest.NewRequest("GET", "/api/v1/exports/daily.xlsx", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "tenant-1", auth.RoleViewer, "v@plant"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got == "" {
		t.Fatal("missing content disposition")
	}
}

func TestExportHandler_RejectsBadDate(t *testing.T) {
	handler, _ := NewExportHandler(&fakeSource{report: &export.DailyReport{}}, nil)
	req := httptest.NewRequest("GET", "/api/v1/exports/daily.pdf?date=27-08-2026", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "tenant-1", auth.RoleViewer, "v@plant"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 400 {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestExportHandler_RequiresTenant(t *testing.T) {
	handler, _ := NewExportHandler(&fakeSource{}, nil)
	req := httptest.NewRequest("GET", "/api/v1/exports/daily.pdf", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 401 {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestExportHandler_SourceError(t *testing.T) {
	handler, _ := NewExportHandler(&fakeSource{err: errors.New("db down")}, nil)
	req := httptest.NewRequest("GET", "/api/v1/exports/daily.xlsx", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "tenant-1", auth.RoleViewer, "v@plant"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 500 {
		t.Fatalf("status = %d", rec.Code)
	}
}
