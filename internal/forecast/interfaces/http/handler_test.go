package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"harborgrid-cloud/internal/auth"
	"harborgrid-cloud/internal/forecast/domain"
)

type fakeRepo struct {
	estimates []domain.Estimate
	gotTenant string
	gotFrom   time.Time
	gotTo     time.Time
	err       error
}

func (f *fakeRepo) Upsert(ctx context.Context, estimates []domain.Estimate) error { return nil }

func (f *fakeRepo) Range(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Estimate, error) {
	f.gotTenant = tenantID
	f.gotFrom = from
	f.gotTo = to
	return f.estimates, f.err
}

func TestForecastHandler_ReturnsEstimates(t *testing.T) {
	repo := &fakeRepo{estimates: []domain.Estimate{{
		TenantID:      "tenant-1",
		PeriodEnd:     time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC),
		PeriodMinutes: 30,
		P10KW:         4.1,
		P50KW:         8.0,
		P90KW:         11.3,
	}}}
	handler, err := NewForecastHandler(repo, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/forecast/pv?hours=24", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "tenant-1", auth.RoleViewer, "viewer@plant"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if repo.gotTenant != "tenant-1" {
		t.Fatalf("tenant = %q", repo.gotTenant)
	}
	if window := repo.gotTo.Sub(repo.gotFrom); window != 24*time.Hour {
		t.Fatalf("window = %v", window)
	}

	var body struct {
		Hours     int               `json:"hours"`
		Forecasts []domain.Estimate `json:"forecasts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Hours != 24 || len(body.Forecasts) != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Forecasts[0].P50KW != 8.0 {
		t.Fatalf("p50 = %v", body.Forecasts[0].P50KW)
	}
}

func TestForecastHandler_RequiresTenant(t *testing.T) {
	handler, err := NewForecastHandler(&fakeRepo{}, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	req := httptest.NewRequest("GET", "/api/v1/forecast/pv", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 401 {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestForecastHandler_RejectsBadHours(t *testing.T) {
	handler, err := NewForecastHandler(&fakeRepo{}, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	for _, hours := range []string{"0", "-3", "999", "abc"} {
		req := httptest.NewRequest("GET", "/api/v1/forecast/pv?hours="+hours, nil)
		req = req.WithContext(auth.WithIdentity(req.Context(), "tenant-1", auth.RoleViewer, "viewer@plant"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != 400 {
			t.Fatalf("hours=%s status = %d", hours, rec.Code)
		}
	}
}

func TestForecastHandler_RepoError(t *testing.T) {
	handler, err := NewForecastHandler(&fakeRepo{err: errors.New("boom")}, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	req := httptest.NewRequest("GET", "/api/v1/forecast/pv", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "tenant-1", auth.RoleViewer, "viewer@plant"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 500 {
		t.Fatalf("status = %d", rec.Code)
	}
}
