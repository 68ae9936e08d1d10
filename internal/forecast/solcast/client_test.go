package solcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

func newTestHTTPClient() *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.Logger = nil
	return rc
}

func TestClient_FetchParsesForecasts(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"forecasts":[
			{"pv_estimate":12.4,"pv_estimate10":8.1,"pv_estimate90":15.2,"period_end":"2026-08-27T04:30:00Z","period":"PT30M"},
			{"pv_estimate":14.0,"pv_estimate10":9.9,"pv_estimate90":17.5,"period_end":"2026-08-27T05:00:00Z","period":"PT30M"}
		]}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "site-42", "key-1", "tenant-1", WithHTTPClient(newTestHTTPClient()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	estimates, err := client.Fetch(context.Background(), 48)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/rooftop_sites/site-42/forecasts" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer key-1" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if len(estimates) != 2 {
		t.Fatalf("expected 2 estimates, got %d", len(estimates))
	}

	first := estimates[0]
	if first.TenantID != "tenant-1" {
		t.Fatalf("tenant = %q", first.TenantID)
	}
	if first.P10KW != 8.1 || first.P50KW != 12.4 || first.P90KW != 15.2 {
		t.Fatalf("unexpected bands: %+v", first)
	}
	if first.PeriodMinutes != 30 {
		t.Fatalf("period minutes = %d", first.PeriodMinutes)
	}
	want := time.Date(2026, 8, 27, 4, 30, 0, 0, time.UTC)
	if !first.PeriodEnd.Equal(want) {
		t.Fatalf("period end = %v", first.PeriodEnd)
	}
}

func TestClient_FetchReordersCrossedBands(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"forecasts":[
			{"pv_estimate":0.4,"pv_estimate10":0.9,"pv_estimate90":0.1,"period_end":"2026-08-27T18:30:00Z","period":"PT30M"}
		]}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "site-42", "key-1", "tenant-1", WithHTTPClient(newTestHTTPClient()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	estimates, err := client.Fetch(context.Background(), 24)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	got := estimates[0]
	if got.P10KW != 0.1 || got.P50KW != 0.4 || got.P90KW != 0.9 {
		t.Fatalf("bands not reordered: %+v", got)
	}
}

func TestClient_FetchErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "site-42", "key-1", "tenant-1", WithHTTPClient(newTestHTTPClient()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Fetch(context.Background(), 24); err == nil {
		t.Fatal("expected error for 429 response")
	}
}

func TestParsePeriodMinutes(t *testing.T) {
	cases := map[string]int{
		"PT30M": 30,
		"PT5M":  5,
		"PT1H":  60,
		"pt30m": 30,
		"":      30,
		"junk":  30,
	}
	for input, want := range cases {
		if got := parsePeriodMinutes(input); got != want {
			t.Errorf("parsePeriodMinutes(%q) = %d, want %d", input, got, want)
		}
	}
}
