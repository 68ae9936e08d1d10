// Package solcast is a minimal Solcast rooftop-forecast client.
package solcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"harborgrid-cloud/internal/forecast/domain"
)

// Client fetches PV forecasts for a single rooftop site.
type Client struct {
	baseURL  string
	siteID   string
	apiKey   string
	tenantID string
	client   *retryablehttp.Client
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying retrying client.
func WithHTTPClient(hc *retryablehttp.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithClock overrides the fetch timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient constructs a Solcast client.
func NewClient(baseURL, siteID, apiKey, tenantID string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("solcast: empty base url")
	}
	if siteID == "" {
		return nil, errors.New("solcast: empty site id")
	}
	if apiKey == "" {
		return nil, errors.New("solcast: empty api key")
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		siteID:   siteID,
		apiKey:   apiKey,
		tenantID: tenantID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		rc := retryablehttp.NewClient()
		rc.RetryMax = 3
		rc.RetryWaitMin = 500 * time.Millisecond
		rc.RetryWaitMax = 5 * time.Second
		rc.HTTPClient.Timeout = 15 * time.Second
		rc.Logger = nil
		c.client = rc
	}
	return c, nil
}

type forecastsResponse struct {
	Forecasts []forecastItem `json:"forecasts"`
}

type forecastItem struct {
	PVEstimate   float64   `json:"pv_estimate"`
	PVEstimate10 float64   `json:"pv_estimate10"`
	PVEstimate90 float64   `json:"pv_estimate90"`
	PeriodEnd    time.Time `json:"period_end"`
	Period       string    `json:"period"`
}

// Fetch returns normalized estimates covering the next `hours` hours.
func (c *Client) Fetch(ctx context.Context, hours int) ([]domain.Estimate, error) {
	if hours <= 0 {
		hours = 48
	}
	url := fmt.Sprintf("%s/rooftop_sites/%s/forecasts?format=json&hours=%d", c.baseURL, c.siteID, hours)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("solcast: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("solcast: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload forecastsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("solcast: decode: %w", err)
	}

	fetchedAt := c.now().UTC()
	estimates := make([]domain.Estimate, 0, len(payload.Forecasts))
	for _, item := range payload.Forecasts {
		if item.PeriodEnd.IsZero() {
			continue
		}
		estimate := domain.Estimate{
			TenantID:      c.tenantID,
			PeriodEnd:     item.PeriodEnd.UTC(),
			PeriodMinutes: parsePeriodMinutes(item.Period),
			P10KW:         item.PVEstimate10,
			P50KW:         item.PVEstimate,
			P90KW:         item.PVEstimate90,
			FetchedAt:     fetchedAt,
		}
		estimate.Normalize()
		estimates = append(estimates, estimate)
	}
	if len(estimates) == 0 {
		return nil, errors.New("solcast: empty forecast response")
	}
	return estimates, nil
}

// parsePeriodMinutes understands the ISO-8601 durations Solcast emits
// (PT30M, PT1H). Anything else falls back to 30 minutes.
func parsePeriodMinutes(period string) int {
	period = strings.ToUpper(strings.TrimSpace(period))
	if !strings.HasPrefix(period, "PT") {
		return 30
	}
	value := strings.TrimPrefix(period, "PT")
	switch {
	case strings.HasSuffix(value, "M"):
		if minutes, err := strconv.Atoi(strings.TrimSuffix(value, "M")); err == nil && minutes > 0 {
			return minutes
		}
	case strings.HasSuffix(value, "H"):
		if hours, err := strconv.Atoi(strings.TrimSuffix(value, "H")); err == nil && hours > 0 {
			return hours * 60
		}
	}
	return 30
}
