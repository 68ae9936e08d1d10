// Package config loads service configuration from environment
// variables with an optional YAML override file.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML strings like "10m" into a time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// TariffPeriod is one daily tariff band. Start and end are wall-clock
// times in 15:04 form; a band may wrap midnight.
type TariffPeriod struct {
	Kind        string  `yaml:"kind"`
	Start       string  `yaml:"start"`
	End         string  `yaml:"end"`
	PricePerKWh float64 `yaml:"price_per_kwh"`
}

// SolcastConfig holds the PV forecast source settings.
type SolcastConfig struct {
	BaseURL string `yaml:"base_url"`
	SiteID  string `yaml:"site_id"`
	APIKey  string `yaml:"api_key"`
}

// AdvisorConfig holds the analytics agent settings.
type AdvisorConfig struct {
	Model         string `yaml:"model"`
	MaxIterations int    `yaml:"max_iterations"`
	MaxTokens     int    `yaml:"max_tokens"`
}

// AlertsConfig holds notification delivery settings.
type AlertsConfig struct {
	WebhookURL   string   `yaml:"webhook_url"`
	Cooldown     Duration `yaml:"cooldown"`
	DedupeWindow Duration `yaml:"dedupe_window"`
}

// Config is the full service configuration.
type Config struct {
	DatabaseURL       string `yaml:"database_url"`
	HTTPAddr          string `yaml:"http_addr"`
	TenantID          string `yaml:"tenant_id"`
	JWTSecret         string `yaml:"jwt_secret"`
	IngestSecret      string `yaml:"ingest_secret"`
	IngestSkewSeconds int    `yaml:"ingest_skew_seconds"`

	Solcast                 SolcastConfig `yaml:"solcast"`
	ForecastRefreshInterval Duration      `yaml:"forecast_refresh_interval"`
	ForecastHorizonHours    int           `yaml:"forecast_horizon_hours"`

	Advisor AdvisorConfig `yaml:"advisor"`
	Alerts  AlertsConfig  `yaml:"alerts"`

	// PlannerLoadKW is the facility's typical controllable load, used
	// to credit PV output against tariff prices.
	PlannerLoadKW float64        `yaml:"planner_load_kw"`
	TariffPeriods []TariffPeriod `yaml:"tariff_periods"`
}

// Load reads configuration from the environment, then applies the YAML
// file named by CONFIG_FILE on top when set.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:             getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:                getenvDefault("HTTP_ADDR", ":8080"),
		TenantID:                getenvDefault("TENANT_ID", "tenant-demo"),
		JWTSecret:               getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:            getenvDefault("INGEST_HMAC_SECRET", ""),
		IngestSkewSeconds:       getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
		ForecastRefreshInterval: Duration(getenvDuration("FORECAST_REFRESH_INTERVAL", 30*time.Minute)),
		ForecastHorizonHours:    getenvIntDefault("FORECAST_HORIZON_HOURS", 48),
		PlannerLoadKW:           getenvFloatDefault("PLANNER_LOAD_KW", 0),
		Solcast: SolcastConfig{
			BaseURL: getenvDefault("SOLCAST_BASE_URL", "https://api.solcast.com.au"),
			SiteID:  getenvDefault("SOLCAST_SITE_ID", ""),
			APIKey:  getenvDefault("SOLCAST_API_KEY", ""),
		},
		Advisor: AdvisorConfig{
			Model:         getenvDefault("ADVISOR_MODEL", ""),
			MaxIterations: getenvIntDefault("ADVISOR_MAX_ITERATIONS", 0),
			MaxTokens:     getenvIntDefault("ADVISOR_MAX_TOKENS", 0),
		},
		Alerts: AlertsConfig{
			WebhookURL:   getenvDefault("ALERT_WEBHOOK_URL", ""),
			Cooldown:     Duration(getenvDuration("ALERT_NOTIFY_COOLDOWN", 0)),
			DedupeWindow: Duration(getenvDuration("ALERT_NOTIFY_DEDUP_WINDOW", 0)),
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("config: DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("config: AUTH_JWT_SECRET is required")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
