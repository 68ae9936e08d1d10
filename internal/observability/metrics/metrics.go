package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "harborgrid_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	queryRequests *prometheus.CounterVec
	queryLatency  *prometheus.HistogramVec

	liveClients    prometheus.Gauge
	liveDropped    prometheus.Counter
	liveBroadcasts prometheus.Counter

	advisorRuns      *prometheus.CounterVec
	advisorLatency   *prometheus.HistogramVec
	advisorToolCalls *prometheus.CounterVec

	forecastRefreshTotal   *prometheus.CounterVec
	forecastRefreshLatency *prometheus.HistogramVec

	notificationEvents *prometheus.CounterVec

	exportTotal *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		queryRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "query_requests_total",
				Help: "Total dynamic query requests by kind and result",
			},
			[]string{"kind", "result"},
		)
		queryLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "query_latency_seconds",
				Help:    "Dynamic query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "result"},
		)

		liveClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "live_clients",
				Help: "Connected live feed clients",
			},
		)
		liveDropped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "live_clients_dropped_total",
				Help: "Live clients dropped for slow consumption",
			},
		)
		liveBroadcasts = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "live_broadcasts_total",
				Help: "Frames broadcast on the live feed",
			},
		)

		advisorRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "advisor_runs_total",
				Help: "Total advisor agent runs by result",
			},
			[]string{"result"},
		)
		advisorLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "advisor_latency_seconds",
				Help:    "Advisor agent latency in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
			},
			[]string{"result"},
		)
		advisorToolCalls = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "advisor_tool_calls_total",
				Help: "Advisor tool invocations by tool and result",
			},
			[]string{"tool", "result"},
		)

		forecastRefreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "forecast_refresh_total",
				Help: "Forecast refresh attempts by result",
			},
			[]string{"result"},
		)
		forecastRefreshLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "forecast_refresh_latency_seconds",
				Help:    "Forecast refresh latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		notificationEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notification_events_total",
				Help: "Notification lifecycle events by type",
			},
			[]string{"event"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Report exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			queryRequests,
			queryLatency,
			liveClients,
			liveDropped,
			liveBroadcasts,
			advisorRuns,
			advisorLatency,
			advisorToolCalls,
			forecastRefreshTotal,
			forecastRefreshLatency,
			notificationEvents,
			exportTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// ObserveQuery records dynamic query latency and result.
func ObserveQuery(kind, result string, duration time.Duration) {
	if kind == "" {
		kind = "select"
	}
	if result == "" {
		result = resultSuccess
	}
	if queryRequests != nil {
		queryRequests.WithLabelValues(kind, result).Inc()
	}
	if queryLatency != nil {
		queryLatency.WithLabelValues(kind, result).Observe(duration.Seconds())
	}
}

// SetLiveClients sets the connected live client gauge.
func SetLiveClients(count int) {
	if liveClients != nil {
		liveClients.Set(float64(count))
	}
}

// IncLiveDropped increments the dropped slow client counter.
func IncLiveDropped() {
	if liveDropped != nil {
		liveDropped.Inc()
	}
}

// IncLiveBroadcast increments the broadcast frame counter.
func IncLiveBroadcast() {
	if liveBroadcasts != nil {
		liveBroadcasts.Inc()
	}
}

// ObserveAdvisorRun records an advisor run.
func ObserveAdvisorRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if advisorRuns != nil {
		advisorRuns.WithLabelValues(result).Inc()
	}
	if advisorLatency != nil {
		advisorLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncAdvisorToolCall records a tool invocation from the agent loop.
func IncAdvisorToolCall(tool, result string) {
	if tool == "" {
		tool = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if advisorToolCalls != nil {
		advisorToolCalls.WithLabelValues(tool, result).Inc()
	}
}

// ObserveForecastRefresh records a forecast refresh attempt.
func ObserveForecastRefresh(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if forecastRefreshTotal != nil {
		forecastRefreshTotal.WithLabelValues(result).Inc()
	}
	if forecastRefreshLatency != nil {
		forecastRefreshLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncNotificationEvent increments notification lifecycle counters.
func IncNotificationEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if notificationEvents != nil {
		notificationEvents.WithLabelValues(event).Inc()
	}
}

// IncExport records a report export.
func IncExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
