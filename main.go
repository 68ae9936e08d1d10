package main

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"harborgrid-cloud/internal/advisor"
	advisorhttp "harborgrid-cloud/internal/advisor/interfaces/http"
	alertapp "harborgrid-cloud/internal/alerts/application"
	alertrepo "harborgrid-cloud/internal/alerts/infrastructure/postgres"
	alerthttp "harborgrid-cloud/internal/alerts/interfaces/http"
	alertnotify "harborgrid-cloud/internal/alerts/notify"
	"harborgrid-cloud/internal/audit"
	"harborgrid-cloud/internal/auth"
	"harborgrid-cloud/internal/config"
	"harborgrid-cloud/internal/dbquery"
	dbqueryhttp "harborgrid-cloud/internal/dbquery/interfaces/http"
	"harborgrid-cloud/internal/eventing"
	"harborgrid-cloud/internal/export"
	exporthttp "harborgrid-cloud/internal/export/interfaces/http"
	forecastapp "harborgrid-cloud/internal/forecast/application"
	forecastrepo "harborgrid-cloud/internal/forecast/infrastructure/postgres"
	forecasthttp "harborgrid-cloud/internal/forecast/interfaces/http"
	"harborgrid-cloud/internal/forecast/solcast"
	"harborgrid-cloud/internal/live"
	"harborgrid-cloud/internal/observability/metrics"
	"harborgrid-cloud/internal/storage"
	taskrepo "harborgrid-cloud/internal/tasks/infrastructure/postgres"
	taskhttp "harborgrid-cloud/internal/tasks/interfaces/http"
	telemetrypostgres "harborgrid-cloud/internal/telemetry/infrastructure/postgres"
	telemetryhttp "harborgrid-cloud/internal/telemetry/interfaces/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)
	ctx := context.Background()

	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db); err != nil {
		logger.Fatalf("db migrate error: %v", err)
	}

	metrics.Init(db, logger)
	bus := eventing.NewInMemoryBus()
	zoneChecker := auth.NewZoneChecker(db)
	auditRepo := audit.NewRepository(db)

	readingRepo := telemetrypostgres.NewReadingRepository(db)
	readingQuery := telemetrypostgres.NewReadingQuery(db)
	ingestHandler, err := telemetryhttp.NewIngestHandler(readingRepo, bus, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	readingsHandler, err := telemetryhttp.NewReadingsHandler(readingQuery)
	if err != nil {
		logger.Fatalf("readings handler error: %v", err)
	}

	hub := live.NewHub(logger)
	eventing.SubscribeTyped(bus, "live.telemetry", func(ctx context.Context, evt eventing.TelemetryReceived) error {
		hub.Broadcast("telemetry", evt)
		return nil
	})
	eventing.SubscribeTyped(bus, "live.notifications", func(ctx context.Context, evt eventing.NotificationRaised) error {
		hub.Broadcast("notification", evt)
		return nil
	})

	ruleRepo, err := alertrepo.NewRuleRepository(db)
	if err != nil {
		logger.Fatalf("alert rule repo error: %v", err)
	}
	noteRepo, err := alertrepo.NewNotificationRepository(db)
	if err != nil {
		logger.Fatalf("notification repo error: %v", err)
	}
	var alertNotifiers []alertapp.Notifier
	if cfg.Alerts.WebhookURL != "" {
		channel := alertnotify.NewWebhookChannel(cfg.Alerts.WebhookURL)
		notifier, err := alertnotify.NewNotifier(channel, nil,
			alertnotify.WithCooldown(cfg.Alerts.Cooldown.Std()),
			alertnotify.WithDedupeWindow(cfg.Alerts.DedupeWindow.Std()),
			alertnotify.WithLogger(logger),
		)
		if err != nil {
			logger.Fatalf("alert notifier error: %v", err)
		}
		alertNotifiers = append(alertNotifiers, notifier)
	}
	alertService, err := alertapp.NewService(ruleRepo, noteRepo, bus,
		alertapp.WithLogger(logger),
		alertapp.WithNotifier(alertnotify.NewMultiNotifier(alertNotifiers...)))
	if err != nil {
		logger.Fatalf("alert service error: %v", err)
	}
	eventing.SubscribeTyped(bus, "alerts.telemetry", alertService.HandleTelemetryReceived)
	rulesHandler, err := alerthttp.NewRulesHandler(ruleRepo, zoneChecker, auditRepo, logger)
	if err != nil {
		logger.Fatalf("rules handler error: %v", err)
	}
	notificationsHandler, err := alerthttp.NewNotificationsHandler(alertService, auditRepo, logger)
	if err != nil {
		logger.Fatalf("notifications handler error: %v", err)
	}

	forecastStore, err := forecastrepo.NewForecastRepository(db)
	if err != nil {
		logger.Fatalf("forecast repo error: %v", err)
	}
	if cfg.Solcast.SiteID != "" && cfg.Solcast.APIKey != "" {
		source, err := solcast.NewClient(cfg.Solcast.BaseURL, cfg.Solcast.SiteID, cfg.Solcast.APIKey, cfg.TenantID)
		if err != nil {
			logger.Fatalf("solcast client error: %v", err)
		}
		refresher, err := forecastapp.NewRefresher(source, forecastStore, cfg.ForecastRefreshInterval.Std(), cfg.ForecastHorizonHours, logger)
		if err != nil {
			logger.Fatalf("forecast refresher error: %v", err)
		}
		go refresher.Start(ctx)
	} else {
		logger.Printf("solcast disabled: site id or api key not configured")
	}
	forecastHandler, err := forecasthttp.NewForecastHandler(forecastStore, logger)
	if err != nil {
		logger.Fatalf("forecast handler error: %v", err)
	}

	executor, err := dbquery.NewExecutor(db, dbquery.NewBuilder())
	if err != nil {
		logger.Fatalf("query executor error: %v", err)
	}
	queryHandler, err := dbqueryhttp.NewQueryHandler(executor, logger)
	if err != nil {
		logger.Fatalf("query handler error: %v", err)
	}

	queryTool, err := advisor.NewQueryDataTool(executor)
	if err != nil {
		logger.Fatalf("query tool error: %v", err)
	}
	forecastTool, err := advisor.NewPVForecastTool(forecastStore)
	if err != nil {
		logger.Fatalf("forecast tool error: %v", err)
	}
	agentOpts := []advisor.AgentOption{advisor.WithLogger(logger)}
	if cfg.Advisor.Model != "" {
		agentOpts = append(agentOpts, advisor.WithModel(cfg.Advisor.Model))
	}
	if cfg.Advisor.MaxIterations > 0 {
		agentOpts = append(agentOpts, advisor.WithMaxIterations(cfg.Advisor.MaxIterations))
	}
	if cfg.Advisor.MaxTokens > 0 {
		agentOpts = append(agentOpts, advisor.WithMaxTokens(int64(cfg.Advisor.MaxTokens)))
	}
	agent, err := advisor.NewAgent(anthropic.NewClient(), []advisor.Tool{queryTool, forecastTool}, agentOpts...)
	if err != nil {
		logger.Fatalf("advisor agent error: %v", err)
	}
	analyzeHandler, err := advisorhttp.NewAnalyzeHandler(agent, logger)
	if err != nil {
		logger.Fatalf("analyze handler error: %v", err)
	}
	periods := advisor.DefaultTariffPeriods()
	if len(cfg.TariffPeriods) > 0 {
		periods = periods[:0]
		for _, p := range cfg.TariffPeriods {
			periods = append(periods, advisor.TariffPeriod{
				Kind:        advisor.TariffKind(p.Kind),
				Start:       p.Start,
				End:         p.End,
				PricePerKWh: p.PricePerKWh,
			})
		}
	}
	planner, err := advisor.NewPlanner(periods, cfg.PlannerLoadKW)
	if err != nil {
		logger.Fatalf("planner error: %v", err)
	}
	scheduleHandler, err := advisorhttp.NewScheduleHandler(planner, forecastStore, logger)
	if err != nil {
		logger.Fatalf("schedule handler error: %v", err)
	}

	taskStore, err := taskrepo.NewTaskRepository(db)
	if err != nil {
		logger.Fatalf("task repo error: %v", err)
	}
	tasksHandler, err := taskhttp.NewTasksHandler(taskStore, auditRepo, logger)
	if err != nil {
		logger.Fatalf("tasks handler error: %v", err)
	}

	summaryQuery, err := export.NewSummaryQuery(db)
	if err != nil {
		logger.Fatalf("export summary error: %v", err)
	}
	exportHandler, err := exporthttp.NewExportHandler(summaryQuery, logger)
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.IngestSecret), time.Duration(cfg.IngestSkewSeconds)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/ingest/telemetry", ingestAuth.Wrap(ingestHandler))
	mux.Handle("/api/v1/readings", readingsHandler)
	mux.Handle("/api/v1/readings/latest", readingsHandler)
	mux.Handle("/api/v1/live", hub)
	mux.Handle("/api/v1/query", queryHandler)
	mux.Handle("/api/v1/forecast/pv", forecastHandler)
	mux.Handle("/api/v1/advisor/analyze", analyzeHandler)
	mux.Handle("/api/v1/advisor/schedule", scheduleHandler)
	mux.Handle("/api/v1/alerts/rules", rulesHandler)
	mux.Handle("/api/v1/alerts/rules/", rulesHandler)
	mux.Handle("/api/v1/notifications", notificationsHandler)
	mux.Handle("/api/v1/notifications/", notificationsHandler)
	mux.Handle("/api/v1/tasks", tasksHandler)
	mux.Handle("/api/v1/tasks/", tasksHandler)
	mux.Handle("/api/v1/exports/daily.xlsx", exportHandler)
	mux.Handle("/api/v1/exports/daily.pdf", exportHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack keeps websocket upgrades working behind the logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}
