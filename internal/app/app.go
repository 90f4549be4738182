package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/robfig/cron/v3"

	"macropipe/internal/config"
	"macropipe/internal/errors"
	"macropipe/internal/fred"
	"macropipe/internal/infrastructure"
	customMiddleware "macropipe/internal/middleware"
	"macropipe/internal/services"
	"macropipe/internal/store"
	handlers "macropipe/internal/transport/http"
)

const (
	VERSION = "1.0.0"
	AppName = "macropipe"
)

// BuildTime is set at compile time via -ldflags.
var BuildTime = ""

// Application is the dependency container of the web service.
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Persister     *store.Persister
	FredClient    *fred.Client
	DataService   *services.DataService
	HealthService *services.HealthService
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.PipelineMetrics
	Scheduler     *cron.Cron

	otelMiddleware *customMiddleware.OTelMiddleware
}

// NewApplication loads configuration and wires every service.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewApplicationWithConfig(cfg)
}

// NewApplicationWithConfig wires the application around an already-loaded
// configuration. Tests use it to inject temp directories.
func NewApplicationWithConfig(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", VERSION))

	if err := cfg.Paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()
	app.setupScheduler()

	return app, nil
}

// initializeServices wires the persistence, source client, and service layer.
func (a *Application) initializeServices() error {
	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
	if err != nil {
		return fmt.Errorf("failed to create OpenTelemetry middleware: %w", err)
	}
	a.otelMiddleware = otelMiddleware
	a.Metrics = otelMiddleware.Metrics()

	persister, err := store.NewPersister(a.Config.Paths.DatabasePath(), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.Persister = persister

	var fetcher services.ObservationsFetcher
	if a.Config.FRED.APIKey != "" {
		client, err := fred.NewClient(fred.Config{
			APIKey:            a.Config.FRED.APIKey,
			BaseURL:           a.Config.FRED.BaseURL,
			Timeout:           a.Config.FRED.Timeout,
			MaxAttempts:       a.Config.FRED.MaxAttempts,
			RequestsPerSecond: a.Config.FRED.RequestsPerSecond,
			Burst:             a.Config.FRED.Burst,
			CacheTTL:          a.Config.FRED.CacheTTL,
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to create source client: %w", err)
		}
		a.FredClient = client
		fetcher = client
	} else {
		a.Logger.Warn("no FRED api key configured, running from local files only")
	}

	a.DataService = services.NewDataService(a.Config, fetcher, persister, a.Metrics, a.Logger)
	a.HealthService = services.NewHealthService(VERSION, BuildTime, a.Config.Paths, persister, a.DataService, a.Logger)
	return nil
}

// setupRouter configures the HTTP router and all routes.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(a.otelMiddleware.Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.SecurityHeaders)

	errorHandler := errors.NewErrorHandler(a.Logger, false)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout, a.Logger))

			healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
			r.Get("/health", healthHandler.HealthCheck)
			r.Get("/health/ready", healthHandler.ReadinessCheck)
			r.Get("/health/live", healthHandler.LivenessCheck)
			r.Get("/version", healthHandler.Version)
			r.Get("/stats", healthHandler.SystemStats)

			dataHandler := handlers.NewDataHandler(a.DataService, a.Logger, errorHandler)
			r.Mount("/data", dataHandler.Routes())
		})

		// Pipeline runs get a longer timeout than reads.
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.RunTimeout, a.Logger))

			operationsHandler := handlers.NewOperationsHandler(a.DataService, a.Logger, errorHandler)
			r.Mount("/operations", operationsHandler.Routes())
		})
	})

	// Prometheus scrape endpoint stays outside the middleware chain.
	r.Handle("/metrics", handlers.MetricsHandler(a.OTelProviders.PrometheusHTTP))

	a.Router = r
}

// createServer creates the HTTP server.
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// setupScheduler registers the nightly pipeline run when scheduling is
// enabled.
func (a *Application) setupScheduler() {
	if !a.Config.Schedule.Enabled {
		return
	}

	a.Scheduler = cron.New()
	_, err := a.Scheduler.AddFunc(a.Config.Schedule.Cron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.RunTimeout)
		defer cancel()

		a.Logger.InfoContext(ctx, "scheduled pipeline run starting",
			slog.String("cron", a.Config.Schedule.Cron))

		if a.FredClient != nil {
			if err := a.DataService.FetchMacros(ctx); err != nil {
				a.Logger.ErrorContext(ctx, "scheduled fetch failed", slog.String("error", err.Error()))
			}
		}
		report, err := a.DataService.RunPipeline(ctx)
		if err != nil {
			a.Logger.ErrorContext(ctx, "scheduled run failed", slog.String("error", err.Error()))
			return
		}
		a.Logger.InfoContext(ctx, "scheduled run complete",
			slog.String("run_id", report.RunID),
			slog.Int("merged_rows", report.MergedInfo.Rows))
	})
	if err != nil {
		a.Logger.Error("invalid cron expression, scheduler disabled",
			slog.String("cron", a.Config.Schedule.Cron),
			slog.String("error", err.Error()))
		a.Scheduler = nil
	}
}

// Start starts the HTTP server and the scheduler.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting server",
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	if a.Scheduler != nil {
		a.Scheduler.Start()
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if a.Scheduler != nil {
		stopCtx := a.Scheduler.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			a.Logger.WarnContext(ctx, "scheduler jobs still running at shutdown")
		}
	}

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.Persister != nil {
		if err := a.Persister.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "error closing database", slog.String("error", err.Error()))
		}
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return nil
}

// Run runs the application until interrupted.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}
