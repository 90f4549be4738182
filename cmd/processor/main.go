package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"macropipe/internal/config"
	"macropipe/internal/fred"
	"macropipe/internal/infrastructure"
	"macropipe/internal/services"
	"macropipe/internal/store"
)

func main() {
	configPath := flag.String("config", "", "configuration file (defaults to config.yaml lookup)")
	noDB := flag.Bool("no-db", false, "skip the SQLite store and write CSV output only")
	jsonOut := flag.Bool("json", false, "print the full run report as JSON to stdout")
	flag.Parse()

	if err := godotenv.Load(); err == nil {
		slog.Info(".env file loaded")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := cfg.Paths.EnsureDirectories(); err != nil {
		logger.Error("failed to create data directories", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var persister *store.Persister
	if !*noDB {
		persister, err = store.NewPersister(cfg.Paths.DatabasePath(), logger)
		if err != nil {
			logger.Error("failed to open SQLite store", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer persister.Close()
	}

	// A fetcher is only needed when a raw file is missing; run without one
	// when no API key is configured.
	var fetcher services.ObservationsFetcher
	if cfg.FRED.APIKey != "" {
		client, err := fred.NewClient(fred.Config{
			APIKey:            cfg.FRED.APIKey,
			BaseURL:           cfg.FRED.BaseURL,
			Timeout:           cfg.FRED.Timeout,
			MaxAttempts:       cfg.FRED.MaxAttempts,
			RequestsPerSecond: cfg.FRED.RequestsPerSecond,
			Burst:             cfg.FRED.Burst,
			CacheTTL:          cfg.FRED.CacheTTL,
		}, logger)
		if err != nil {
			logger.Error("failed to create FRED client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		fetcher = client
	}

	svc := services.NewDataService(cfg, fetcher, persister, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.RunTimeout)
	defer cancel()

	report, err := svc.RunPipeline(ctx)
	if err != nil {
		logger.Error("pipeline run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("pipeline run complete",
		slog.String("run_id", report.RunID),
		slog.Duration("duration", report.Duration),
		slog.Int("macro_series", len(report.Macro)),
		slog.Int("price_series", len(report.Price)),
		slog.Int("merged_rows", report.MergedInfo.Rows),
		slog.String("clean_dir", cfg.Paths.CleanPath()))

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Error("failed to encode report", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}
