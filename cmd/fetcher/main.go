package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"macropipe/internal/config"
	"macropipe/internal/fred"
	"macropipe/internal/infrastructure"
	"macropipe/internal/services"
)

func main() {
	configPath := flag.String("config", "", "configuration file (defaults to config.yaml lookup)")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall fetch deadline")
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

	if cfg.FRED.APIKey == "" {
		logger.Error("no FRED api key configured; set MACROPIPE_FRED_API_KEY or fred.api_key")
		os.Exit(1)
	}

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

	svc := services.NewDataService(cfg, client, nil, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	if err := svc.FetchMacros(ctx); err != nil {
		logger.Error("fetch failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("fetch complete",
		slog.String("raw_dir", cfg.Paths.RawPath()),
		slog.Duration("duration", time.Since(start)))
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFrom(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.Load()
}
