package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"macropipe/internal/config"
	"macropipe/internal/infrastructure"
	"macropipe/internal/services"
	"macropipe/internal/store"
	"macropipe/pkg/contracts/domain"
)

// issue is one row of the integrity report.
type issue struct {
	Series string
	Date   string
	Column string
	Kind   string
}

func main() {
	configPath := flag.String("config", "", "configuration file (defaults to config.yaml lookup)")
	inDir := flag.String("in", "", "directory of observation CSVs to audit (defaults to the raw data directory)")
	outFile := flag.String("out", "", "report CSV path (defaults to integrity_report.csv in the input directory)")
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

	if *inDir == "" {
		*inDir = cfg.Paths.RawPath()
	}
	if *outFile == "" {
		*outFile = filepath.Join(*inDir, "integrity_report.csv")
	}

	issues, audited, err := audit(cfg, *inDir, logger)
	if err != nil {
		logger.Error("audit failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := writeReport(*outFile, issues); err != nil {
		logger.Error("failed to write report", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("integrity audit complete",
		slog.Int("files_audited", audited),
		slog.Int("issues", len(issues)),
		slog.String("report", *outFile))
	if len(issues) > 0 {
		os.Exit(2)
	}
}

// audit loads every CSV under dir as an observation series and records
// business dates absent from the index plus present dates with missing
// values. The report CSV itself is skipped when re-running in place.
func audit(cfg *config.Config, dir string, logger *slog.Logger) ([]issue, int, error) {
	files, err := store.NewDiscovery(dir).FindCSVFiles(".")
	if err != nil {
		return nil, 0, err
	}

	cal := services.BuildCalendar(cfg)
	csvStore := store.NewCSVStore(dir, logger)

	var issues []issue
	audited := 0
	for _, f := range files {
		if f.Name == "integrity_report.csv" {
			continue
		}
		name := strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
		series, err := csvStore.LoadMacro(f.Name, name)
		if err != nil {
			logger.Warn("skipping unreadable file",
				slog.String("file", f.Name), slog.String("error", err.Error()))
			continue
		}
		audited++

		start, end, ok := series.Range()
		if !ok {
			continue
		}
		expected, err := cal.BusinessDates(start, end)
		if err != nil {
			return nil, audited, fmt.Errorf("%s: %w", f.Name, err)
		}

		series.SortByDate()
		for _, d := range expected {
			idx, present := series.DateIndex(d)
			if !present {
				issues = append(issues, issue{
					Series: name,
					Date:   d.Format("2006-01-02"),
					Kind:   "missing_date",
				})
				continue
			}
			for _, col := range series.Columns {
				if domain.IsMissing(col.Values[idx]) {
					issues = append(issues, issue{
						Series: name,
						Date:   d.Format("2006-01-02"),
						Column: col.Name,
						Kind:   "missing_value",
					})
				}
			}
		}
	}
	return issues, audited, nil
}

func writeReport(path string, issues []issue) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"series", "date", "column", "issue"}); err != nil {
		return err
	}
	for _, is := range issues {
		if err := w.Write([]string{is.Series, is.Date, is.Column, is.Kind}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}
