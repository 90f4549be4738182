package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"macropipe/internal/calendar"
	"macropipe/internal/config"
	"macropipe/internal/dataprocessing"
	apperrors "macropipe/internal/errors"
	"macropipe/internal/infrastructure"
	"macropipe/internal/pipeline"
	"macropipe/internal/store"
	"macropipe/internal/validation"
	"macropipe/pkg/contracts/domain"
)

// MergedTableName is the stable name the merged table is stored under so it
// can be loaded back without knowing which symbol provided the date axis.
const MergedTableName = "merged"

const (
	seriesCacheTTL = 5 * time.Minute
	cachePurge     = 10 * time.Minute
)

// ObservationsFetcher pulls raw observations from the upstream source.
// *fred.Client satisfies it; tests substitute a stub.
type ObservationsFetcher interface {
	Observations(ctx context.Context, seriesID string, start time.Time) (*domain.Series, error)
}

// DataService owns the data lifecycle: fetching raw series, running the
// pipeline over the configured datasets, persisting the outputs, and serving
// reads. It is safe for concurrent use; at most one pipeline run executes at
// a time.
type DataService struct {
	cfg       *config.Config
	logger    *slog.Logger
	raw       *store.CSVStore
	clean     *store.CSVStore
	persister *store.Persister
	fetcher   ObservationsFetcher
	pipe      *pipeline.Pipeline
	cache     *gocache.Cache
	metrics   *infrastructure.PipelineMetrics

	mu         sync.Mutex
	running    bool
	lastReport *pipeline.RunReport
	reports    map[string]*pipeline.RunReport
}

// NewDataService wires the service. fetcher may be nil when every macro
// dataset reads from a file; persister may be nil to disable the database.
func NewDataService(cfg *config.Config, fetcher ObservationsFetcher, persister *store.Persister, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *DataService {
	if logger == nil {
		logger = slog.Default()
	}
	cal := BuildCalendar(cfg)
	return &DataService{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "data_service")),
		raw:       store.NewCSVStore(cfg.Paths.RawPath(), logger),
		clean:     store.NewCSVStore(cfg.Paths.CleanPath(), logger),
		persister: persister,
		fetcher:   fetcher,
		pipe:      pipeline.New(cal, logger, metrics),
		cache:     gocache.New(seriesCacheTTL, cachePurge),
		metrics:   metrics,
		reports:   make(map[string]*pipeline.RunReport),
	}
}

// BuildCalendar constructs the business calendar the configuration describes.
func BuildCalendar(cfg *config.Config) *calendar.Calendar {
	switch cfg.Calendar.Kind {
	case "custom":
		return calendar.New(cfg.HolidayDates())
	case "weekdays":
		return calendar.New(nil)
	default:
		return calendar.NewUSFederal(cfg.Calendar.FromYear, cfg.Calendar.ToYear)
	}
}

// macroFile returns the raw CSV path for a macro dataset.
func macroFile(ds config.MacroDataset) string {
	if ds.File != "" {
		return ds.File
	}
	return ds.Name + ".csv"
}

// FetchMacros pulls every FRED-backed macro dataset and writes it to the raw
// directory. Derived datasets have nothing to fetch and are skipped.
func (s *DataService) FetchMacros(ctx context.Context) error {
	if s.fetcher == nil {
		return apperrors.NewConfigError("no fetcher configured; set fred.api_key", nil)
	}
	start := s.cfg.ObservationStartTime()
	for _, ds := range s.cfg.Datasets.Macros {
		if ds.SeriesID == "" {
			continue
		}
		series, err := s.fetcher.Observations(ctx, ds.SeriesID, start)
		if s.metrics != nil {
			s.metrics.RecordFetch(ctx, ds.SeriesID, err == nil)
		}
		if err != nil {
			return fmt.Errorf("fetch %s: %w", ds.SeriesID, err)
		}
		if err := s.raw.WriteSeries(macroFile(ds), series); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "raw series written",
			slog.String("series_id", ds.SeriesID),
			slog.Int("rows", series.Len()))
	}
	return nil
}

// RunPipeline assembles the configured datasets, executes one pipeline run,
// and persists the cleaned series and the merged table. A second call while
// a run is active returns ErrRunActive.
func (s *DataService) RunPipeline(ctx context.Context) (*pipeline.RunReport, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrRunActive
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	inputs, err := s.buildInputs(ctx)
	if err != nil {
		return nil, err
	}

	report, err := s.pipe.Run(ctx, inputs)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRunError(ctx)
		}
		return nil, err
	}

	if err := s.persist(ctx, report); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastReport = report
	s.reports[report.RunID] = report
	s.mu.Unlock()
	s.cache.Flush()
	return report, nil
}

// buildInputs loads or fetches every configured dataset. Raw macro series
// come from the raw directory when a file exists for them and from the
// upstream source otherwise. The axis price dataset leads the price slice.
func (s *DataService) buildInputs(ctx context.Context) (pipeline.Inputs, error) {
	var inputs pipeline.Inputs

	rawByName := make(map[string]*domain.Series, len(s.cfg.Datasets.Macros))
	for _, ds := range s.cfg.Datasets.Macros {
		if ds.Spread != "" {
			continue
		}
		series, err := s.loadMacro(ctx, ds)
		if err != nil {
			return pipeline.Inputs{}, err
		}
		rawByName[ds.Name] = series
		inputs.Macros = append(inputs.Macros, pipeline.MacroInput{
			Series: series,
			Spec:   macroSpec(ds),
		})
	}
	for _, ds := range s.cfg.Datasets.Macros {
		if ds.Spread == "" {
			continue
		}
		first, ok := rawByName[ds.SpreadOf[0]]
		if !ok {
			return pipeline.Inputs{}, apperrors.NewConfigError(
				fmt.Sprintf("spread %s references unknown dataset %s", ds.Name, ds.SpreadOf[0]), nil)
		}
		second, ok := rawByName[ds.SpreadOf[1]]
		if !ok {
			return pipeline.Inputs{}, apperrors.NewConfigError(
				fmt.Sprintf("spread %s references unknown dataset %s", ds.Name, ds.SpreadOf[1]), nil)
		}
		inputs.Spreads = append(inputs.Spreads, pipeline.SpreadInput{
			Kind:   pipeline.SpreadKind(ds.Spread),
			First:  first,
			Second: second,
			Spec:   macroSpec(ds),
		})
	}

	axis, ok := s.cfg.AxisPrice()
	if !ok {
		return pipeline.Inputs{}, apperrors.NewConfigError("no price dataset marked as the merge axis", nil)
	}
	axisInput, err := s.loadPrice(axis)
	if err != nil {
		return pipeline.Inputs{}, err
	}
	inputs.Prices = append(inputs.Prices, axisInput)
	for _, ds := range s.cfg.Datasets.Prices {
		if ds.Axis {
			continue
		}
		in, err := s.loadPrice(ds)
		if err != nil {
			return pipeline.Inputs{}, err
		}
		inputs.Prices = append(inputs.Prices, in)
	}
	return inputs, nil
}

// loadMacro reads the dataset's raw CSV; when none exists and a series ID is
// configured, it fetches from the source instead.
func (s *DataService) loadMacro(ctx context.Context, ds config.MacroDataset) (*domain.Series, error) {
	series, err := s.raw.LoadMacro(macroFile(ds), ds.Name)
	if err == nil {
		return series, nil
	}
	if ds.SeriesID == "" || s.fetcher == nil || !apperrors.IsType(err, apperrors.ErrTypeStorage) {
		return nil, err
	}
	s.logger.InfoContext(ctx, "raw file missing, fetching from source",
		slog.String("dataset", ds.Name),
		slog.String("series_id", ds.SeriesID))
	fetched, ferr := s.fetcher.Observations(ctx, ds.SeriesID, s.cfg.ObservationStartTime())
	if s.metrics != nil {
		s.metrics.RecordFetch(ctx, ds.SeriesID, ferr == nil)
	}
	if ferr != nil {
		return nil, fmt.Errorf("fetch %s: %w", ds.SeriesID, ferr)
	}
	return fetched, nil
}

// loadPrice reads a price dataset from the raw directory.
func (s *DataService) loadPrice(ds config.PriceDataset) (pipeline.PriceInput, error) {
	spec := pipeline.PriceSpec{Symbol: ds.Symbol, ColumnSuffix: "_" + ds.Symbol}
	ext := strings.ToLower(filepath.Ext(ds.File))
	if ds.Intraday {
		var bars []domain.Bar
		var err error
		if ext == ".xlsx" || ext == ".xls" {
			bars, err = s.raw.LoadBarWorkbook(ds.File, ds.Symbol)
		} else {
			bars, err = s.raw.LoadBars(ds.File, ds.Symbol)
		}
		if err != nil {
			return pipeline.PriceInput{}, err
		}
		return pipeline.PriceInput{Bars: bars, Spec: spec}, nil
	}
	daily, err := s.raw.LoadDaily(ds.File, ds.Symbol)
	if err != nil {
		return pipeline.PriceInput{}, err
	}
	return pipeline.PriceInput{Daily: daily, Spec: spec}, nil
}

// macroSpec translates a config dataset into the pipeline's clean spec.
func macroSpec(ds config.MacroDataset) pipeline.MacroSpec {
	fields := ds.NormalizeFields
	if len(fields) == 0 {
		fields = []string{"value"}
	}
	var thresholds map[string]validation.Threshold
	if len(ds.Thresholds) > 0 {
		thresholds = make(map[string]validation.Threshold, len(ds.Thresholds))
		for field, t := range ds.Thresholds {
			thresholds[field] = validation.Threshold{Min: t.Min, Max: t.Max, MaxDelta: t.MaxDelta}
		}
	}
	return pipeline.MacroSpec{
		Name:            ds.Name,
		NormalizeFields: fields,
		Thresholds:      thresholds,
		FillPolicy:      dataprocessing.FillForward,
	}
}

// persist writes every cleaned series and the merged table to the clean
// directory and, when configured, the database.
func (s *DataService) persist(ctx context.Context, report *pipeline.RunReport) error {
	for _, series := range report.Cleaned {
		if err := s.clean.WriteSeries(series.Name+".csv", series); err != nil {
			return err
		}
		if s.persister != nil {
			if err := s.persister.SaveSeries(ctx, series); err != nil {
				return err
			}
		}
	}

	merged := report.Merged
	merged.Name = MergedTableName
	if err := s.clean.WriteMerged(MergedTableName+".csv.gz", merged); err != nil {
		return err
	}
	if s.persister != nil {
		if err := s.persister.SaveMerged(ctx, merged); err != nil {
			return err
		}
	}
	return nil
}

// GetSeries returns a cleaned series by name, from cache or the database.
func (s *DataService) GetSeries(ctx context.Context, name string) (*domain.Series, error) {
	if cached, found := s.cache.Get("series:" + name); found {
		return cached.(*domain.Series), nil
	}
	if s.persister == nil {
		return nil, ErrSeriesNotFound
	}
	series, err := s.persister.LoadSeries(ctx, name)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, ErrSeriesNotFound
		}
		return nil, err
	}
	s.cache.Set("series:"+name, series, gocache.DefaultExpiration)
	return series, nil
}

// GetMergedTable returns the latest merged table, preferring the in-memory
// result of the last run over the database.
func (s *DataService) GetMergedTable(ctx context.Context) (*domain.MergedTable, error) {
	s.mu.Lock()
	last := s.lastReport
	s.mu.Unlock()
	if last != nil && last.Merged != nil {
		return last.Merged, nil
	}
	if s.persister == nil {
		return nil, ErrNoMergedTable
	}
	merged, err := s.persister.LoadMerged(ctx, MergedTableName)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, ErrNoMergedTable
		}
		return nil, err
	}
	return merged, nil
}

// LastReport returns the report of the most recent completed run.
func (s *DataService) LastReport() (*pipeline.RunReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReport == nil {
		return nil, ErrNoRunYet
	}
	return s.lastReport, nil
}

// GetReport returns the report of a specific run by ID.
func (s *DataService) GetReport(runID string) (*pipeline.RunReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if report, ok := s.reports[runID]; ok {
		return report, nil
	}
	return nil, ErrReportNotFound
}

// Running reports whether a pipeline run is currently executing.
func (s *DataService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ListSeries returns the names of every persisted series.
func (s *DataService) ListSeries(ctx context.Context) ([]string, error) {
	if s.persister == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.lastReport == nil {
			return nil, nil
		}
		names := make([]string, 0, len(s.lastReport.Cleaned))
		for _, series := range s.lastReport.Cleaned {
			names = append(names, series.Name)
		}
		return names, nil
	}
	return s.persister.ListSeries(ctx)
}
