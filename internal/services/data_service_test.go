package services

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macropipe/internal/config"
	apperrors "macropipe/internal/errors"
	"macropipe/internal/store"
	"macropipe/pkg/contracts/domain"
)

type stubFetcher struct {
	mu     sync.Mutex
	calls  []string
	series map[string]*domain.Series
	err    error
}

func (f *stubFetcher) Observations(ctx context.Context, seriesID string, start time.Time) (*domain.Series, error) {
	f.mu.Lock()
	f.calls = append(f.calls, seriesID)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.series[seriesID]
	if !ok {
		return nil, apperrors.NewNotFoundError("series " + seriesID)
	}
	return s.Clone(), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig builds a config over a temp data tree with one fetched macro,
// two file-backed spread legs, a derived credit spread, and a daily axis
// price.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Calendar.Kind = "weekdays"
	cfg.Datasets = config.DatasetsConfig{
		Macros: []config.MacroDataset{
			{SeriesID: "DGS10", Name: "yield_10y", File: "dgs10.csv"},
			{Name: "baa", File: "baa.csv"},
			{Name: "aaa", File: "aaa.csv"},
			{Name: "credit_spread", Spread: "credit", SpreadOf: []string{"baa", "aaa"}},
		},
		Prices: []config.PriceDataset{
			{Symbol: "SPY", File: "spy.csv", Axis: true},
		},
	}
	require.NoError(t, cfg.Paths.EnsureDirectories())
	require.NoError(t, cfg.Validate())
	return cfg
}

func writeRaw(t *testing.T, cfg *config.Config, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.RawPath(), name), []byte(content), 0644))
}

// writeFixtures covers the business week Mon 2024-01-01 through Fri
// 2024-01-05. The ten-year yield skips Wednesday entirely and leaves
// Thursday blank, so the clean flow has one row to synthesize and one cell
// to fill.
func writeFixtures(t *testing.T, cfg *config.Config) {
	t.Helper()
	writeRaw(t, cfg, "dgs10.csv", "date,value\n"+
		"2024-01-01,4.0\n2024-01-02,4.1\n2024-01-04,\n2024-01-05,4.3\n")
	writeRaw(t, cfg, "baa.csv", "date,value\n"+
		"2024-01-01,6.5\n2024-01-02,6.5\n2024-01-03,6.5\n2024-01-04,6.5\n2024-01-05,6.5\n")
	writeRaw(t, cfg, "aaa.csv", "date,value\n"+
		"2024-01-01,5.5\n2024-01-02,5.5\n2024-01-03,5.5\n2024-01-04,5.5\n2024-01-05,5.5\n")
	writeRaw(t, cfg, "spy.csv", "date,open,high,low,close,volume\n"+
		"2024-01-01,470,472,469,471,1000\n"+
		"2024-01-02,471,473,470,472,1100\n"+
		"2024-01-03,472,474,471,473,1200\n"+
		"2024-01-04,473,475,472,474,1300\n"+
		"2024-01-05,474,476,473,475,1400\n")
}

func newTestService(t *testing.T, cfg *config.Config, fetcher ObservationsFetcher) *DataService {
	t.Helper()
	persister, err := store.NewPersister(cfg.Paths.DatabasePath(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { persister.Close() })
	return NewDataService(cfg, fetcher, persister, nil, testLogger())
}

func TestRunPipelineEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	writeFixtures(t, cfg)
	svc := newTestService(t, cfg, nil)
	ctx := context.Background()

	report, err := svc.RunPipeline(ctx)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.NotEmpty(t, report.RunID)
	assert.Len(t, report.Macro, 4)
	assert.Len(t, report.Price, 1)
	assert.Equal(t, 5, report.MergedInfo.Rows)

	merged, err := svc.GetMergedTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, MergedTableName, merged.Name)

	yield, ok := merged.Column("yield_10y")
	require.True(t, ok)
	assert.InDelta(t, 0.041, yield.Values[2], 1e-12) // Wednesday, synthesized then filled
	assert.InDelta(t, 0.043, yield.Values[4], 1e-12)

	spread, ok := merged.Column("credit_spread")
	require.True(t, ok)
	assert.InDelta(t, 0.01, spread.Values[0], 1e-12)

	closeCol, ok := merged.Column("close_SPY")
	require.True(t, ok)
	assert.Equal(t, 475.0, closeCol.Values[4])

	// cleaned series are queryable by name after the run
	series, err := svc.GetSeries(ctx, "yield_10y")
	require.NoError(t, err)
	assert.Equal(t, 5, series.Len())
	assert.Equal(t, domain.KindDecimal, series.Columns[0].Kind)

	names, err := svc.ListSeries(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "SPY")
	assert.Contains(t, names, "yield_10y")
	assert.Contains(t, names, "credit_spread")

	last, err := svc.LastReport()
	require.NoError(t, err)
	assert.Equal(t, report.RunID, last.RunID)

	byID, err := svc.GetReport(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, report, byID)

	// run outputs land in the clean directory
	for _, name := range []string{"yield_10y.csv", "SPY.csv", "credit_spread.csv", MergedTableName + ".csv.gz"} {
		_, statErr := os.Stat(filepath.Join(cfg.Paths.CleanPath(), name))
		assert.NoError(t, statErr, name)
	}
}

func TestRunPipelineRejectsConcurrentRun(t *testing.T) {
	cfg := testConfig(t)
	writeFixtures(t, cfg)
	svc := newTestService(t, cfg, nil)

	svc.mu.Lock()
	svc.running = true
	svc.mu.Unlock()

	_, err := svc.RunPipeline(context.Background())
	assert.ErrorIs(t, err, ErrRunActive)
}

func TestRunPipelineFetchesMissingMacro(t *testing.T) {
	cfg := testConfig(t)
	writeFixtures(t, cfg)
	// dgs10.csv is absent, so the run must fetch it
	require.NoError(t, os.Remove(filepath.Join(cfg.Paths.RawPath(), "dgs10.csv")))

	dates := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	}
	fetched, err := domain.NewSeries("DGS10", dates, domain.Column{
		Name: "value", Kind: domain.KindPercent,
		Values: []float64{4.0, 4.1, 4.2, 4.2, 4.3},
	})
	require.NoError(t, err)

	fetcher := &stubFetcher{series: map[string]*domain.Series{"DGS10": fetched}}
	svc := newTestService(t, cfg, fetcher)

	report, err := svc.RunPipeline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"DGS10"}, fetcher.calls)
	assert.Equal(t, 5, report.MergedInfo.Rows)
}

func TestRunPipelineMissingFileWithoutFetcher(t *testing.T) {
	cfg := testConfig(t)
	writeFixtures(t, cfg)
	require.NoError(t, os.Remove(filepath.Join(cfg.Paths.RawPath(), "baa.csv")))

	svc := newTestService(t, cfg, nil)
	_, err := svc.RunPipeline(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}

func TestFetchMacrosWritesRawFiles(t *testing.T) {
	cfg := testConfig(t)
	dates := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	fetched, err := domain.NewSeries("DGS10", dates, domain.Column{
		Name: "value", Kind: domain.KindPercent, Values: []float64{4.0, 4.1},
	})
	require.NoError(t, err)

	fetcher := &stubFetcher{series: map[string]*domain.Series{"DGS10": fetched}}
	svc := newTestService(t, cfg, fetcher)

	require.NoError(t, svc.FetchMacros(context.Background()))
	// only the FRED-backed dataset fetches; file-only and derived ones skip
	assert.Equal(t, []string{"DGS10"}, fetcher.calls)

	raw := store.NewCSVStore(cfg.Paths.RawPath(), testLogger())
	series, err := raw.LoadMacro("dgs10.csv", "yield_10y")
	require.NoError(t, err)
	assert.Equal(t, 2, series.Len())
}

func TestFetchMacrosWithoutFetcher(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(t, cfg, nil)
	err := svc.FetchMacros(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConfig(err))
}

func TestReadsBeforeFirstRun(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(t, cfg, nil)
	ctx := context.Background()

	_, err := svc.LastReport()
	assert.ErrorIs(t, err, ErrNoRunYet)

	_, err = svc.GetReport("no-such-run")
	assert.ErrorIs(t, err, ErrReportNotFound)

	_, err = svc.GetMergedTable(ctx)
	assert.ErrorIs(t, err, ErrNoMergedTable)

	_, err = svc.GetSeries(ctx, "yield_10y")
	assert.ErrorIs(t, err, ErrSeriesNotFound)

	names, err := svc.ListSeries(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestBuildCalendar(t *testing.T) {
	cfg := config.Default()

	cfg.Calendar.Kind = "weekdays"
	assert.Equal(t, 0, BuildCalendar(cfg).HolidayCount())

	cfg.Calendar.Kind = "custom"
	cfg.Calendar.Holidays = []string{"2024-01-01", "2024-12-25"}
	assert.Equal(t, 2, BuildCalendar(cfg).HolidayCount())

	cfg.Calendar.Kind = "us-federal"
	cfg.Calendar.FromYear = 2024
	cfg.Calendar.ToYear = 2024
	assert.Greater(t, BuildCalendar(cfg).HolidayCount(), 5)
}
