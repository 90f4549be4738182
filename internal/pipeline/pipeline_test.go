package pipeline

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macropipe/internal/calendar"
	"macropipe/internal/dataprocessing"
	apperrors "macropipe/internal/errors"
	"macropipe/internal/validation"
	"macropipe/pkg/contracts/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rateSeries(t *testing.T, name string, rows map[string]float64) *domain.Series {
	t.Helper()
	dates := make([]time.Time, 0, len(rows))
	values := make([]float64, 0, len(rows))
	// Deterministic order: callers pass ISO date keys.
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	for _, k := range keys {
		d, err := time.Parse("2006-01-02", k)
		require.NoError(t, err)
		dates = append(dates, d)
		values = append(values, rows[k])
	}
	s, err := domain.NewSeries(name, dates, domain.Column{
		Name: "value", Kind: domain.KindPercent, Values: values,
	})
	require.NoError(t, err)
	return s
}

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	return New(calendar.New(nil), slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func TestCleanMacro(t *testing.T) {
	p := testPipeline(t)

	// Mon 2024-01-01 through Fri 2024-01-05 with Wednesday absent and
	// Thursday delivered as a missing observation.
	raw := rateSeries(t, "DGS10", map[string]float64{
		"2024-01-01": 4.0,
		"2024-01-02": 4.1,
		"2024-01-04": math.NaN(),
		"2024-01-05": 4.3,
	})

	cleaned, report, err := p.CleanMacro(context.Background(), raw, MacroSpec{
		Name:            "yield_10y",
		NormalizeFields: []string{"value"},
		Thresholds: map[string]validation.Threshold{
			"yield_10y": {Min: -0.01, Max: 0.20, MaxDelta: 0.05},
		},
	})
	require.NoError(t, err)

	require.Equal(t, 5, cleaned.Len())
	col, ok := cleaned.Column("yield_10y")
	require.True(t, ok, "observation column renamed to the series name")
	assert.Equal(t, domain.KindDecimal, col.Kind)

	// Wednesday was synthesized with the forward policy and Thursday's NaN
	// was forward-filled, so both carry Tuesday's 0.041.
	assert.InDelta(t, 0.041, col.Values[2], 1e-12)
	assert.InDelta(t, 0.041, col.Values[3], 1e-12)
	assert.InDelta(t, 0.043, col.Values[4], 1e-12)

	assert.Equal(t, "yield_10y", report.Series)
	assert.Equal(t, 1, report.RowsSynthesized)
	require.NotNil(t, report.Fill)
	assert.Equal(t, 1, report.Fill.CellsFilled["value"])
	require.NotNil(t, report.Anomalies)
	assert.Empty(t, report.Anomalies.Anomalies)
	assert.Equal(t, 5, report.Info.Rows)
}

func TestCleanMacroAnomaliesAreAdvisory(t *testing.T) {
	p := testPipeline(t)

	raw := rateSeries(t, "BAA", map[string]float64{
		"2024-01-01": 6.0,
		"2024-01-02": 60.0,
	})

	cleaned, report, err := p.CleanMacro(context.Background(), raw, MacroSpec{
		Name:            "baa",
		NormalizeFields: []string{"value"},
		Thresholds: map[string]validation.Threshold{
			"baa": {Min: 0, Max: 0.25, MaxDelta: 0.02},
		},
	})
	require.NoError(t, err, "anomalies flag, they do not fail the flow")
	require.NotNil(t, cleaned)
	require.NotNil(t, report.Anomalies)
	assert.NotEmpty(t, report.Anomalies.Anomalies)
}

func TestForwardFillStageRequiresSeed(t *testing.T) {
	// First observation is itself missing: with a seed requirement the fill
	// cannot start and the flow must fail loudly.
	raw := rateSeries(t, "DGS2", map[string]float64{
		"2024-01-02": math.NaN(),
		"2024-01-03": 4.1,
	})

	st := NewState(raw)
	st.Conditions[CondDatesUnique] = true
	err := runStages(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), st,
		forwardFillStage{requireSeed: true},
	)
	require.Error(t, err)
	assert.True(t, apperrors.IsInsufficientHistory(err))
}

func intradayBars(symbol string, d time.Time, prices []float64, volume float64) []domain.Bar {
	bars := make([]domain.Bar, len(prices))
	for i, px := range prices {
		bars[i] = domain.Bar{
			Symbol: symbol,
			Time:   d.Add(time.Duration(i) * time.Minute),
			Open:   px, High: px + 0.5, Low: px - 0.5, Close: px,
			Volume: volume,
		}
	}
	return bars
}

func TestCleanPriceFromBars(t *testing.T) {
	p := testPipeline(t)

	// Monday and Wednesday trade; Tuesday is a business day with no bars.
	bars := append(
		intradayBars("SPY", day(2024, time.January, 1).Add(14*time.Hour+30*time.Minute), []float64{470, 471, 472}, 1000),
		intradayBars("SPY", day(2024, time.January, 3).Add(14*time.Hour+30*time.Minute), []float64{474, 473}, 800)...,
	)

	cleaned, report, err := p.CleanPrice(context.Background(), PriceInput{
		Bars: bars,
		Spec: PriceSpec{Symbol: "SPY", ColumnSuffix: "_SPY"},
	})
	require.NoError(t, err)

	require.Equal(t, 3, cleaned.Len())
	closeCol, ok := cleaned.Column("close_SPY")
	require.True(t, ok)
	volCol, ok := cleaned.Column("volume_SPY")
	require.True(t, ok)

	// Tuesday is a synthesized no-trade row: prices carried from Monday's
	// close, volume zero.
	assert.InDelta(t, 472, closeCol.Values[1], 1e-9)
	assert.Zero(t, volCol.Values[1])
	assert.InDelta(t, 473, closeCol.Values[2], 1e-9)
	assert.InDelta(t, 1800, volumeAt(t, cleaned, "volume_SPY", 0), 1e-9)

	assert.Equal(t, 1, report.RowsSynthesized)
	require.NotNil(t, report.Gaps)
	assert.Equal(t, 1, report.Gaps.TotalMissing())
}

func volumeAt(t *testing.T, s *domain.Series, column string, row int) float64 {
	t.Helper()
	col, ok := s.Column(column)
	require.True(t, ok)
	return col.Values[row]
}

func TestCleanPriceRejectsMalformedBar(t *testing.T) {
	p := testPipeline(t)

	bars := []domain.Bar{{
		Symbol: "SPY",
		Time:   day(2024, time.January, 1),
		Open:   470, High: 469, Low: 471, Close: 470, // high below low
		Volume: 100,
	}}

	_, _, err := p.CleanPrice(context.Background(), PriceInput{Bars: bars, Spec: PriceSpec{Symbol: "SPY"}})
	require.Error(t, err)
	assert.True(t, apperrors.IsMalformedBar(err))
}

func TestCleanPriceNeedsInput(t *testing.T) {
	p := testPipeline(t)
	_, _, err := p.CleanPrice(context.Background(), PriceInput{Spec: PriceSpec{Symbol: "VIX"}})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestRunMergesOntoPriceAxis(t *testing.T) {
	p := testPipeline(t)

	// Price axis: Mon 2024-01-01 through Wed 2024-01-03.
	bars := append(append(
		intradayBars("SPY", day(2024, time.January, 1).Add(14*time.Hour), []float64{470}, 1000),
		intradayBars("SPY", day(2024, time.January, 2).Add(14*time.Hour), []float64{471}, 900)...),
		intradayBars("SPY", day(2024, time.January, 3).Add(14*time.Hour), []float64{472}, 800)...,
	)

	// Macro observations begin on Tuesday: Monday must stay missing in the
	// merged table because nothing can be carried backward.
	macro := rateSeries(t, "DGS10", map[string]float64{
		"2024-01-02": 4.0,
		"2024-01-03": 4.2,
	})

	baa := rateSeries(t, "BAA", map[string]float64{
		"2024-01-01": 6.0,
		"2024-01-02": 6.1,
		"2024-01-03": 6.3,
	})
	aaa := rateSeries(t, "AAA", map[string]float64{
		"2024-01-01": 5.0,
		"2024-01-02": 5.0,
		"2024-01-03": 5.1,
	})

	report, err := p.Run(context.Background(), Inputs{
		Macros: []MacroInput{{
			Series: macro,
			Spec:   MacroSpec{Name: "yield_10y", NormalizeFields: []string{"value"}},
		}},
		Spreads: []SpreadInput{{
			Kind:   SpreadCredit,
			First:  baa,
			Second: aaa,
			Spec:   MacroSpec{Name: dataprocessing.SeriesCreditSpread, NormalizeFields: []string{"value"}},
		}},
		Prices: []PriceInput{{
			Bars: bars,
			Spec: PriceSpec{Symbol: "SPY", ColumnSuffix: "_SPY"},
		}},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Len(t, report.Macro, 2)
	assert.Len(t, report.Price, 1)
	require.NotNil(t, report.Merged)

	merged := report.Merged
	assert.Equal(t, 3, merged.Len())

	yield, ok := merged.Column("yield_10y")
	require.True(t, ok)
	assert.True(t, domain.IsMissing(yield.Values[0]), "no backward fill before first observation")
	assert.InDelta(t, 0.040, yield.Values[1], 1e-12)
	assert.InDelta(t, 0.042, yield.Values[2], 1e-12)
	assert.True(t, merged.Unfilled("yield_10y", day(2024, time.January, 1)))

	spread, ok := merged.Column(dataprocessing.SeriesCreditSpread)
	require.True(t, ok)
	assert.InDelta(t, 0.010, spread.Values[0], 1e-9)
	assert.InDelta(t, 0.012, spread.Values[2], 1e-9)

	require.NotNil(t, report.FindSeries("yield_10y"))
	require.Nil(t, report.FindSeries("nope"))
	assert.Equal(t, 3, report.MergedInfo.Rows)
}

func TestRunRequiresPriceAxis(t *testing.T) {
	p := testPipeline(t)
	_, err := p.Run(context.Background(), Inputs{})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestRunStagesRejectsMisorderedFlow(t *testing.T) {
	s := rateSeries(t, "DGS10", map[string]float64{"2024-01-01": 4.0})
	st := NewState(s)

	err := runStages(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), st,
		anomalyStage{},
	)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
	assert.Contains(t, err.Error(), "misordered")
}

func TestRunStagesStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := rateSeries(t, "DGS10", map[string]float64{"2024-01-01": 4.0})
	err := runStages(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), NewState(s), dedupeStage{})
	require.ErrorIs(t, err, context.Canceled)
}
