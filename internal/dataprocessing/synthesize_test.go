package dataprocessing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macropipe/internal/calendar"
	"macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

// priceSeries builds an OHLCV series from per-date rows.
func priceSeries(t *testing.T, name string, dates []time.Time, rows [][5]float64) *domain.Series {
	t.Helper()
	require.Equal(t, len(dates), len(rows))
	columns := domain.OHLCVColumns(len(dates))
	for i, row := range rows {
		for c := 0; c < 5; c++ {
			columns[c].Values[i] = row[c]
		}
	}
	s, err := domain.NewSeries(name, dates, columns...)
	require.NoError(t, err)
	return s
}

func TestSynthesizeMissing_Forward(t *testing.T) {
	s := macroSeries(t, "BAA",
		[]time.Time{date(2024, 1, 1), date(2024, 1, 3), date(2024, 1, 5)},
		[]float64{5.1, 5.3, 5.5})

	out, err := SynthesizeMissing(s, []time.Time{date(2024, 1, 2), date(2024, 1, 4)}, FillForward)
	require.NoError(t, err)

	assert.Equal(t, 5, out.Len())
	col, _ := out.Column("value")
	assert.Equal(t, []float64{5.1, 5.1, 5.3, 5.3, 5.5}, col.Values)

	// input untouched
	assert.Equal(t, 3, s.Len())
}

func TestSynthesizeMissing_None(t *testing.T) {
	s := macroSeries(t, "BAA",
		[]time.Time{date(2024, 1, 1), date(2024, 1, 3)},
		[]float64{5.1, 5.3})

	out, err := SynthesizeMissing(s, []time.Time{date(2024, 1, 2)}, FillNone)
	require.NoError(t, err)

	col, _ := out.Column("value")
	assert.Equal(t, 5.1, col.Values[0])
	assert.True(t, domain.IsMissing(col.Values[1]))
	assert.Equal(t, 5.3, col.Values[2])
}

func TestSynthesizeMissing_ZeroVolume(t *testing.T) {
	s := priceSeries(t, "SPY",
		[]time.Time{date(2024, 1, 1), date(2024, 1, 3)},
		[][5]float64{
			{10, 12, 9, 11, 100},
			{11, 13, 10, 12, 50},
		})

	out, err := SynthesizeMissing(s, []time.Time{date(2024, 1, 2)}, FillZeroVolume)
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())

	// synthesized no-trade bar: OHLC pinned to the previous close, zero volume
	for _, name := range []string{domain.ColumnOpen, domain.ColumnHigh, domain.ColumnLow, domain.ColumnClose} {
		col, ok := out.Column(name)
		require.True(t, ok)
		assert.Equal(t, 11.0, col.Values[1], name)
	}
	volume, _ := out.Column(domain.ColumnVolume)
	assert.Equal(t, 0.0, volume.Values[1])

	// observed rows untouched
	open, _ := out.Column(domain.ColumnOpen)
	assert.Equal(t, []float64{10, 11, 11}, open.Values)
}

func TestSynthesizeMissing_NoSeed(t *testing.T) {
	s := macroSeries(t, "BAA", []time.Time{date(2024, 1, 3)}, []float64{5.3})

	for _, policy := range []FillPolicy{FillForward, FillZeroVolume} {
		_, err := SynthesizeMissing(s, []time.Time{date(2024, 1, 2)}, policy)
		require.Error(t, err, string(policy))
		assert.True(t, errors.IsInsufficientHistory(err), string(policy))
	}

	// FillNone needs no seed
	out, err := SynthesizeMissing(s, []time.Time{date(2024, 1, 2)}, FillNone)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
}

func TestSynthesizeMissing_InvalidPolicy(t *testing.T) {
	s := macroSeries(t, "BAA", []time.Time{date(2024, 1, 1)}, []float64{5.1})
	_, err := SynthesizeMissing(s, []time.Time{date(2024, 1, 2)}, FillPolicy("bogus"))
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestSynthesizeMissing_AlreadyPresentDatesSkipped(t *testing.T) {
	s := macroSeries(t, "BAA",
		[]time.Time{date(2024, 1, 1), date(2024, 1, 2)},
		[]float64{5.1, 5.2})

	out, err := SynthesizeMissing(s, []time.Time{date(2024, 1, 2)}, FillForward)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
}

// synthesize followed by missing_dates against the same calendar always
// yields an empty result.
func TestSynthesizeMissing_ClosureProperty(t *testing.T) {
	cal := calendar.NewUSFederal(2024, 2024)
	s := macroSeries(t, "BAA",
		[]time.Time{date(2024, 1, 2), date(2024, 1, 10), date(2024, 1, 22), date(2024, 2, 1)},
		[]float64{5.1, 5.2, 5.3, 5.4})

	missing, err := MissingDates(s, cal)
	require.NoError(t, err)
	require.NotEmpty(t, missing)

	filled, err := SynthesizeMissing(s, missing, FillForward)
	require.NoError(t, err)

	missingAfter, err := MissingDates(filled, cal)
	require.NoError(t, err)
	assert.Empty(t, missingAfter)
}
