package dataprocessing

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

func TestPercentToDecimal(t *testing.T) {
	s := macroSeries(t, "DGS10",
		[]time.Time{date(2024, 1, 1), date(2024, 1, 2)},
		[]float64{4.15, 4.2})

	out, err := PercentToDecimal(s, []string{"value"})
	require.NoError(t, err)

	col, _ := out.Column("value")
	assert.Equal(t, []float64{0.0415, 0.042}, col.Values)
	assert.Equal(t, domain.KindDecimal, col.Kind)

	// input keeps its percent values and kind
	orig, _ := s.Column("value")
	assert.Equal(t, []float64{4.15, 4.2}, orig.Values)
	assert.Equal(t, domain.KindPercent, orig.Kind)
}

func TestPercentToDecimal_RoundsToSevenPlaces(t *testing.T) {
	s := macroSeries(t, "DGS10", []time.Time{date(2024, 1, 1)}, []float64{1.0 / 3.0})

	out, err := PercentToDecimal(s, []string{"value"})
	require.NoError(t, err)

	col, _ := out.Column("value")
	assert.Equal(t, 0.0033333, col.Values[0])
}

func TestPercentToDecimal_SkipsMissing(t *testing.T) {
	s := macroSeries(t, "DGS10",
		[]time.Time{date(2024, 1, 1), date(2024, 1, 2)},
		[]float64{domain.Missing(), 5.0})

	out, err := PercentToDecimal(s, []string{"value"})
	require.NoError(t, err)

	col, _ := out.Column("value")
	assert.True(t, domain.IsMissing(col.Values[0]))
	assert.Equal(t, 0.05, col.Values[1])
}

// Applying the conversion twice halves values again: 5.0 percent becomes
// 0.05, then 0.0005. The operation is deliberately not idempotent; the
// pipeline's stage preconditions are what prevent double application.
func TestPercentToDecimal_NotIdempotent(t *testing.T) {
	s := macroSeries(t, "DGS10", []time.Time{date(2024, 1, 1)}, []float64{5.0})

	once, err := PercentToDecimal(s, []string{"value"})
	require.NoError(t, err)
	twice, err := PercentToDecimal(once, []string{"value"})
	require.NoError(t, err)

	col, _ := twice.Column("value")
	assert.Equal(t, 0.0005, col.Values[0])
}

func TestPercentToDecimal_Errors(t *testing.T) {
	dates := []time.Time{date(2024, 1, 1)}

	t.Run("unknown field", func(t *testing.T) {
		s := macroSeries(t, "DGS10", dates, []float64{5})
		_, err := PercentToDecimal(s, []string{"nope"})
		require.Error(t, err)
		assert.True(t, errors.IsConfig(err))
	})

	t.Run("infinite value is an error, not a panic", func(t *testing.T) {
		s := macroSeries(t, "DGS10", dates, []float64{math.Inf(1)})
		var out *domain.Series
		var err error
		require.NotPanics(t, func() {
			out, err = PercentToDecimal(s, []string{"value"})
		})
		require.Error(t, err)
		assert.Nil(t, out)
		assert.True(t, errors.IsType(err, errors.ErrTypeParsing))
	})

	t.Run("price column is a unit mismatch", func(t *testing.T) {
		s, err := domain.NewSeries("SPY", dates,
			domain.Column{Name: "close", Kind: domain.KindPrice, Values: []float64{470.5}})
		require.NoError(t, err)
		_, err = PercentToDecimal(s, []string{"close"})
		require.Error(t, err)
		assert.True(t, errors.IsConfig(err))
	})
}
