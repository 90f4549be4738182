package store

import (
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

func newTestStore(t *testing.T) *CSVStore {
	t.Helper()
	return NewCSVStore(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeFile(t *testing.T, s *CSVStore, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, name), []byte(content), 0644))
}

func TestLoadMacro(t *testing.T) {
	s := newTestStore(t)
	writeFile(t, s, "dgs10.csv", "date,value\n2024-01-02,4.01\n2024-01-03,.\n2024-01-04,3.99\n")

	series, err := s.LoadMacro("dgs10.csv", "DGS10")
	require.NoError(t, err)

	require.Equal(t, 3, series.Len())
	col, ok := series.Column("value")
	require.True(t, ok)
	assert.Equal(t, domain.KindPercent, col.Kind)
	assert.InDelta(t, 4.01, col.Values[0], 1e-12)
	assert.True(t, domain.IsMissing(col.Values[1]))
}

func TestLoadMacroBOMHeader(t *testing.T) {
	s := newTestStore(t)
	writeFile(t, s, "dgs2.csv", "\ufeffdate,value\n2024-01-02,4.3\n")

	series, err := s.LoadMacro("dgs2.csv", "DGS2")
	require.NoError(t, err)
	require.Equal(t, 1, series.Len())
	col, ok := series.Column("value")
	require.True(t, ok)
	assert.InDelta(t, 4.3, col.Values[0], 1e-12)
}

func TestLoadMacroCaldtHeader(t *testing.T) {
	s := newTestStore(t)
	writeFile(t, s, "baa.csv", "caldt,value\n1/2/2024,6.1\n")

	series, err := s.LoadMacro("baa.csv", "BAA")
	require.NoError(t, err)
	require.Equal(t, 1, series.Len())
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), series.Dates[0])
}

func TestLoadMacroErrors(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"missing date column", "a.csv", "foo,value\n1,2\n"},
		{"missing value column", "b.csv", "date,foo\n2024-01-02,2\n"},
		{"bad date", "c.csv", "date,value\nnot-a-date,2\n"},
		{"bad value", "d.csv", "date,value\n2024-01-02,abc\n"},
		{"infinite value", "e.csv", "date,value\n2024-01-02,inf\n"},
		{"negative infinite value", "f.csv", "date,value\n2024-01-02,-Inf\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeFile(t, s, tt.file, tt.content)
			_, err := s.LoadMacro(tt.file, "X")
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
		})
	}

	_, err := s.LoadMacro("does-not-exist.csv", "X")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}

func TestLoadBars(t *testing.T) {
	s := newTestStore(t)
	writeFile(t, s, "spy.csv",
		"caldt,open,high,low,close,volume\n"+
			"2024-01-02 09:30:00,470,471,469.5,470.5,1000\n"+
			"2024-01-02 09:31:00,470.5,472,470,471.8,1200\n")

	bars, err := s.LoadBars("spy.csv", "SPY")
	require.NoError(t, err)

	require.Len(t, bars, 2)
	assert.Equal(t, "SPY", bars[0].Symbol)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC), bars[0].Time)
	assert.InDelta(t, 470.5, bars[0].Close, 1e-12)
	assert.InDelta(t, 1200, bars[1].Volume, 1e-12)
}

func TestLoadDaily(t *testing.T) {
	s := newTestStore(t)
	writeFile(t, s, "vix.csv",
		"date,open,high,low,close,volume\n"+
			"2024-01-02,13.2,13.9,13.0,13.5,0\n"+
			"2024-01-03,13.5,14.1,13.4,,0\n")

	series, err := s.LoadDaily("vix.csv", "VIX")
	require.NoError(t, err)

	require.Equal(t, 2, series.Len())
	closeCol, ok := series.Column(domain.ColumnClose)
	require.True(t, ok)
	assert.InDelta(t, 13.5, closeCol.Values[0], 1e-12)
	assert.True(t, domain.IsMissing(closeCol.Values[1]))
}

func TestLoadDailyCloseOnly(t *testing.T) {
	s := newTestStore(t)
	writeFile(t, s, "vix.csv", "date,close\n2024-01-02,13.5\n")

	series, err := s.LoadDaily("vix.csv", "VIX")
	require.NoError(t, err)
	assert.Equal(t, []string{domain.ColumnClose}, series.ColumnNames())
}

func TestWriteSeriesRoundTrip(t *testing.T) {
	s := newTestStore(t)

	original, err := domain.NewSeries("yield_10y",
		[]time.Time{
			time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		},
		domain.Column{Name: "value", Kind: domain.KindDecimal, Values: []float64{0.0401, math.NaN()}},
	)
	require.NoError(t, err)

	for _, name := range []string{"out.csv", "out.csv.gz"} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.WriteSeries(name, original))

			loaded, err := s.LoadMacro(name, "yield_10y")
			require.NoError(t, err)
			require.Equal(t, 2, loaded.Len())
			col, ok := loaded.Column("value")
			require.True(t, ok)
			assert.InDelta(t, 0.0401, col.Values[0], 1e-12)
			assert.True(t, domain.IsMissing(col.Values[1]), "empty cell loads as missing")
		})
	}
}

func TestWriteMerged(t *testing.T) {
	s := newTestStore(t)

	series, err := domain.NewSeries("merged",
		[]time.Time{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		domain.Column{Name: "close_SPY", Kind: domain.KindPrice, Values: []float64{470.5}},
		domain.Column{Name: "yield_10y", Kind: domain.KindDecimal, Values: []float64{0.0401}},
	)
	require.NoError(t, err)
	merged := &domain.MergedTable{Series: *series}

	require.NoError(t, s.WriteMerged("merged.csv", merged))

	data, err := os.ReadFile(filepath.Join(s.dir, "merged.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "date,close_SPY,yield_10y")
	assert.Contains(t, string(data), "2024-01-02,470.5,0.0401")
}
