package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "macropipe/internal/errors"
)

func writeWorkbook(t *testing.T, path string, sheets map[string][][]string) {
	t.Helper()
	f := excelize.NewFile()
	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, f.SetSheetName("Sheet1", name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
}

func TestLoadBarWorkbook(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(s.dir, "spy.xlsx")
	writeWorkbook(t, path, map[string][][]string{
		"Data": {
			{"caldt", "open", "high", "low", "close", "volume"},
			{"2024-01-02 09:30:00", "470", "471", "469.5", "470.5", "1000"},
			{"2024-01-02 09:31:00", "470.5", "472", "470", "471.8", "1200"},
			{"", "", "", "", "", ""},
		},
	})

	bars, err := s.LoadBarWorkbook("spy.xlsx", "SPY")
	require.NoError(t, err)

	require.Len(t, bars, 2, "trailing blank row skipped")
	assert.Equal(t, "SPY", bars[0].Symbol)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC), bars[0].Time)
	assert.InDelta(t, 471.8, bars[1].Close, 1e-12)
}

func TestLoadBarWorkbookSkipsCoverSheet(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(s.dir, "spy.xlsx")
	writeWorkbook(t, path, map[string][][]string{
		"About": {
			{"Vendor data export"},
			{"Generated 2024-01-05"},
		},
		"Bars": {
			{"datetime", "open", "high", "low", "close", "volume"},
			{"2024-01-02 09:30:00", "470", "471", "469.5", "470.5", "1000"},
		},
	})

	bars, err := s.LoadBarWorkbook("spy.xlsx", "SPY")
	require.NoError(t, err)
	require.Len(t, bars, 1)
}

func TestLoadBarWorkbookNoDataSheet(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(s.dir, "empty.xlsx")
	writeWorkbook(t, path, map[string][][]string{
		"About": {{"nothing here"}},
	})

	_, err := s.LoadBarWorkbook("empty.xlsx", "SPY")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
}

func TestLoadBarWorkbookBadValue(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(s.dir, "bad.xlsx")
	writeWorkbook(t, path, map[string][][]string{
		"Data": {
			{"caldt", "open", "high", "low", "close", "volume"},
			{"2024-01-02 09:30:00", "oops", "471", "469.5", "470.5", "1000"},
		},
	})

	_, err := s.LoadBarWorkbook("bad.xlsx", "SPY")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
}
