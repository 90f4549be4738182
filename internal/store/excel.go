package store

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

// LoadBarWorkbook reads intraday bars from an Excel workbook. The first
// sheet with a recognizable header row wins; vendors ship these files with
// cover sheets before the data.
func (s *CSVStore) LoadBarWorkbook(path, symbol string) ([]domain.Bar, error) {
	f, err := excelize.OpenFile(s.resolve(path))
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("open workbook %s", path), err)
	}
	defer f.Close()

	var rows [][]string
	var sheet string
	for _, name := range f.GetSheetList() {
		candidate, err := f.GetRows(name)
		if err != nil || len(candidate) < 2 {
			continue
		}
		if cols, herr := headerIndex(candidate[0], path); herr == nil {
			if _, ok := firstIndex(cols, "caldt", "datetime", "time", "date"); ok {
				rows = candidate
				sheet = name
				break
			}
		}
	}
	if rows == nil {
		return nil, apperrors.NewParsingError(
			fmt.Sprintf("%s: no sheet with a bar header row", path), nil)
	}

	cols, err := headerIndex(rows[0], path)
	if err != nil {
		return nil, err
	}
	timeIdx, _ := firstIndex(cols, "caldt", "datetime", "time", "date")
	for _, name := range []string{domain.ColumnOpen, domain.ColumnHigh, domain.ColumnLow, domain.ColumnClose, domain.ColumnVolume} {
		if _, ok := cols[name]; !ok {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s: sheet %s: no %s column", path, sheet, name), nil)
		}
	}

	bars := make([]domain.Bar, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		if timeIdx >= len(row) {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s: sheet %s: row %d truncated", path, sheet, i+2), nil)
		}
		ts, err := parseTime(row[timeIdx])
		if err != nil {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("%s: sheet %s: row %d: bad timestamp %q", path, sheet, i+2, row[timeIdx]), err)
		}
		bar := domain.Bar{Symbol: symbol, Time: ts}
		for _, field := range []struct {
			name string
			dst  *float64
		}{
			{domain.ColumnOpen, &bar.Open},
			{domain.ColumnHigh, &bar.High},
			{domain.ColumnLow, &bar.Low},
			{domain.ColumnClose, &bar.Close},
			{domain.ColumnVolume, &bar.Volume},
		} {
			idx := cols[field.name]
			if idx >= len(row) {
				return nil, apperrors.NewParsingError(fmt.Sprintf("%s: sheet %s: row %d truncated", path, sheet, i+2), nil)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
			if err != nil {
				return nil, apperrors.NewParsingError(
					fmt.Sprintf("%s: sheet %s: row %d: bad %s %q", path, sheet, i+2, field.name, row[idx]), err)
			}
			*field.dst = v
		}
		bars = append(bars, bar)
	}

	s.logger.Debug("bar workbook loaded",
		slog.String("path", path),
		slog.String("sheet", sheet),
		slog.String("symbol", symbol),
		slog.Int("bars", len(bars)))
	return bars, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
