package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	apperrors "macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

// Timestamp layouts accepted on load, tried in order. Sources disagree on
// how they stamp rows, so the loaders accept all of them.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006",
}

// CSVStore reads raw input files and writes cleaned output files. Paths are
// resolved against the base directory unless absolute. Files whose name ends
// in .gz are transparently compressed and decompressed.
type CSVStore struct {
	dir    string
	logger *slog.Logger
}

// NewCSVStore creates a store rooted at dir.
func NewCSVStore(dir string, logger *slog.Logger) *CSVStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVStore{dir: dir, logger: logger}
}

func (s *CSVStore) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.dir, path)
}

// openReader opens path for reading, layering a gzip reader when the name
// asks for one.
func (s *CSVStore) openReader(path string) (io.ReadCloser, error) {
	f, err := os.Open(s.resolve(path))
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("open %s", path), err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: not a gzip file", path), err)
	}
	return &gzipReadCloser{gz: gz, file: f}, nil
}

type gzipReadCloser struct {
	gz   *gzip.Reader
	file *os.File
}

func (r *gzipReadCloser) Read(p []byte) (int, error) { return r.gz.Read(p) }

func (r *gzipReadCloser) Close() error {
	gerr := r.gz.Close()
	ferr := r.file.Close()
	if gerr != nil {
		return gerr
	}
	return ferr
}

// LoadMacro reads a two-column observation file (date plus value). The date
// header may be "date" or "caldt"; empty and "." values become missing.
// Rows are kept in delivery order for the pipeline to clean.
func (s *CSVStore) LoadMacro(path, name string) (*domain.Series, error) {
	rc, err := s.openReader(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rows, err := csv.NewReader(rc).ReadAll()
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: malformed csv", path), err)
	}
	if len(rows) < 1 {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: empty file", path), nil)
	}

	cols, err := headerIndex(rows[0], path)
	if err != nil {
		return nil, err
	}
	dateIdx, ok := firstIndex(cols, "date", "caldt")
	if !ok {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: no date column", path), nil)
	}
	valueIdx, ok := firstIndex(cols, "value", name)
	if !ok {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: no value column", path), nil)
	}

	dates := make([]time.Time, 0, len(rows)-1)
	values := make([]float64, 0, len(rows)-1)
	for i, row := range rows[1:] {
		d, err := parseTime(row[dateIdx])
		if err != nil {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("%s: row %d: bad date %q", path, i+2, row[dateIdx]), err)
		}
		v, err := parseValue(row[valueIdx])
		if err != nil {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("%s: row %d: bad value %q", path, i+2, row[valueIdx]), err)
		}
		dates = append(dates, d)
		values = append(values, v)
	}

	s.logger.Debug("macro csv loaded",
		slog.String("path", path),
		slog.String("series", name),
		slog.Int("rows", len(dates)))
	return domain.NewSeries(name, dates, domain.Column{
		Name: "value", Kind: domain.KindPercent, Values: values,
	})
}

// LoadBars reads intraday bars. The timestamp header may be "caldt",
// "datetime", "time" or "date".
func (s *CSVStore) LoadBars(path, symbol string) ([]domain.Bar, error) {
	rc, err := s.openReader(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rows, err := csv.NewReader(rc).ReadAll()
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: malformed csv", path), err)
	}
	if len(rows) < 2 {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: no bar rows", path), nil)
	}

	cols, err := headerIndex(rows[0], path)
	if err != nil {
		return nil, err
	}
	timeIdx, ok := firstIndex(cols, "caldt", "datetime", "time", "date")
	if !ok {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: no timestamp column", path), nil)
	}
	need := map[string]int{}
	for _, name := range []string{domain.ColumnOpen, domain.ColumnHigh, domain.ColumnLow, domain.ColumnClose, domain.ColumnVolume} {
		idx, ok := cols[name]
		if !ok {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s: no %s column", path, name), nil)
		}
		need[name] = idx
	}

	bars := make([]domain.Bar, 0, len(rows)-1)
	for i, row := range rows[1:] {
		ts, err := parseTime(row[timeIdx])
		if err != nil {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("%s: row %d: bad timestamp %q", path, i+2, row[timeIdx]), err)
		}
		bar := domain.Bar{Symbol: symbol, Time: ts}
		for name, idx := range need {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
			if err != nil {
				return nil, apperrors.NewParsingError(
					fmt.Sprintf("%s: row %d: bad %s %q", path, i+2, name, row[idx]), err)
			}
			switch name {
			case domain.ColumnOpen:
				bar.Open = v
			case domain.ColumnHigh:
				bar.High = v
			case domain.ColumnLow:
				bar.Low = v
			case domain.ColumnClose:
				bar.Close = v
			case domain.ColumnVolume:
				bar.Volume = v
			}
		}
		bars = append(bars, bar)
	}

	s.logger.Debug("bar csv loaded",
		slog.String("path", path),
		slog.String("symbol", symbol),
		slog.Int("bars", len(bars)))
	return bars, nil
}

// LoadDaily reads an already-daily OHLCV file into a price series.
func (s *CSVStore) LoadDaily(path, name string) (*domain.Series, error) {
	rc, err := s.openReader(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rows, err := csv.NewReader(rc).ReadAll()
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: malformed csv", path), err)
	}
	if len(rows) < 1 {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: empty file", path), nil)
	}

	cols, err := headerIndex(rows[0], path)
	if err != nil {
		return nil, err
	}
	dateIdx, ok := firstIndex(cols, "date", "caldt")
	if !ok {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: no date column", path), nil)
	}

	columns := domain.OHLCVColumns(len(rows) - 1)
	dates := make([]time.Time, 0, len(rows)-1)
	for i, row := range rows[1:] {
		d, err := parseTime(row[dateIdx])
		if err != nil {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("%s: row %d: bad date %q", path, i+2, row[dateIdx]), err)
		}
		dates = append(dates, d)
		for c := range columns {
			idx, ok := cols[columns[c].Name]
			if !ok {
				columns[c].Values[i] = domain.Missing()
				continue
			}
			v, err := parseValue(row[idx])
			if err != nil {
				return nil, apperrors.NewParsingError(
					fmt.Sprintf("%s: row %d: bad %s %q", path, i+2, columns[c].Name, row[idx]), err)
			}
			columns[c].Values[i] = v
		}
	}

	present := columns[:0]
	for _, col := range columns {
		if _, ok := cols[col.Name]; ok {
			present = append(present, col)
		}
	}
	return domain.NewSeries(name, dates, present...)
}

// WriteSeries writes a series as date plus one column per value vector.
// Missing values are written as empty cells. A .gz suffix compresses the
// output.
func (s *CSVStore) WriteSeries(path string, series *domain.Series) error {
	full := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("create directory for %s", path), err)
	}

	f, err := os.Create(full)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("create %s", path), err)
	}
	defer f.Close()

	var out io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		out = gz
	}

	w := csv.NewWriter(out)
	header := append([]string{"date"}, series.ColumnNames()...)
	if err := w.Write(header); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("write %s", path), err)
	}

	row := make([]string, len(header))
	for i, d := range series.Dates {
		row[0] = d.Format("2006-01-02")
		for c, col := range series.Columns {
			if domain.IsMissing(col.Values[i]) {
				row[c+1] = ""
			} else {
				row[c+1] = strconv.FormatFloat(col.Values[i], 'g', -1, 64)
			}
		}
		if err := w.Write(row); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("write %s row %d", path, i+2), err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("flush %s", path), err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("compress %s", path), err)
		}
	}

	s.logger.Info("series written",
		slog.String("path", path),
		slog.String("series", series.Name),
		slog.Int("rows", series.Len()),
		slog.Int("columns", len(series.Columns)))
	return nil
}

// WriteMerged writes a merged table the same way as a series.
func (s *CSVStore) WriteMerged(path string, merged *domain.MergedTable) error {
	return s.WriteSeries(path, &merged.Series)
}

// headerIndex maps lower-cased header names to their column positions.
func headerIndex(header []string, path string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
		if name == "" {
			continue
		}
		if _, dup := cols[name]; dup {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s: duplicate header %q", path, name), nil)
		}
		cols[name] = i
	}
	return cols, nil
}

func firstIndex(cols map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if idx, ok := cols[strings.ToLower(n)]; ok {
			return idx, true
		}
	}
	return 0, false
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func parseValue(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "." {
		return domain.Missing(), nil
	}
	// ParseFloat accepts "inf"; no finite observation is infinite.
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value")
	}
	return v, nil
}
