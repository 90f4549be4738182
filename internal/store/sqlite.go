package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	apperrors "macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

// Persister stores cleaned series in SQLite. Column names, kinds and order
// survive a round trip, so a loaded series is interchangeable with the one
// that was saved.
type Persister struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.Mutex
}

// NewPersister opens (or creates) the database and runs migrations.
func NewPersister(dbPath string, logger *slog.Logger) (*Persister, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("open sqlite %s", dbPath), err)
	}

	// WAL so the web process can read while a pipeline run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("set WAL mode", err)
	}

	p := &Persister{db: db, logger: logger}
	if err := p.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite persister opened", slog.String("path", dbPath))
	return p, nil
}

func (p *Persister) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS series_columns (
			series   TEXT NOT NULL,
			name     TEXT NOT NULL,
			kind     TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (series, name)
		)`,
		`CREATE TABLE IF NOT EXISTS series_values (
			series   TEXT NOT NULL,
			date     TEXT NOT NULL,
			"column" TEXT NOT NULL,
			value    REAL,
			PRIMARY KEY (series, date, "column")
		)`,
		`CREATE INDEX IF NOT EXISTS idx_series_values_date ON series_values(series, date)`,
		`CREATE TABLE IF NOT EXISTS first_observed (
			series   TEXT NOT NULL,
			"column" TEXT NOT NULL,
			date     TEXT NOT NULL,
			PRIMARY KEY (series, "column")
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.Exec(stmt); err != nil {
			return apperrors.NewStorageError("migrate schema", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (p *Persister) Close() error {
	return p.db.Close()
}

// PingContext verifies database connectivity.
func (p *Persister) PingContext(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// SaveSeries replaces the stored copy of the series. Missing values are
// stored as NULL.
func (p *Persister) SaveSeries(ctx context.Context, s *domain.Series) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("save %s: begin", s.Name), err)
	}
	defer tx.Rollback()

	if err := p.saveSeriesTx(ctx, tx, s); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("save %s: commit", s.Name), err)
	}

	p.logger.InfoContext(ctx, "series saved",
		slog.String("series", s.Name),
		slog.Int("rows", s.Len()),
		slog.Int("columns", len(s.Columns)))
	return nil
}

func (p *Persister) saveSeriesTx(ctx context.Context, tx *sql.Tx, s *domain.Series) error {
	for _, stmt := range []string{
		`DELETE FROM series_columns WHERE series = ?`,
		`DELETE FROM series_values WHERE series = ?`,
		`DELETE FROM first_observed WHERE series = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, s.Name); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("save %s: clear", s.Name), err)
		}
	}

	colStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO series_columns (series, name, kind, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("save %s: prepare", s.Name), err)
	}
	defer colStmt.Close()

	valStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO series_values (series, date, "column", value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("save %s: prepare", s.Name), err)
	}
	defer valStmt.Close()

	for pos, col := range s.Columns {
		if _, err := colStmt.ExecContext(ctx, s.Name, col.Name, string(col.Kind), pos); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("save %s: column %s", s.Name, col.Name), err)
		}
		for i, d := range s.Dates {
			var v any
			if !domain.IsMissing(col.Values[i]) {
				v = col.Values[i]
			}
			if _, err := valStmt.ExecContext(ctx, s.Name, d.Format("2006-01-02"), col.Name, v); err != nil {
				return apperrors.NewStorageError(
					fmt.Sprintf("save %s: value %s/%s", s.Name, col.Name, d.Format("2006-01-02")), err)
			}
		}
	}
	return nil
}

// SaveMerged stores the merged table plus its first-observed map.
func (p *Persister) SaveMerged(ctx context.Context, m *domain.MergedTable) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("save %s: begin", m.Name), err)
	}
	defer tx.Rollback()

	if err := p.saveSeriesTx(ctx, tx, &m.Series); err != nil {
		return err
	}

	foStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO first_observed (series, "column", date) VALUES (?, ?, ?)`)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("save %s: prepare", m.Name), err)
	}
	defer foStmt.Close()
	for col, d := range m.FirstObserved {
		if _, err := foStmt.ExecContext(ctx, m.Name, col, d.Format("2006-01-02")); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("save %s: first observed %s", m.Name, col), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("save %s: commit", m.Name), err)
	}

	p.logger.InfoContext(ctx, "merged table saved",
		slog.String("series", m.Name),
		slog.Int("rows", m.Len()))
	return nil
}

// LoadSeries reads a stored series back, restoring column order and kinds.
func (p *Persister) LoadSeries(ctx context.Context, name string) (*domain.Series, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT name, kind FROM series_columns WHERE series = ? ORDER BY position`, name)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("load %s: columns", name), err)
	}
	defer rows.Close()

	var columns []domain.Column
	for rows.Next() {
		var colName, kind string
		if err := rows.Scan(&colName, &kind); err != nil {
			return nil, apperrors.NewStorageError(fmt.Sprintf("load %s: scan column", name), err)
		}
		columns = append(columns, domain.Column{Name: colName, Kind: domain.ValueKind(kind)})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("load %s: columns", name), err)
	}
	if len(columns) == 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("series %s", name))
	}

	colIdx := make(map[string]int, len(columns))
	for i, col := range columns {
		colIdx[col.Name] = i
	}

	valRows, err := p.db.QueryContext(ctx,
		`SELECT date, "column", value FROM series_values WHERE series = ? ORDER BY date`, name)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("load %s: values", name), err)
	}
	defer valRows.Close()

	var dates []time.Time
	dateIdx := make(map[string]int)
	for valRows.Next() {
		var dateStr, colName string
		var value sql.NullFloat64
		if err := valRows.Scan(&dateStr, &colName, &value); err != nil {
			return nil, apperrors.NewStorageError(fmt.Sprintf("load %s: scan value", name), err)
		}

		ri, ok := dateIdx[dateStr]
		if !ok {
			d, perr := time.Parse("2006-01-02", dateStr)
			if perr != nil {
				return nil, apperrors.NewStorageError(fmt.Sprintf("load %s: bad stored date %q", name, dateStr), perr)
			}
			ri = len(dates)
			dateIdx[dateStr] = ri
			dates = append(dates, d)
			for i := range columns {
				columns[i].Values = append(columns[i].Values, domain.Missing())
			}
		}

		ci, ok := colIdx[colName]
		if !ok {
			continue
		}
		if value.Valid {
			columns[ci].Values[ri] = value.Float64
		}
	}
	if err := valRows.Err(); err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("load %s: values", name), err)
	}

	return domain.NewSeries(name, dates, columns...)
}

// LoadMerged reads a stored merged table and its first-observed map.
func (p *Persister) LoadMerged(ctx context.Context, name string) (*domain.MergedTable, error) {
	s, err := p.LoadSeries(ctx, name)
	if err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT "column", date FROM first_observed WHERE series = ?`, name)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("load %s: first observed", name), err)
	}
	defer rows.Close()

	firstObserved := make(map[string]time.Time)
	for rows.Next() {
		var col, dateStr string
		if err := rows.Scan(&col, &dateStr); err != nil {
			return nil, apperrors.NewStorageError(fmt.Sprintf("load %s: scan first observed", name), err)
		}
		d, perr := time.Parse("2006-01-02", dateStr)
		if perr != nil {
			return nil, apperrors.NewStorageError(fmt.Sprintf("load %s: bad stored date %q", name, dateStr), perr)
		}
		firstObserved[col] = d
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("load %s: first observed", name), err)
	}

	return &domain.MergedTable{Series: *s, FirstObserved: firstObserved}, nil
}

// ListSeries returns the names of every stored series.
func (p *Persister) ListSeries(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT DISTINCT series FROM series_columns ORDER BY series`)
	if err != nil {
		return nil, apperrors.NewStorageError("list series", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.NewStorageError("list series: scan", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
