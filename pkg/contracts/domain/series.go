package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// ValueKind declares the unit a column is expressed in. Transformations that
// change units (percent to decimal) update the kind so downstream consumers
// can verify they are reading what they expect.
type ValueKind string

const (
	KindPrice   ValueKind = "price"
	KindPercent ValueKind = "percent"
	KindDecimal ValueKind = "decimal"
	KindRate    ValueKind = "rate"
	KindVolume  ValueKind = "volume"
)

// IsValid checks if the value kind is one of the declared kinds
func (k ValueKind) IsValid() bool {
	switch k {
	case KindPrice, KindPercent, KindDecimal, KindRate, KindVolume:
		return true
	}
	return false
}

// Missing returns the sentinel for an absent observation.
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether v is the missing-value sentinel.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// NormalizeDate truncates t to midnight UTC, the canonical form for daily keys.
// All Series dates are stored in this form.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Column is a single named, typed value vector of a Series.
type Column struct {
	Name   string    `json:"name"`
	Kind   ValueKind `json:"kind"`
	Values []float64 `json:"values"`
}

// Series is an ordered daily table: one date axis plus named float64 columns.
// Missing observations are NaN (see Missing/IsMissing). Raw series loaded from
// a source may carry duplicate or unsorted dates; cleaned series are strictly
// ascending with unique dates. Transformations never mutate their input, they
// return a new Series.
type Series struct {
	Name    string      `json:"name"`
	Dates   []time.Time `json:"dates"`
	Columns []Column    `json:"columns"`
}

// NewSeries creates a series and verifies its structural consistency: every
// column must have exactly one value per date and column names must be unique.
func NewSeries(name string, dates []time.Time, columns ...Column) (*Series, error) {
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("series %s: column with empty name", name)
		}
		if seen[col.Name] {
			return nil, fmt.Errorf("series %s: duplicate column %s", name, col.Name)
		}
		seen[col.Name] = true
		if len(col.Values) != len(dates) {
			return nil, fmt.Errorf("series %s: column %s has %d values for %d dates",
				name, col.Name, len(col.Values), len(dates))
		}
	}

	normalized := make([]time.Time, len(dates))
	for i, d := range dates {
		normalized[i] = NormalizeDate(d)
	}

	return &Series{
		Name:    name,
		Dates:   normalized,
		Columns: columns,
	}, nil
}

// Len returns the number of rows.
func (s *Series) Len() int {
	return len(s.Dates)
}

// Column returns the column with the given name.
func (s *Series) Column(name string) (*Column, bool) {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i], true
		}
	}
	return nil, false
}

// HasColumn reports whether a column with the given name exists.
func (s *Series) HasColumn(name string) bool {
	_, ok := s.Column(name)
	return ok
}

// ColumnNames returns the column names in declaration order.
func (s *Series) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}

// RenameColumn renames a column in place. The target name must not collide
// with an existing column.
func (s *Series) RenameColumn(from, to string) error {
	if from == to {
		return nil
	}
	if s.HasColumn(to) {
		return fmt.Errorf("series %s: column %s already exists", s.Name, to)
	}
	col, ok := s.Column(from)
	if !ok {
		return fmt.Errorf("series %s: column %s not found", s.Name, from)
	}
	col.Name = to
	return nil
}

// Range returns the first and last date of the series. ok is false when the
// series is empty.
func (s *Series) Range() (start, end time.Time, ok bool) {
	if len(s.Dates) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.Dates[0], s.Dates[len(s.Dates)-1], true
}

// DateIndex finds the row index of a date using binary search. The series
// must be sorted by date.
func (s *Series) DateIndex(date time.Time) (int, bool) {
	d := NormalizeDate(date)
	i := sort.Search(len(s.Dates), func(i int) bool {
		return !s.Dates[i].Before(d)
	})
	if i < len(s.Dates) && s.Dates[i].Equal(d) {
		return i, true
	}
	return -1, false
}

// IsSorted reports whether dates are in strictly ascending order (which also
// implies no duplicates).
func (s *Series) IsSorted() bool {
	for i := 1; i < len(s.Dates); i++ {
		if !s.Dates[i-1].Before(s.Dates[i]) {
			return false
		}
	}
	return true
}

// HasDuplicateDates reports whether any date occurs more than once.
func (s *Series) HasDuplicateDates() bool {
	seen := make(map[time.Time]bool, len(s.Dates))
	for _, d := range s.Dates {
		if seen[d] {
			return true
		}
		seen[d] = true
	}
	return false
}

// SortByDate sorts rows by date, keeping each column aligned with the date
// axis. The sort is stable so duplicate dates keep their relative order for
// the deduplication pass.
func (s *Series) SortByDate() {
	idx := make([]int, len(s.Dates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return s.Dates[idx[a]].Before(s.Dates[idx[b]])
	})

	dates := make([]time.Time, len(s.Dates))
	for i, j := range idx {
		dates[i] = s.Dates[j]
	}
	s.Dates = dates

	for c := range s.Columns {
		values := make([]float64, len(s.Columns[c].Values))
		for i, j := range idx {
			values[i] = s.Columns[c].Values[j]
		}
		s.Columns[c].Values = values
	}
}

// Clone returns a deep copy. Transformations clone their input so callers can
// keep the pre-transform value.
func (s *Series) Clone() *Series {
	dates := make([]time.Time, len(s.Dates))
	copy(dates, s.Dates)

	columns := make([]Column, len(s.Columns))
	for i, col := range s.Columns {
		values := make([]float64, len(col.Values))
		copy(values, col.Values)
		columns[i] = Column{Name: col.Name, Kind: col.Kind, Values: values}
	}

	return &Series{Name: s.Name, Dates: dates, Columns: columns}
}

// Validate checks structural consistency without touching the cleaning
// invariants (sortedness and uniqueness are established by the pipeline).
func (s *Series) Validate() error {
	seen := make(map[string]bool, len(s.Columns))
	for _, col := range s.Columns {
		if col.Name == "" {
			return fmt.Errorf("series %s: column with empty name", s.Name)
		}
		if seen[col.Name] {
			return fmt.Errorf("series %s: duplicate column %s", s.Name, col.Name)
		}
		seen[col.Name] = true
		if len(col.Values) != len(s.Dates) {
			return fmt.Errorf("series %s: column %s has %d values for %d dates",
				s.Name, col.Name, len(col.Values), len(s.Dates))
		}
	}
	return nil
}
