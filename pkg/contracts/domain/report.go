package domain

import "time"

// GapRun is a consecutive run of missing business dates.
type GapRun struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Missing int       `json:"missing"`
}

// GapReport describes where a series deviates from the business calendar.
// It is diagnostic output only and never feeds back into the series.
type GapReport struct {
	Series string `json:"series"`

	// Runs groups the missing dates into consecutive stretches.
	Runs []GapRun `json:"runs,omitempty"`

	// MissingDates lists every missing business date in calendar order.
	MissingDates []time.Time `json:"missing_dates,omitempty"`

	// Unexpected lists observed dates that fall outside the calendar
	// (weekends, configured holidays).
	Unexpected []time.Time `json:"unexpected,omitempty"`
}

// TotalMissing returns the number of missing business dates.
func (r *GapReport) TotalMissing() int {
	return len(r.MissingDates)
}

// IsClean reports whether the series matches the calendar exactly.
func (r *GapReport) IsClean() bool {
	return len(r.MissingDates) == 0 && len(r.Unexpected) == 0
}

// FillReport records what a forward-fill pass changed. Leading missing
// values cannot be filled and are listed per column rather than dropped.
type FillReport struct {
	Series         string                 `json:"series"`
	CellsFilled    map[string]int         `json:"cells_filled,omitempty"`
	LeadingMissing map[string][]time.Time `json:"leading_missing,omitempty"`
}

// TotalFilled returns the number of cells replaced across all columns.
func (r *FillReport) TotalFilled() int {
	total := 0
	for _, n := range r.CellsFilled {
		total += n
	}
	return total
}

// AnomalyKind classifies a flagged observation.
type AnomalyKind string

const (
	// AnomalyOutOfRange marks a value outside its absolute plausible range.
	AnomalyOutOfRange AnomalyKind = "out_of_range"
	// AnomalyExcessiveDelta marks a jump from the previous observation
	// beyond the configured maximum.
	AnomalyExcessiveDelta AnomalyKind = "excessive_delta"
	// AnomalyMissingValue marks a NaN observation. Reported separately from
	// range violations because absence and implausibility are different
	// defects.
	AnomalyMissingValue AnomalyKind = "missing_value"
)

// Anomaly is one flagged observation.
type Anomaly struct {
	Date    time.Time   `json:"date"`
	Field   string      `json:"field"`
	Value   float64     `json:"value"`
	Kind    AnomalyKind `json:"kind"`
	Message string      `json:"message"`
}

// FieldStats summarizes the non-missing observations of one column.
type FieldStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// AnomalyReport is the advisory output of validation. Flagging never halts
// the pipeline; the report travels alongside the data. Fields with no
// configured threshold appear in Unchecked, never in Checked: "no threshold"
// means unverified, not passed.
type AnomalyReport struct {
	Series    string                `json:"series"`
	Anomalies []Anomaly             `json:"anomalies,omitempty"`
	Checked   []string              `json:"checked,omitempty"`
	Unchecked []string              `json:"unchecked,omitempty"`
	Stats     map[string]FieldStats `json:"stats,omitempty"`
}

// HasFlags reports whether any observation was flagged.
func (r *AnomalyReport) HasFlags() bool {
	return len(r.Anomalies) > 0
}

// SeriesInfo is a compact description of a series used in run summaries.
type SeriesInfo struct {
	Name    string    `json:"name"`
	Rows    int       `json:"rows"`
	Columns []string  `json:"columns"`
	Start   time.Time `json:"start,omitempty"`
	End     time.Time `json:"end,omitempty"`
}

// Info describes a series for reporting.
func (s *Series) Info() SeriesInfo {
	info := SeriesInfo{
		Name:    s.Name,
		Rows:    s.Len(),
		Columns: s.ColumnNames(),
	}
	if start, end, ok := s.Range(); ok {
		info.Start = start
		info.End = end
	}
	return info
}
