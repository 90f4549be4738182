package pipeline

import (
	"time"

	"macropipe/pkg/contracts/domain"
)

// CleanReport describes everything a clean flow adjusted on one series.
// The pipeline never returns a transformed series without one: fills,
// synthesized rows and flags are adjustments the caller must be able to see.
type CleanReport struct {
	Series            string                `json:"series"`
	DuplicatesDropped int                   `json:"duplicates_dropped"`
	RowsSynthesized   int                   `json:"rows_synthesized"`
	Gaps              *domain.GapReport     `json:"gaps,omitempty"`
	Fill              *domain.FillReport    `json:"fill,omitempty"`
	Anomalies         *domain.AnomalyReport `json:"anomalies,omitempty"`
	Info              domain.SeriesInfo     `json:"info"`
	Stages            []StageResult         `json:"stages,omitempty"`
}

// RunReport is the outcome of one full pipeline run.
type RunReport struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Macro  []*CleanReport `json:"macro,omitempty"`
	Price  []*CleanReport `json:"price,omitempty"`
	Merged *domain.MergedTable `json:"-"`

	// Cleaned holds every cleaned series of the run for persistence; like
	// the merged table it stays out of the report payload.
	Cleaned []*domain.Series `json:"-"`

	// MergedInfo summarizes the merged table for serialization; the table
	// itself goes to the persister, not into the report payload.
	MergedInfo domain.SeriesInfo `json:"merged_info"`
}

// FindSeries returns the clean report for the named series, if present.
func (r *RunReport) FindSeries(name string) *CleanReport {
	for _, cr := range r.Macro {
		if cr.Series == name {
			return cr
		}
	}
	for _, cr := range r.Price {
		if cr.Series == name {
			return cr
		}
	}
	return nil
}
