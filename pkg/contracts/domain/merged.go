package domain

import "time"

// MergedTable is the result of aligning macro columns onto a price series'
// date axis. The price axis is the reference: every price date appears
// exactly once and no price row is dropped because a macro series has a gap.
// Macro values are forward-filled from each column's first observation date;
// price dates before that first observation stay NaN. FirstObserved records
// that boundary per column so consumers can tell "not yet observed" apart
// from "observed and missing".
type MergedTable struct {
	Series

	// FirstObserved maps each joined column to the first date a real
	// observation exists for it. Rows before this date carry NaN.
	FirstObserved map[string]time.Time `json:"first_observed"`
}

// Unfilled reports whether the named column has no observation at or before
// the given date.
func (m *MergedTable) Unfilled(column string, date time.Time) bool {
	first, ok := m.FirstObserved[column]
	if !ok {
		return false
	}
	return NormalizeDate(date).Before(first)
}
