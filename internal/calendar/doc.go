// Package calendar computes the canonical set of business dates for a range.
//
// A business date is a weekday that is not in the configured holiday set. The
// default calendar excludes no holidays; NewUSFederal builds the observed US
// federal holiday calendar used by FRED and US markets. Calendars are pure
// and deterministic: the same (start, end, holiday set) always yields the
// same dates.
package calendar
