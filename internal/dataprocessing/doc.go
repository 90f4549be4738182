// Package dataprocessing implements the structural repair operations of the
// pipeline: gap detection against a business calendar, duplicate-date repair,
// missing-row synthesis, forward-fill, unit normalization, intraday-to-daily
// OHLCV aggregation, derived spreads and the cross-frequency merge.
//
// Every operation takes its inputs as arguments and returns a new series;
// inputs are never mutated, so callers can keep the pre-transform value.
// Structural failures (malformed bars, missing seeds, column collisions) are
// errors; plausibility findings are reports and never halt a batch.
package dataprocessing
