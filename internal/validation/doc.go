// Package validation flags implausible observations in cleaned series.
//
// Validation is advisory: findings are returned as reports and never halt
// the pipeline, because a single suspect observation must not abort a batch.
// Structural defects are the business of package dataprocessing, which does
// raise errors.
package validation
