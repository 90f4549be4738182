package services

import "errors"

// Data service errors
var (
	// Run errors
	ErrRunActive = errors.New("pipeline run already in progress")
	ErrNoRunYet  = errors.New("no pipeline run has completed yet")

	// Series errors
	ErrSeriesNotFound = errors.New("series not found")
	ErrNoMergedTable  = errors.New("no merged table available")

	// Report errors
	ErrReportNotFound = errors.New("run report not found")
)
