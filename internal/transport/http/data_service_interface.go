package http

import (
	"context"

	"macropipe/internal/pipeline"
	"macropipe/pkg/contracts/domain"
)

// DataServiceInterface is the slice of the data service the handlers need.
type DataServiceInterface interface {
	GetSeries(ctx context.Context, name string) (*domain.Series, error)
	GetMergedTable(ctx context.Context) (*domain.MergedTable, error)
	ListSeries(ctx context.Context) ([]string, error)
	RunPipeline(ctx context.Context) (*pipeline.RunReport, error)
	FetchMacros(ctx context.Context) error
	LastReport() (*pipeline.RunReport, error)
	GetReport(runID string) (*pipeline.RunReport, error)
	Running() bool
}
