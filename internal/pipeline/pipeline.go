package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"macropipe/internal/calendar"
	"macropipe/internal/dataprocessing"
	"macropipe/internal/errors"
	"macropipe/internal/infrastructure"
	"macropipe/internal/validation"
	"macropipe/pkg/contracts/domain"
)

// Pipeline composes the cleaning operations into the macro and price flows
// and the final merge. It owns no business logic and no data: every flow
// takes its inputs as arguments and returns new values.
type Pipeline struct {
	cal     *calendar.Calendar
	logger  *slog.Logger
	metrics *infrastructure.PipelineMetrics
}

// New creates a pipeline. metrics may be nil when observability is not set up.
func New(cal *calendar.Calendar, logger *slog.Logger, metrics *infrastructure.PipelineMetrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cal: cal, logger: logger, metrics: metrics}
}

// MacroSpec configures the clean flow of one macro series.
type MacroSpec struct {
	// Name is the logical series name; the observation column is renamed to
	// it so merged tables are self-describing.
	Name string
	// NormalizeFields lists the percent columns to convert to decimal.
	NormalizeFields []string
	// Thresholds drive the advisory anomaly check, keyed by column name and
	// expressed in post-normalization units.
	Thresholds map[string]validation.Threshold
	// FillPolicy for synthesized rows; empty means forward, the macro
	// default.
	FillPolicy dataprocessing.FillPolicy
}

// PriceSpec configures the clean flow of one price series.
type PriceSpec struct {
	Symbol string
	// ColumnSuffix is appended to the OHLCV column names (e.g. "_SPY") so
	// several price series can share a merged table.
	ColumnSuffix string
}

// SpreadKind selects which derived macro series to compute.
type SpreadKind string

const (
	// SpreadCredit derives first minus second as a credit spread.
	SpreadCredit SpreadKind = "credit"
	// SpreadYieldCurve derives first minus second as a yield-curve spread.
	SpreadYieldCurve SpreadKind = "yield_curve"
)

// MacroInput pairs a raw macro series with its clean spec.
type MacroInput struct {
	Series *domain.Series
	Spec   MacroSpec
}

// SpreadInput derives a macro series from two raw legs, then cleans the
// derived series with the given spec.
type SpreadInput struct {
	Kind   SpreadKind
	First  *domain.Series
	Second *domain.Series
	Spec   MacroSpec
}

// PriceInput is one price series: either raw intraday bars or an
// already-daily series.
type PriceInput struct {
	Bars  []domain.Bar
	Daily *domain.Series
	Spec  PriceSpec
}

// Inputs carries everything one run consumes. The first price input
// provides the date axis of the merged table.
type Inputs struct {
	Macros  []MacroInput
	Spreads []SpreadInput
	Prices  []PriceInput
}

// CleanMacro runs the macro flow: duplicate repair, gap synthesis,
// forward-fill, percent-to-decimal, rename of the observation column to the
// series name, then the anomaly check against thresholds keyed by that name.
// Returns the cleaned series and the report of every adjustment made.
func (p *Pipeline) CleanMacro(ctx context.Context, raw *domain.Series, spec MacroSpec) (*domain.Series, *CleanReport, error) {
	policy := spec.FillPolicy
	if policy == "" {
		policy = dataprocessing.FillForward
	}

	st := NewState(raw)
	err := runStages(ctx, p.logger, st,
		dedupeStage{},
		synthesizeStage{cal: p.cal, policy: policy},
		forwardFillStage{},
		normalizeStage{fields: spec.NormalizeFields},
		renameStage{from: "value", to: spec.Name},
		anomalyStage{thresholds: spec.Thresholds},
	)
	if err != nil {
		return nil, nil, err
	}

	st.Series.Name = spec.Name
	st.Report.Series = spec.Name
	st.Report.Info = st.Series.Info()
	p.recordClean(ctx, st.Report)
	return st.Series, st.Report, nil
}

// CleanPrice runs the price flow: intraday aggregation (when bars are
// supplied), duplicate repair, gap synthesis with zero-volume no-trade rows,
// then column suffixing.
func (p *Pipeline) CleanPrice(ctx context.Context, input PriceInput) (*domain.Series, *CleanReport, error) {
	daily := input.Daily
	if len(input.Bars) > 0 {
		aggregated, err := dataprocessing.ToDailyOHLCV(input.Bars)
		if err != nil {
			return nil, nil, err
		}
		daily = aggregated
	}
	if daily == nil {
		return nil, nil, errors.NewConfigError(
			fmt.Sprintf("price input %s has neither bars nor a daily series", input.Spec.Symbol), nil)
	}

	st := NewState(daily)
	err := runStages(ctx, p.logger, st,
		dedupeStage{},
		synthesizeStage{cal: p.cal, policy: dataprocessing.FillZeroVolume},
	)
	if err != nil {
		return nil, nil, err
	}

	out := st.Series
	if input.Spec.ColumnSuffix != "" {
		out = out.Clone()
		for _, name := range out.ColumnNames() {
			if err := out.RenameColumn(name, name+input.Spec.ColumnSuffix); err != nil {
				return nil, nil, err
			}
		}
	}
	out.Name = input.Spec.Symbol
	st.Report.Series = input.Spec.Symbol
	st.Report.Info = out.Info()
	p.recordClean(ctx, st.Report)
	return out, st.Report, nil
}

// deriveSpread computes the derived series for a spread input.
func deriveSpread(in SpreadInput) (*domain.Series, error) {
	switch in.Kind {
	case SpreadCredit:
		return dataprocessing.DeriveCreditSpread(in.First, in.Second)
	case SpreadYieldCurve:
		return dataprocessing.DeriveYieldCurveSpread(in.First, in.Second)
	default:
		return nil, errors.NewConfigError(fmt.Sprintf("unknown spread kind %q", in.Kind), nil)
	}
}

// Run executes the whole pipeline: all macro and spread clean flows run
// concurrently (each path is independent), price series are cleaned, and the
// single sequential merge joins everything onto the first price series'
// date axis.
func (p *Pipeline) Run(ctx context.Context, inputs Inputs) (*RunReport, error) {
	if len(inputs.Prices) == 0 {
		return nil, errors.NewConfigError("pipeline run needs at least one price series for the merge axis", nil)
	}

	report := &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	logger := p.logger.With(slog.String("run_id", report.RunID))
	logger.InfoContext(ctx, "pipeline run starting",
		slog.Int("macro_series", len(inputs.Macros)),
		slog.Int("spreads", len(inputs.Spreads)),
		slog.Int("price_series", len(inputs.Prices)))

	var mu sync.Mutex
	macroSeries := make([]*domain.Series, len(inputs.Macros)+len(inputs.Spreads))

	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs.Macros {
		g.Go(func() error {
			cleaned, cr, err := p.CleanMacro(gctx, in.Series, in.Spec)
			if err != nil {
				return fmt.Errorf("macro %s: %w", in.Spec.Name, err)
			}
			mu.Lock()
			macroSeries[i] = cleaned
			report.Macro = append(report.Macro, cr)
			mu.Unlock()
			return nil
		})
	}
	for i, in := range inputs.Spreads {
		g.Go(func() error {
			derived, err := deriveSpread(in)
			if err != nil {
				return fmt.Errorf("spread %s: %w", in.Spec.Name, err)
			}
			cleaned, cr, err := p.CleanMacro(gctx, derived, in.Spec)
			if err != nil {
				return fmt.Errorf("spread %s: %w", in.Spec.Name, err)
			}
			mu.Lock()
			macroSeries[len(inputs.Macros)+i] = cleaned
			report.Macro = append(report.Macro, cr)
			mu.Unlock()
			return nil
		})
	}

	priceSeries := make([]*domain.Series, len(inputs.Prices))
	for i, in := range inputs.Prices {
		g.Go(func() error {
			cleaned, cr, err := p.CleanPrice(gctx, in)
			if err != nil {
				return fmt.Errorf("price %s: %w", in.Spec.Symbol, err)
			}
			mu.Lock()
			priceSeries[i] = cleaned
			report.Price = append(report.Price, cr)
			mu.Unlock()
			return nil
		})
	}

	// The merge must not start before every input is ready.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	others := make([]*domain.Series, 0, len(priceSeries)-1+len(macroSeries))
	others = append(others, priceSeries[1:]...)
	others = append(others, macroSeries...)

	merged, err := dataprocessing.Merge(priceSeries[0], others)
	if err != nil {
		return nil, err
	}

	report.Merged = merged
	report.Cleaned = append(report.Cleaned, priceSeries...)
	report.Cleaned = append(report.Cleaned, macroSeries...)
	report.MergedInfo = merged.Series.Info()
	report.Duration = time.Since(report.StartedAt)

	if p.metrics != nil {
		p.metrics.RecordRun(ctx, report.Duration, merged.Len())
	}
	logger.InfoContext(ctx, "pipeline run complete",
		slog.Int("merged_rows", merged.Len()),
		slog.Int("merged_columns", len(merged.Columns)),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// recordClean pushes per-series counters to the metrics sink.
func (p *Pipeline) recordClean(ctx context.Context, cr *CleanReport) {
	if p.metrics == nil {
		return
	}
	anomalies := 0
	if cr.Anomalies != nil {
		anomalies = len(cr.Anomalies.Anomalies)
	}
	filled := 0
	if cr.Fill != nil {
		filled = cr.Fill.TotalFilled()
	}
	p.metrics.RecordClean(ctx, cr.Series, cr.RowsSynthesized, filled, anomalies)
}
