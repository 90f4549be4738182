package pipeline

import (
	"context"

	"macropipe/internal/calendar"
	"macropipe/internal/dataprocessing"
	"macropipe/internal/validation"
)

// dedupeStage repairs duplicate dates, keeping the last delivery.
type dedupeStage struct{}

func (dedupeStage) ID() string            { return "dedupe" }
func (dedupeStage) Name() string          { return "Duplicate date repair" }
func (dedupeStage) Requires() []Condition { return nil }
func (dedupeStage) Provides() []Condition { return []Condition{CondDatesUnique} }

func (dedupeStage) Execute(ctx context.Context, st *State) error {
	out, dropped := dataprocessing.DeduplicateDates(st.Series)
	st.Series = out
	st.Report.DuplicatesDropped = dropped
	return nil
}

// synthesizeStage detects gaps against the calendar, records them in the
// report and materializes the missing rows.
type synthesizeStage struct {
	cal    *calendar.Calendar
	policy dataprocessing.FillPolicy
}

func (synthesizeStage) ID() string            { return "synthesize" }
func (synthesizeStage) Name() string          { return "Missing row synthesis" }
func (synthesizeStage) Requires() []Condition { return []Condition{CondDatesUnique} }
func (synthesizeStage) Provides() []Condition { return []Condition{CondGapless} }

func (s synthesizeStage) Execute(ctx context.Context, st *State) error {
	gaps, err := dataprocessing.TimeGaps(st.Series, s.cal)
	if err != nil {
		return err
	}
	st.Report.Gaps = gaps

	out, err := dataprocessing.SynthesizeMissing(st.Series, gaps.MissingDates, s.policy)
	if err != nil {
		return err
	}
	st.Report.RowsSynthesized = out.Len() - st.Series.Len()
	st.Series = out
	return nil
}

// forwardFillStage closes interior holes; leading holes go into the report.
type forwardFillStage struct {
	requireSeed bool
}

func (forwardFillStage) ID() string            { return "forward_fill" }
func (forwardFillStage) Name() string          { return "Forward fill" }
func (forwardFillStage) Requires() []Condition { return []Condition{CondDatesUnique} }
func (forwardFillStage) Provides() []Condition { return []Condition{CondFilled} }

func (s forwardFillStage) Execute(ctx context.Context, st *State) error {
	out, report, err := dataprocessing.ForwardFill(st.Series, dataprocessing.FillOptions{
		RequireSeed: s.requireSeed,
	})
	if err != nil {
		return err
	}
	st.Series = out
	st.Report.Fill = report
	return nil
}

// normalizeStage converts percent fields to decimal fractions. Providing
// CondDecimalUnits (and the anomaly stage requiring it) is what keeps the
// non-idempotent division from being applied twice.
type normalizeStage struct {
	fields []string
}

func (normalizeStage) ID() string            { return "normalize" }
func (normalizeStage) Name() string          { return "Percent to decimal" }
func (normalizeStage) Requires() []Condition { return []Condition{CondDatesUnique} }
func (normalizeStage) Provides() []Condition { return []Condition{CondDecimalUnits} }

func (s normalizeStage) Execute(ctx context.Context, st *State) error {
	if len(s.fields) == 0 {
		return nil
	}
	out, err := dataprocessing.PercentToDecimal(st.Series, s.fields)
	if err != nil {
		return err
	}
	st.Series = out
	return nil
}

// anomalyStage runs the advisory validator. Thresholds are expressed in the
// decimal units the normalize stage establishes.
type anomalyStage struct {
	thresholds map[string]validation.Threshold
}

func (anomalyStage) ID() string   { return "anomaly_check" }
func (anomalyStage) Name() string { return "Anomaly validation" }
func (anomalyStage) Requires() []Condition {
	return []Condition{CondFilled, CondDecimalUnits}
}
func (anomalyStage) Provides() []Condition { return nil }

func (s anomalyStage) Execute(ctx context.Context, st *State) error {
	report, err := validation.CheckAnomalies(st.Series, s.thresholds)
	if err != nil {
		return err
	}
	st.Report.Anomalies = report
	return nil
}

// renameStage renames the observation column to the series name, so merged
// tables carry self-describing column names.
type renameStage struct {
	from, to string
}

func (renameStage) ID() string            { return "rename" }
func (renameStage) Name() string          { return "Column rename" }
func (renameStage) Requires() []Condition { return nil }
func (renameStage) Provides() []Condition { return nil }

func (s renameStage) Execute(ctx context.Context, st *State) error {
	if s.from == s.to || !st.Series.HasColumn(s.from) {
		return nil
	}
	out := st.Series.Clone()
	if err := out.RenameColumn(s.from, s.to); err != nil {
		return err
	}
	st.Series = out
	return nil
}

// aggregateGapsStage runs gap detection on an already-daily series without
// synthesizing rows, for reporting only.
type gapReportStage struct {
	cal *calendar.Calendar
}

func (gapReportStage) ID() string            { return "gap_report" }
func (gapReportStage) Name() string          { return "Gap detection" }
func (gapReportStage) Requires() []Condition { return []Condition{CondDatesUnique} }
func (gapReportStage) Provides() []Condition { return nil }

func (s gapReportStage) Execute(ctx context.Context, st *State) error {
	gaps, err := dataprocessing.TimeGaps(st.Series, s.cal)
	if err != nil {
		return err
	}
	st.Report.Gaps = gaps
	return nil
}
