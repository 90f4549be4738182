package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

// Condition is a property of the series a stage requires or establishes.
// Ordering constraints between stages (normalize before the anomaly check,
// dedupe before synthesis) are declared through conditions and verified at
// run time instead of being relied on by convention.
type Condition string

const (
	// CondDatesUnique holds after duplicate dates are repaired.
	CondDatesUnique Condition = "dates_unique"
	// CondGapless holds after every business date has a row.
	CondGapless Condition = "gapless"
	// CondFilled holds after forward-fill closed the interior holes.
	CondFilled Condition = "filled"
	// CondDecimalUnits holds after percent fields are converted to decimal
	// fractions. Guards the non-idempotent conversion from running twice.
	CondDecimalUnits Condition = "decimal_units"
)

// State is the value passed from stage to stage: the series being cleaned,
// the conditions established so far and the report under construction. There
// is no hidden pipeline state anywhere else; the caller owns the State.
type State struct {
	Series     *domain.Series
	Conditions map[Condition]bool
	Report     *CleanReport
}

// NewState wraps a raw series for cleaning.
func NewState(s *domain.Series) *State {
	return &State{
		Series:     s,
		Conditions: make(map[Condition]bool),
		Report:     &CleanReport{Series: s.Name},
	}
}

// Satisfied reports whether all given conditions hold.
func (st *State) Satisfied(conds []Condition) bool {
	for _, c := range conds {
		if !st.Conditions[c] {
			return false
		}
	}
	return true
}

// Stage is one cleaning step. Requires lists the conditions that must hold
// on the input; Provides lists the conditions established on success.
type Stage interface {
	// ID returns the unique identifier for this stage
	ID() string

	// Name returns the human-readable name for this stage
	Name() string

	// Requires returns the conditions the input series must satisfy
	Requires() []Condition

	// Provides returns the conditions established after execution
	Provides() []Condition

	// Execute runs the stage against the state
	Execute(ctx context.Context, st *State) error
}

// StageResult records one executed stage for the clean report.
type StageResult struct {
	ID       string        `json:"id"`
	Duration time.Duration `json:"duration"`
}

// runStages executes stages in order, verifying each stage's declared
// requirements first. A requirement violation is a configuration error: the
// flow was assembled in the wrong order, and running the stage anyway would
// produce a silently wrong table.
func runStages(ctx context.Context, logger *slog.Logger, st *State, stages ...Stage) error {
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !st.Satisfied(stage.Requires()) {
			return errors.NewConfigError(
				fmt.Sprintf("stage %s requires %v on series %s; flow is misordered",
					stage.ID(), stage.Requires(), st.Series.Name), nil)
		}

		start := time.Now()
		if err := stage.Execute(ctx, st); err != nil {
			return fmt.Errorf("stage %s: %w", stage.ID(), err)
		}
		elapsed := time.Since(start)

		for _, c := range stage.Provides() {
			st.Conditions[c] = true
		}
		st.Report.Stages = append(st.Report.Stages, StageResult{ID: stage.ID(), Duration: elapsed})

		logger.DebugContext(ctx, "stage completed",
			slog.String("stage", stage.ID()),
			slog.String("series", st.Series.Name),
			slog.Int("rows", st.Series.Len()),
			slog.Duration("duration", elapsed))
	}
	return nil
}
