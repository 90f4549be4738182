package dataprocessing

import (
	"time"

	"macropipe/internal/calendar"
	"macropipe/pkg/contracts/domain"
)

// MissingDates returns the business dates inside the series' observed range
// that the series has no row for, in calendar order. An empty series has no
// range to check and yields an empty result, not an error.
func MissingDates(s *domain.Series, cal *calendar.Calendar) ([]time.Time, error) {
	start, end, ok := s.Range()
	if !ok {
		return nil, nil
	}
	if !s.IsSorted() {
		sorted := s.Clone()
		sorted.SortByDate()
		start, end, _ = sorted.Range()
	}

	expected, err := cal.BusinessDates(start, end)
	if err != nil {
		return nil, err
	}

	observed := make(map[time.Time]bool, s.Len())
	for _, d := range s.Dates {
		observed[d] = true
	}

	var missing []time.Time
	for _, d := range expected {
		if !observed[d] {
			missing = append(missing, d)
		}
	}
	return missing, nil
}

// TimeGaps runs the same detection as MissingDates but produces a diagnostic
// report: missing dates grouped into consecutive runs, plus observed dates
// that fall outside the calendar. The input series is never modified.
func TimeGaps(s *domain.Series, cal *calendar.Calendar) (*domain.GapReport, error) {
	report := &domain.GapReport{Series: s.Name}

	missing, err := MissingDates(s, cal)
	if err != nil {
		return nil, err
	}
	report.MissingDates = missing
	report.Runs = groupRuns(missing, cal)

	for _, d := range s.Dates {
		if !cal.IsBusinessDay(d) {
			report.Unexpected = append(report.Unexpected, d)
		}
	}
	return report, nil
}

// groupRuns folds missing dates into runs of consecutive business dates. Two
// missing dates belong to the same run when no business day lies between
// them, so a gap spanning a weekend is still one run.
func groupRuns(missing []time.Time, cal *calendar.Calendar) []domain.GapRun {
	if len(missing) == 0 {
		return nil
	}

	var runs []domain.GapRun
	current := domain.GapRun{Start: missing[0], End: missing[0], Missing: 1}
	for _, d := range missing[1:] {
		if nextBusinessDay(current.End, cal).Equal(d) {
			current.End = d
			current.Missing++
			continue
		}
		runs = append(runs, current)
		current = domain.GapRun{Start: d, End: d, Missing: 1}
	}
	return append(runs, current)
}

func nextBusinessDay(d time.Time, cal *calendar.Calendar) time.Time {
	for {
		d = d.AddDate(0, 0, 1)
		if cal.IsBusinessDay(d) {
			return d
		}
	}
}
