package dataprocessing

import (
	"fmt"
	"time"

	"macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

// FillOptions configures forward-fill behaviour.
type FillOptions struct {
	// Columns restricts the fill to the named columns. Empty means all.
	Columns []string
	// RequireSeed makes a leading missing value an error instead of a
	// report entry. Used where downstream stages cannot tolerate holes.
	RequireSeed bool
}

// ForwardFill replaces every missing value with the most recent non-missing
// value at or before its date, per column. Leading missing values have no
// seed; they are left in place and listed in the report, never silently
// dropped. With RequireSeed set they fail with an insufficient-history error
// instead. The input series is not modified.
func ForwardFill(s *domain.Series, opts FillOptions) (*domain.Series, *domain.FillReport, error) {
	out := s.Clone()
	if !out.IsSorted() {
		out.SortByDate()
	}

	target := make(map[string]bool, len(opts.Columns))
	for _, name := range opts.Columns {
		if !out.HasColumn(name) {
			return nil, nil, errors.NewConfigError(
				fmt.Sprintf("series %s: forward-fill of unknown column %s", s.Name, name), nil)
		}
		target[name] = true
	}

	report := &domain.FillReport{
		Series:         s.Name,
		CellsFilled:    make(map[string]int),
		LeadingMissing: make(map[string][]time.Time),
	}

	for c := range out.Columns {
		col := &out.Columns[c]
		if len(target) > 0 && !target[col.Name] {
			continue
		}

		last := domain.Missing()
		for i, v := range col.Values {
			if !domain.IsMissing(v) {
				last = v
				continue
			}
			if domain.IsMissing(last) {
				if opts.RequireSeed {
					return nil, nil, errors.NewInsufficientHistoryError(
						fmt.Sprintf("series %s: column %s has no seed value for %s",
							s.Name, col.Name, out.Dates[i].Format("2006-01-02")), nil)
				}
				report.LeadingMissing[col.Name] = append(report.LeadingMissing[col.Name], out.Dates[i])
				continue
			}
			col.Values[i] = last
			report.CellsFilled[col.Name]++
		}
	}

	return out, report, nil
}
