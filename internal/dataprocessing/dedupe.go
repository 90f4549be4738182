package dataprocessing

import (
	"time"

	"macropipe/pkg/contracts/domain"
)

// DeduplicateDates sorts the series by date and collapses duplicate dates,
// keeping the last occurrence of each. Sources occasionally re-deliver a
// revised row for a date already sent; the later row is the revision. Returns
// the repaired series and the number of rows dropped.
func DeduplicateDates(s *domain.Series) (*domain.Series, int) {
	out := s.Clone()
	out.SortByDate()
	if !out.HasDuplicateDates() {
		return out, 0
	}

	// The stable sort keeps delivery order within a date, so scanning
	// backwards and keeping the first hit per date keeps the last delivery.
	keep := make([]int, 0, out.Len())
	seen := make(map[time.Time]bool, out.Len())
	for i := out.Len() - 1; i >= 0; i-- {
		if seen[out.Dates[i]] {
			continue
		}
		seen[out.Dates[i]] = true
		keep = append(keep, i)
	}
	// Reverse back into ascending order.
	for l, r := 0, len(keep)-1; l < r; l, r = l+1, r-1 {
		keep[l], keep[r] = keep[r], keep[l]
	}

	dropped := out.Len() - len(keep)

	dates := make([]time.Time, len(keep))
	for i, j := range keep {
		dates[i] = out.Dates[j]
	}
	columns := make([]domain.Column, len(out.Columns))
	for c, col := range out.Columns {
		values := make([]float64, len(keep))
		for i, j := range keep {
			values[i] = col.Values[j]
		}
		columns[c] = domain.Column{Name: col.Name, Kind: col.Kind, Values: values}
	}

	return &domain.Series{Name: out.Name, Dates: dates, Columns: columns}, dropped
}
