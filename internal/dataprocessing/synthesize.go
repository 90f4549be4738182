package dataprocessing

import (
	"fmt"
	"sort"
	"time"

	"macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

// FillPolicy selects the values a synthesized row is given.
type FillPolicy string

const (
	// FillNone leaves synthesized rows missing (NaN).
	FillNone FillPolicy = "none"
	// FillForward copies the previous row's values. The default for macro
	// data, where a gap means no new reading was published.
	FillForward FillPolicy = "forward"
	// FillZeroVolume synthesizes a no-trade bar: volume 0 and OHLC set to
	// the previous close. The default for price data, where the absence of
	// an update means nothing traded, not that a reading went missing.
	FillZeroVolume FillPolicy = "zero_volume"
)

// IsValid checks if the fill policy is one of the declared policies
func (p FillPolicy) IsValid() bool {
	switch p {
	case FillNone, FillForward, FillZeroVolume:
		return true
	}
	return false
}

// SynthesizeMissing inserts one row per missing date, valued per policy.
// A missing date earlier than the first observed row cannot be seeded under
// FillForward or FillZeroVolume and fails with an insufficient-history error
// rather than fabricating data. The input series is not modified.
func SynthesizeMissing(s *domain.Series, missing []time.Time, policy FillPolicy) (*domain.Series, error) {
	if !policy.IsValid() {
		return nil, errors.NewConfigError(fmt.Sprintf("unknown fill policy %q", policy), nil)
	}
	if len(missing) == 0 {
		return s.Clone(), nil
	}

	base := s.Clone()
	if !base.IsSorted() {
		base.SortByDate()
	}

	insert := make([]time.Time, 0, len(missing))
	for _, d := range missing {
		d = domain.NormalizeDate(d)
		if _, ok := base.DateIndex(d); ok {
			continue
		}
		insert = append(insert, d)
	}
	sort.Slice(insert, func(a, b int) bool { return insert[a].Before(insert[b]) })
	if len(insert) == 0 {
		return base, nil
	}

	if policy != FillNone && base.Len() > 0 && insert[0].Before(base.Dates[0]) {
		return nil, errors.NewInsufficientHistoryError(
			fmt.Sprintf("series %s: no seed row before missing date %s",
				base.Name, insert[0].Format("2006-01-02")), nil)
	}
	if policy != FillNone && base.Len() == 0 {
		return nil, errors.NewInsufficientHistoryError(
			fmt.Sprintf("series %s: cannot fill into an empty series", base.Name), nil)
	}

	closeIdx := -1
	volumeIdx := -1
	if policy == FillZeroVolume {
		for i, col := range base.Columns {
			switch col.Name {
			case domain.ColumnClose:
				closeIdx = i
			case domain.ColumnVolume:
				volumeIdx = i
			}
		}
		if closeIdx < 0 || volumeIdx < 0 {
			return nil, errors.NewConfigError(
				fmt.Sprintf("series %s: zero-volume fill requires close and volume columns", base.Name), nil)
		}
	}

	total := base.Len() + len(insert)
	dates := make([]time.Time, 0, total)
	columns := make([]domain.Column, len(base.Columns))
	for c, col := range base.Columns {
		columns[c] = domain.Column{Name: col.Name, Kind: col.Kind, Values: make([]float64, 0, total)}
	}

	// Merge the observed rows and the synthesized dates in one ascending
	// pass, carrying the values of the last emitted row for the fill.
	oi, mi := 0, 0
	for oi < base.Len() || mi < len(insert) {
		takeObserved := mi >= len(insert) ||
			(oi < base.Len() && base.Dates[oi].Before(insert[mi]))

		if takeObserved {
			dates = append(dates, base.Dates[oi])
			for c := range columns {
				columns[c].Values = append(columns[c].Values, base.Columns[c].Values[oi])
			}
			oi++
			continue
		}

		dates = append(dates, insert[mi])
		prev := len(dates) - 2
		for c := range columns {
			var v float64
			switch policy {
			case FillNone:
				v = domain.Missing()
			case FillForward:
				v = columns[c].Values[prev]
			case FillZeroVolume:
				switch c {
				case volumeIdx:
					v = 0
				case closeIdx:
					v = columns[closeIdx].Values[prev]
				default:
					if columns[c].Kind == domain.KindPrice {
						v = columns[closeIdx].Values[prev]
					} else {
						v = columns[c].Values[prev]
					}
				}
			}
			columns[c].Values = append(columns[c].Values, v)
		}
		mi++
	}

	return &domain.Series{Name: base.Name, Dates: dates, Columns: columns}, nil
}
