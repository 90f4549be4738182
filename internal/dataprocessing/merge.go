package dataprocessing

import (
	"fmt"
	"sort"
	"time"

	"macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

// Merge aligns one or more lower-frequency series onto the price series'
// date axis. The price axis is the reference: every price date appears
// exactly once and none is dropped because a joined series has a gap.
//
// Each joined column is forward-filled onto every price date at or after its
// first observation, using the joined series' own observations (which need
// not land on price dates). Price dates before the first observation stay
// missing; fabricating a value there would propagate information backward in
// time. Column name collisions are a configuration error, never a silent
// overwrite.
func Merge(price *domain.Series, others []*domain.Series) (*domain.MergedTable, error) {
	axis := price.Clone()
	if !axis.IsSorted() {
		axis.SortByDate()
	}
	if axis.HasDuplicateDates() {
		return nil, errors.NewConfigError(
			fmt.Sprintf("price series %s has duplicate dates; deduplicate before merging", price.Name), nil)
	}

	columns := make([]domain.Column, 0, len(axis.Columns))
	columns = append(columns, axis.Columns...)
	seen := make(map[string]string, len(columns))
	for _, col := range axis.Columns {
		seen[col.Name] = price.Name
	}

	firstObserved := make(map[string]time.Time)

	for _, other := range others {
		src := other.Clone()
		if !src.IsSorted() {
			src.SortByDate()
		}

		for _, col := range src.Columns {
			if owner, exists := seen[col.Name]; exists {
				return nil, errors.NewConfigError(
					fmt.Sprintf("column %s from series %s collides with series %s",
						col.Name, src.Name, owner), nil)
			}
			seen[col.Name] = src.Name

			merged, first := fillOntoAxis(axis.Dates, src.Dates, col.Values)
			columns = append(columns, domain.Column{Name: col.Name, Kind: col.Kind, Values: merged})
			if !first.IsZero() {
				firstObserved[col.Name] = first
			}
		}
	}

	return &domain.MergedTable{
		Series: domain.Series{
			Name:    price.Name,
			Dates:   axis.Dates,
			Columns: columns,
		},
		FirstObserved: firstObserved,
	}, nil
}

// fillOntoAxis projects (srcDates, srcValues) onto axis dates: each axis date
// takes the latest non-missing source value at or before it. Returns the
// projected values and the date of the first real observation (zero when the
// source is all missing).
func fillOntoAxis(axis, srcDates []time.Time, srcValues []float64) ([]float64, time.Time) {
	out := make([]float64, len(axis))

	var first time.Time
	for i, v := range srcValues {
		if !domain.IsMissing(v) {
			first = srcDates[i]
			break
		}
	}

	for i, d := range axis {
		// Index of the first source date after d.
		j := sort.Search(len(srcDates), func(k int) bool {
			return srcDates[k].After(d)
		})
		v := domain.Missing()
		for k := j - 1; k >= 0; k-- {
			if !domain.IsMissing(srcValues[k]) {
				v = srcValues[k]
				break
			}
		}
		out[i] = v
	}
	return out, first
}
