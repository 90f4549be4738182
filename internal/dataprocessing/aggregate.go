package dataprocessing

import (
	"fmt"
	"sort"
	"time"

	"macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

// ToDailyOHLCV collapses intraday bars into one OHLCV row per calendar date:
// open from the first bar, close from the last (by timestamp), high and low
// as the extremes, volume as the exact sum. Bars may arrive in any order.
// A bar violating OHLC ordering, carrying a non-finite price, a negative
// volume or a zero timestamp fails the whole aggregation with a
// malformed-bar error; a silently wrong daily row is worse than no row.
func ToDailyOHLCV(bars []domain.Bar) (*domain.Series, error) {
	name := ""
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return nil, errors.NewMalformedBarError(
				fmt.Sprintf("bar %d rejected", i), err).WithContext("index", i)
		}
		if name == "" {
			name = b.Symbol
		}
	}

	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Time.Before(sorted[b].Time)
	})

	var dates []time.Time
	columns := domain.OHLCVColumns(0)
	open, high, low, cls, volume := &columns[0], &columns[1], &columns[2], &columns[3], &columns[4]

	for i := 0; i < len(sorted); {
		day := sorted[i].Date()
		j := i
		dayHigh := sorted[i].High
		dayLow := sorted[i].Low
		dayVolume := 0.0
		for ; j < len(sorted) && sorted[j].Date().Equal(day); j++ {
			if sorted[j].High > dayHigh {
				dayHigh = sorted[j].High
			}
			if sorted[j].Low < dayLow {
				dayLow = sorted[j].Low
			}
			dayVolume += sorted[j].Volume
		}

		dates = append(dates, day)
		open.Values = append(open.Values, sorted[i].Open)
		high.Values = append(high.Values, dayHigh)
		low.Values = append(low.Values, dayLow)
		cls.Values = append(cls.Values, sorted[j-1].Close)
		volume.Values = append(volume.Values, dayVolume)
		i = j
	}

	return &domain.Series{Name: name, Dates: dates, Columns: columns}, nil
}
