package calendar

import (
	"fmt"
	"time"

	"macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

// Calendar computes business dates: weekdays minus a configured holiday set.
// A Calendar is immutable after construction and safe for concurrent use.
type Calendar struct {
	holidays map[time.Time]bool
}

// New creates a calendar with an explicit holiday set. A nil or empty set
// yields a plain weekday calendar, the default.
func New(holidays []time.Time) *Calendar {
	set := make(map[time.Time]bool, len(holidays))
	for _, h := range holidays {
		set[domain.NormalizeDate(h)] = true
	}
	return &Calendar{holidays: set}
}

// NewUSFederal creates a calendar that excludes observed US federal holidays
// for the given year range, matching FRED and US market reporting conventions.
func NewUSFederal(fromYear, toYear int) *Calendar {
	return New(USFederalHolidays(fromYear, toYear))
}

// IsBusinessDay reports whether d is a weekday outside the holiday set.
func (c *Calendar) IsBusinessDay(d time.Time) bool {
	d = domain.NormalizeDate(d)
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays[d]
}

// BusinessDates returns every business date in [start, end], ascending.
// A start after end is a configuration error, not an empty result: callers
// passing a reversed range have a broken date computation upstream.
func (c *Calendar) BusinessDates(start, end time.Time) ([]time.Time, error) {
	start = domain.NormalizeDate(start)
	end = domain.NormalizeDate(end)
	if start.After(end) {
		return nil, errors.NewConfigError(
			fmt.Sprintf("invalid date range: start %s after end %s",
				start.Format("2006-01-02"), end.Format("2006-01-02")), nil)
	}

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			dates = append(dates, d)
		}
	}
	return dates, nil
}

// HolidayCount returns the number of configured holidays.
func (c *Calendar) HolidayCount() int {
	return len(c.holidays)
}
