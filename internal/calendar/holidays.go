package calendar

import "time"

// USFederalHolidays returns the observed US federal holidays for every year
// in [fromYear, toYear]. Fixed-date holidays falling on a Saturday are
// observed the preceding Friday, on a Sunday the following Monday. Floating
// holidays (nth or last weekday of a month) never need shifting.
func USFederalHolidays(fromYear, toYear int) []time.Time {
	var holidays []time.Time
	for year := fromYear; year <= toYear; year++ {
		holidays = append(holidays,
			observed(fixedDate(year, time.January, 1)),    // New Year's Day
			nthWeekday(year, time.January, time.Monday, 3), // Martin Luther King Jr. Day
			nthWeekday(year, time.February, time.Monday, 3), // Washington's Birthday
			lastWeekday(year, time.May, time.Monday),        // Memorial Day
			observed(fixedDate(year, time.June, 19)),        // Juneteenth
			observed(fixedDate(year, time.July, 4)),         // Independence Day
			nthWeekday(year, time.September, time.Monday, 1), // Labor Day
			nthWeekday(year, time.October, time.Monday, 2),   // Columbus Day
			observed(fixedDate(year, time.November, 11)),     // Veterans Day
			nthWeekday(year, time.November, time.Thursday, 4), // Thanksgiving
			observed(fixedDate(year, time.December, 25)),      // Christmas Day
		)
	}
	return holidays
}

func fixedDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// observed shifts a weekend holiday to its observed weekday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

// nthWeekday returns the nth given weekday of a month.
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+(n-1)*7)
}

// lastWeekday returns the last given weekday of a month.
func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	d := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(weekday) + 7) % 7
	return d.AddDate(0, 0, -offset)
}
