package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macropipe/internal/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalendar_BusinessDates(t *testing.T) {
	tests := []struct {
		name     string
		holidays []time.Time
		start    time.Time
		end      time.Time
		want     []time.Time
	}{
		{
			name:  "full week excludes weekend",
			start: date(2024, 1, 1), // Monday
			end:   date(2024, 1, 7), // Sunday
			want: []time.Time{
				date(2024, 1, 1), date(2024, 1, 2), date(2024, 1, 3),
				date(2024, 1, 4), date(2024, 1, 5),
			},
		},
		{
			name:     "holiday excluded",
			holidays: []time.Time{date(2024, 1, 3)},
			start:    date(2024, 1, 1),
			end:      date(2024, 1, 5),
			want: []time.Time{
				date(2024, 1, 1), date(2024, 1, 2), date(2024, 1, 4), date(2024, 1, 5),
			},
		},
		{
			name:  "weekend only range is empty",
			start: date(2024, 1, 6), // Saturday
			end:   date(2024, 1, 7), // Sunday
			want:  nil,
		},
		{
			name:  "single business day",
			start: date(2024, 1, 2),
			end:   date(2024, 1, 2),
			want:  []time.Time{date(2024, 1, 2)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := New(tt.holidays)
			got, err := cal.BusinessDates(tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalendar_BusinessDates_InvalidRange(t *testing.T) {
	cal := New(nil)
	_, err := cal.BusinessDates(date(2024, 1, 5), date(2024, 1, 1))
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestCalendar_BusinessDates_Deterministic(t *testing.T) {
	cal := NewUSFederal(2024, 2024)
	a, err := cal.BusinessDates(date(2024, 1, 1), date(2024, 12, 31))
	require.NoError(t, err)
	b, err := cal.BusinessDates(date(2024, 1, 1), date(2024, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCalendar_IsBusinessDay(t *testing.T) {
	cal := New([]time.Time{date(2024, 7, 4)})

	assert.True(t, cal.IsBusinessDay(date(2024, 7, 3)))  // Wednesday
	assert.False(t, cal.IsBusinessDay(date(2024, 7, 4))) // holiday
	assert.False(t, cal.IsBusinessDay(date(2024, 7, 6))) // Saturday
	assert.False(t, cal.IsBusinessDay(date(2024, 7, 7))) // Sunday

	// time-of-day must not matter
	assert.True(t, cal.IsBusinessDay(time.Date(2024, 7, 3, 15, 30, 0, 0, time.UTC)))
}

func TestCalendar_BusinessDates_NormalizesTimeOfDay(t *testing.T) {
	cal := New(nil)
	got, err := cal.BusinessDates(
		time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2024, 1, 1), date(2024, 1, 2)}, got)
}
