package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayOfWeek(t *testing.T) {
	assert.Equal(t, 1, DayOfWeek(1, 1, 2024)) // Monday
	assert.Equal(t, 0, DayOfWeek(7, 1, 2024)) // Sunday
	assert.Equal(t, 6, DayOfWeek(1, 1, 2022)) // Saturday
}

func TestDaysInMonth(t *testing.T) {
	tests := []struct {
		month, year, want int
	}{
		{1, 2023, 31},
		{2, 2023, 28},
		{2, 2024, 29},
		{2, 1900, 28},
		{2, 2000, 29},
		{4, 2024, 30},
		{12, 2024, 31},
		{13, 2024, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DaysInMonth(tt.month, tt.year), "%d/%d", tt.month, tt.year)
	}
}

func TestNthWeekdayOfMonth(t *testing.T) {
	tue := int(time.Tuesday)

	tests := []struct {
		name    string
		ordinal int
		month   int
		year    int
		want    string
	}{
		{"first Tuesday", 1, 1, 2024, "2024-01-02"},
		{"second Tuesday", 2, 1, 2024, "2024-01-09"},
		{"fourth Tuesday", 4, 2, 2024, "2024-02-27"},
		{"fifth Tuesday exists", 5, 1, 2024, "2024-01-30"},
		{"fifth Tuesday missing", 5, 2, 2024, ""},
		{"ordinal out of range", 6, 1, 2024, ""},
		{"ordinal zero", 0, 1, 2024, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NthWeekdayOfMonth(tt.ordinal, tue, tt.month, tt.year).Get()
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, FormatDate(got))
		})
	}

	// First of the month falling on the requested weekday.
	got, ok := NthWeekdayOfMonth(1, int(time.Monday), 1, 2024).Get()
	require.True(t, ok)
	assert.Equal(t, "2024-01-01", FormatDate(got))

	assert.True(t, NthWeekdayOfMonth(1, 7, 1, 2024).IsAbsent())
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		from time.Time
		n    int
		want string
	}{
		{Date(2024, 1, 31), 1, "2024-02-29"},
		{Date(2023, 1, 31), 1, "2023-02-28"},
		{Date(2024, 3, 31), 1, "2024-04-30"},
		{Date(2024, 11, 15), 3, "2025-02-15"},
		{Date(2024, 3, 31), -1, "2024-02-29"},
		{Date(2024, 1, 10), -13, "2022-12-10"},
		{Date(2024, 1, 31), 12, "2025-01-31"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDate(AddMonths(tt.from, tt.n)), "%s%+d", FormatDate(tt.from), tt.n)
	}
}

func TestAddDays(t *testing.T) {
	assert.Equal(t, "2024-03-01", FormatDate(AddDays(Date(2024, 2, 28), 2)))
	assert.Equal(t, "2023-12-31", FormatDate(AddDays(Date(2024, 1, 1), -1)))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, Date(2024, 2, 29), d)

	for _, bad := range []string{"2024-02-30", "2023-02-29", "2024-13-01", "2024-1-1", "2024-1-011", "2024-01-1 ", " 2024-01-01", "", "2024-01-01x", "yesterday"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestCheckDate(t *testing.T) {
	assert.True(t, CheckDate(2024, 2, 29))
	assert.False(t, CheckDate(2023, 2, 29))
	assert.False(t, CheckDate(2024, 4, 31))
	assert.False(t, CheckDate(2024, 0, 1))
	assert.False(t, CheckDate(2024, 1, 0))
}

func TestWeekendHelpers(t *testing.T) {
	sat := Date(2024, 1, 6)
	sun := Date(2024, 1, 7)
	mon := Date(2024, 1, 8)

	assert.True(t, IsWeekend(sat))
	assert.True(t, IsWeekend(sun))
	assert.False(t, IsWeekend(mon))

	assert.Equal(t, mon, NextWeekday(sat))
	assert.Equal(t, mon, NextWeekday(sun))
	assert.Equal(t, mon, NextWeekday(mon))
}

func TestTruncateAndDaysBetween(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	ts := time.Date(2024, 3, 10, 23, 30, 0, 0, loc)
	assert.Equal(t, Date(2024, 3, 10), Truncate(ts))

	assert.Equal(t, 3, DaysBetween(Date(2024, 2, 27), Date(2024, 3, 1)))
	assert.Equal(t, -1, DaysBetween(Date(2024, 1, 2), Date(2024, 1, 1)))
}
