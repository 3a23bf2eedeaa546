package types

import (
	"fmt"
	"time"
)

// Frequency is a sampling frequency for demand data. The wire aliases follow
// the original dataset conventions: D for daily, W-MON for weekly periods
// anchored on Mondays, MS for month-start monthly periods.
type Frequency string

const (
	// FreqDaily is daily frequency.
	FreqDaily Frequency = "D"
	// FreqWeekly is weekly frequency with periods starting on Mondays.
	FreqWeekly Frequency = "W-MON"
	// FreqMonthly is monthly frequency with periods starting on the 1st.
	FreqMonthly Frequency = "MS"
)

// Frequencies lists all supported frequencies in display order.
var Frequencies = []Frequency{FreqDaily, FreqWeekly, FreqMonthly}

// ParseFrequency parses a frequency from its alias or display name.
func ParseFrequency(s string) (Frequency, error) {
	switch s {
	case "D", "Daily", "daily":
		return FreqDaily, nil
	case "W-MON", "W", "Weekly", "weekly":
		return FreqWeekly, nil
	case "MS", "M", "Monthly", "monthly":
		return FreqMonthly, nil
	}
	return "", fmt.Errorf("unknown frequency: %s", s)
}

// Name returns the display name (Daily, Weekly, Monthly).
func (f Frequency) Name() string {
	switch f {
	case FreqDaily:
		return "Daily"
	case FreqWeekly:
		return "Weekly"
	case FreqMonthly:
		return "Monthly"
	}
	return string(f)
}

// Unit returns the duration unit used in health summaries.
func (f Frequency) Unit() string {
	switch f {
	case FreqDaily:
		return "days"
	case FreqWeekly:
		return "weeks"
	case FreqMonthly:
		return "months"
	}
	return "periods"
}

// SeasonLength returns the number of periods in one seasonal cycle.
func (f Frequency) SeasonLength() int {
	switch f {
	case FreqDaily:
		return 7
	case FreqWeekly:
		return 52
	case FreqMonthly:
		return 12
	}
	return 1
}

// Valid reports whether f is a supported frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly:
		return true
	}
	return false
}

// Coarseness orders frequencies from fine to coarse. Resampling is only
// supported toward coarser frequencies.
func (f Frequency) Coarseness() int {
	switch f {
	case FreqDaily:
		return 0
	case FreqWeekly:
		return 1
	case FreqMonthly:
		return 2
	}
	return -1
}

// Truncate returns the start of the period containing t.
// Daily periods start at midnight UTC, weekly periods on Monday, monthly
// periods on the 1st of the month.
func (f Frequency) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch f {
	case FreqDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case FreqWeekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		// Monday is weekday 1; Sunday wraps to the previous Monday.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case FreqMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// Next returns the start of the period following t's period.
func (f Frequency) Next(t time.Time) time.Time {
	return f.Add(f.Truncate(t), 1)
}

// Add steps the period start n periods forward (or backward for negative n).
func (f Frequency) Add(t time.Time, n int) time.Time {
	t = f.Truncate(t)
	switch f {
	case FreqDaily:
		return t.AddDate(0, 0, n)
	case FreqWeekly:
		return t.AddDate(0, 0, 7*n)
	case FreqMonthly:
		return t.AddDate(0, n, 0)
	}
	return t
}

// PeriodsBetween counts whole periods from the period of a to the period
// of b. The result is negative when b precedes a.
func (f Frequency) PeriodsBetween(a, b time.Time) int {
	a, b = f.Truncate(a), f.Truncate(b)
	switch f {
	case FreqDaily:
		return int(b.Sub(a).Hours() / 24)
	case FreqWeekly:
		return int(b.Sub(a).Hours() / 24 / 7)
	case FreqMonthly:
		return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	}
	return 0
}
