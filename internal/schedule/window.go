// Package schedule computes reporting windows and run dates for report
// subscriptions and recurring transactions. All functions are pure and work
// in the location of the reference time.
package schedule

import (
	"fmt"
	"time"

	"finbrief/internal/core"
)

// ReportingWindow returns the previous completed period relative to now as a
// half-open interval [from, to). The in-progress period is excluded: reports
// always summarize a fully elapsed day, ISO week (Monday start) or calendar
// month. Unknown frequencies fall back to monthly.
func ReportingWindow(now time.Time, freq core.Frequency) (from, to time.Time) {
	switch freq {
	case core.FrequencyDaily:
		to = startOfDay(now)
		from = to.AddDate(0, 0, -1)
	case core.FrequencyWeekly:
		to = startOfWeek(now)
		from = to.AddDate(0, 0, -7)
	default:
		to = startOfMonth(now)
		from = to.AddDate(0, -1, 0)
	}
	return from, to
}

// NextRunDate returns the start of the next period boundary strictly after
// ref: next midnight for daily, next Monday 00:00 for weekly, first of next
// month 00:00 for monthly. The Monday convention must match ReportingWindow
// or subscriptions drift. Unknown frequencies fall back to monthly.
func NextRunDate(ref time.Time, freq core.Frequency) time.Time {
	switch freq {
	case core.FrequencyDaily:
		return startOfDay(ref).AddDate(0, 0, 1)
	case core.FrequencyWeekly:
		return startOfWeek(ref).AddDate(0, 0, 7)
	default:
		return startOfMonth(ref).AddDate(0, 1, 0)
	}
}

// NextOccurrence advances a recurring transaction template from date by one
// interval, truncated to the start of the day. Unknown intervals return the
// truncated date unchanged.
func NextOccurrence(date time.Time, interval core.RecurringInterval) time.Time {
	base := startOfDay(date)
	switch interval {
	case core.IntervalDaily:
		return base.AddDate(0, 0, 1)
	case core.IntervalWeekly:
		return base.AddDate(0, 0, 7)
	case core.IntervalMonthly:
		return base.AddDate(0, 1, 0)
	case core.IntervalYearly:
		return base.AddDate(1, 0, 0)
	default:
		return base
	}
}

// FormatPeriod renders a human label for the half-open window [from, to),
// e.g. "January 1 - 31, 2006". Single-day windows collapse to one date.
func FormatPeriod(from, to time.Time) string {
	last := to.AddDate(0, 0, -1)
	if from.Year() == last.Year() && from.YearDay() == last.YearDay() {
		return from.Format("January 2, 2006")
	}
	if from.Year() == last.Year() && from.Month() == last.Month() {
		return fmt.Sprintf("%s - %s", from.Format("January 2"), last.Format("2, 2006"))
	}
	return fmt.Sprintf("%s - %s", from.Format("January 2"), last.Format("January 2, 2006"))
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns Monday 00:00 of the week containing t (ISO convention).
func startOfWeek(t time.Time) time.Time {
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -daysSinceMonday)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
