package schedule

import (
	"testing"
	"time"

	"finbrief/internal/core"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestReportingWindow(t *testing.T) {
	// 2026-08-19 is a Wednesday.
	now := time.Date(2026, time.August, 19, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		freq     core.Frequency
		wantFrom time.Time
		wantTo   time.Time
	}{
		{
			name:     "daily covers the previous calendar day",
			freq:     core.FrequencyDaily,
			wantFrom: date(2026, time.August, 18),
			wantTo:   date(2026, time.August, 19),
		},
		{
			name:     "weekly covers the previous Monday-to-Monday week",
			freq:     core.FrequencyWeekly,
			wantFrom: date(2026, time.August, 10),
			wantTo:   date(2026, time.August, 17),
		},
		{
			name:     "monthly covers the previous calendar month",
			freq:     core.FrequencyMonthly,
			wantFrom: date(2026, time.July, 1),
			wantTo:   date(2026, time.August, 1),
		},
		{
			name:     "unknown frequency falls back to monthly",
			freq:     core.Frequency("fortnightly"),
			wantFrom: date(2026, time.July, 1),
			wantTo:   date(2026, time.August, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := ReportingWindow(now, tt.freq)
			if !from.Equal(tt.wantFrom) {
				t.Errorf("from = %v, want %v", from, tt.wantFrom)
			}
			if !to.Equal(tt.wantTo) {
				t.Errorf("to = %v, want %v", to, tt.wantTo)
			}
		})
	}
}

func TestReportingWindowExcludesCurrentPeriod(t *testing.T) {
	// The window must never include now, even at a period boundary.
	boundaries := []time.Time{
		time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.August, 17, 0, 0, 0, 0, time.UTC), // a Monday
		time.Date(2026, time.December, 31, 23, 59, 59, 0, time.UTC),
	}
	for _, now := range boundaries {
		for _, freq := range []core.Frequency{core.FrequencyDaily, core.FrequencyWeekly, core.FrequencyMonthly} {
			from, to := ReportingWindow(now, freq)
			if to.After(now) {
				t.Errorf("ReportingWindow(%v, %s): to=%v is after now", now, freq, to)
			}
			if !from.Before(to) {
				t.Errorf("ReportingWindow(%v, %s): empty window [%v, %v)", now, freq, from, to)
			}
		}
	}
}

func TestWeeklyWindowStartsOnMonday(t *testing.T) {
	// Every day of one week must resolve to the same previous week.
	wantFrom := date(2026, time.August, 10)
	wantTo := date(2026, time.August, 17)
	for d := 17; d <= 23; d++ {
		now := time.Date(2026, time.August, d, 9, 0, 0, 0, time.UTC)
		from, to := ReportingWindow(now, core.FrequencyWeekly)
		if !from.Equal(wantFrom) || !to.Equal(wantTo) {
			t.Errorf("day %d: window [%v, %v), want [%v, %v)", d, from, to, wantFrom, wantTo)
		}
		if from.Weekday() != time.Monday {
			t.Errorf("day %d: window starts on %s, want Monday", d, from.Weekday())
		}
	}
}

func TestNextRunDate(t *testing.T) {
	tests := []struct {
		name string
		ref  time.Time
		freq core.Frequency
		want time.Time
	}{
		{
			name: "daily advances to next midnight",
			ref:  time.Date(2026, time.August, 19, 14, 30, 0, 0, time.UTC),
			freq: core.FrequencyDaily,
			want: date(2026, time.August, 20),
		},
		{
			name: "daily at midnight still advances a full day",
			ref:  date(2026, time.August, 19),
			freq: core.FrequencyDaily,
			want: date(2026, time.August, 20),
		},
		{
			name: "weekly advances to next Monday",
			ref:  time.Date(2026, time.August, 19, 14, 30, 0, 0, time.UTC),
			freq: core.FrequencyWeekly,
			want: date(2026, time.August, 24),
		},
		{
			name: "weekly on a Monday advances to the following Monday",
			ref:  date(2026, time.August, 17),
			freq: core.FrequencyWeekly,
			want: date(2026, time.August, 24),
		},
		{
			name: "monthly advances to the first of next month",
			ref:  time.Date(2026, time.August, 19, 14, 30, 0, 0, time.UTC),
			freq: core.FrequencyMonthly,
			want: date(2026, time.September, 1),
		},
		{
			name: "monthly at end of December rolls the year",
			ref:  time.Date(2026, time.December, 31, 23, 0, 0, 0, time.UTC),
			freq: core.FrequencyMonthly,
			want: date(2027, time.January, 1),
		},
		{
			name: "unknown frequency behaves as monthly",
			ref:  time.Date(2026, time.August, 19, 14, 30, 0, 0, time.UTC),
			freq: core.Frequency(""),
			want: date(2026, time.September, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRunDate(tt.ref, tt.freq)
			if !got.Equal(tt.want) {
				t.Errorf("NextRunDate(%v, %s) = %v, want %v", tt.ref, tt.freq, got, tt.want)
			}
		})
	}
}

func TestNextRunDateIsStrictlyAfterRef(t *testing.T) {
	refs := []time.Time{
		date(2026, time.January, 1),
		time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC),
		time.Date(2026, time.December, 31, 23, 59, 59, 0, time.UTC),
	}
	for _, ref := range refs {
		for _, freq := range []core.Frequency{core.FrequencyDaily, core.FrequencyWeekly, core.FrequencyMonthly} {
			next := NextRunDate(ref, freq)
			if !next.After(ref) {
				t.Errorf("NextRunDate(%v, %s) = %v, not strictly after ref", ref, freq, next)
			}
		}
	}
}

func TestNextRunDateAlignsWithWindowBoundary(t *testing.T) {
	// The next run's window must end exactly at that run's boundary, so no
	// transaction falls between consecutive reports.
	ref := time.Date(2026, time.August, 19, 10, 0, 0, 0, time.UTC)
	for _, freq := range []core.Frequency{core.FrequencyDaily, core.FrequencyWeekly, core.FrequencyMonthly} {
		next := NextRunDate(ref, freq)
		_, to := ReportingWindow(next, freq)
		if !to.Equal(next) {
			t.Errorf("%s: window at next run ends %v, want %v", freq, to, next)
		}
	}
}

func TestNextOccurrence(t *testing.T) {
	base := time.Date(2026, time.January, 31, 8, 15, 0, 0, time.UTC)

	tests := []struct {
		name     string
		interval core.RecurringInterval
		want     time.Time
	}{
		{"daily", core.IntervalDaily, date(2026, time.February, 1)},
		{"weekly", core.IntervalWeekly, date(2026, time.February, 7)},
		{"monthly normalizes short months", core.IntervalMonthly, date(2026, time.March, 3)},
		{"yearly", core.IntervalYearly, date(2027, time.January, 31)},
		{"unknown interval does not advance", core.RecurringInterval("biweekly"), date(2026, time.January, 31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextOccurrence(base, tt.interval)
			if !got.Equal(tt.want) {
				t.Errorf("NextOccurrence(%v, %s) = %v, want %v", base, tt.interval, got, tt.want)
			}
		})
	}
}

func TestFormatPeriod(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		to   time.Time
		want string
	}{
		{
			name: "full month",
			from: date(2026, time.July, 1),
			to:   date(2026, time.August, 1),
			want: "July 1 - 31, 2026",
		},
		{
			name: "single day",
			from: date(2026, time.August, 18),
			to:   date(2026, time.August, 19),
			want: "August 18, 2026",
		},
		{
			name: "week within one month",
			from: date(2026, time.August, 10),
			to:   date(2026, time.August, 17),
			want: "August 10 - 16, 2026",
		},
		{
			name: "week spanning two months",
			from: date(2026, time.August, 31),
			to:   date(2026, time.September, 7),
			want: "August 31 - September 6, 2026",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatPeriod(tt.from, tt.to); got != tt.want {
				t.Errorf("FormatPeriod = %q, want %q", got, tt.want)
			}
		})
	}
}
