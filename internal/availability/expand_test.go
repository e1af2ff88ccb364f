package availability

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func day(year int, month time.Month, d, hour, min int) time.Time {
	return time.Date(year, month, d, hour, min, 0, 0, time.UTC)
}

func TestExpandNonRecurringClipsToRange(t *testing.T) {
	a := &Availability{
		ID:         uuid.New(),
		ResourceID: uuid.New(),
		StartTime:  day(2026, time.March, 2, 8, 0),
		EndTime:    day(2026, time.March, 2, 17, 0),
		Type:       WindowAvailable,
	}

	windows := a.Expand(day(2026, time.March, 2, 12, 0), day(2026, time.March, 3, 0, 0))
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if !windows[0].Start.Equal(day(2026, time.March, 2, 12, 0)) {
		t.Errorf("window start not clipped: %s", windows[0].Start)
	}
	if !windows[0].End.Equal(day(2026, time.March, 2, 17, 0)) {
		t.Errorf("window end wrong: %s", windows[0].End)
	}

	if got := a.Expand(day(2026, time.March, 3, 0, 0), day(2026, time.March, 4, 0, 0)); len(got) != 0 {
		t.Errorf("expected no windows outside the record, got %d", len(got))
	}
}

func TestExpandWeeklyTwoDaysOverTwoWeeks(t *testing.T) {
	// Mondays and Wednesdays 09:00-12:00, starting Monday 2026-03-02.
	a := &Availability{
		ID:        uuid.New(),
		StartTime: day(2026, time.March, 2, 9, 0),
		EndTime:   day(2026, time.March, 2, 12, 0),
		Type:      WindowAvailable,
		Recurrence: &Recurrence{
			Frequency:  FreqWeekly,
			Interval:   1,
			DaysOfWeek: []time.Weekday{time.Monday, time.Wednesday},
		},
	}

	windows := a.Expand(day(2026, time.March, 2, 0, 0), day(2026, time.March, 16, 0, 0))
	if len(windows) != 4 {
		t.Fatalf("expected 4 occurrences over 14 days, got %d", len(windows))
	}
	wantStarts := []time.Time{
		day(2026, time.March, 2, 9, 0),
		day(2026, time.March, 4, 9, 0),
		day(2026, time.March, 9, 9, 0),
		day(2026, time.March, 11, 9, 0),
	}
	for i, want := range wantStarts {
		if !windows[i].Start.Equal(want) {
			t.Errorf("occurrence %d: got %s, want %s", i, windows[i].Start, want)
		}
	}
}

func TestExpandWeeklyIntervalSkipsWeeks(t *testing.T) {
	a := &Availability{
		StartTime: day(2026, time.March, 2, 9, 0),
		EndTime:   day(2026, time.March, 2, 10, 0),
		Type:      WindowAvailable,
		Recurrence: &Recurrence{
			Frequency: FreqWeekly,
			Interval:  2,
		},
	}

	windows := a.Expand(day(2026, time.March, 2, 0, 0), day(2026, time.March, 30, 0, 0))
	if len(windows) != 2 {
		t.Fatalf("expected 2 biweekly occurrences, got %d", len(windows))
	}
	if !windows[1].Start.Equal(day(2026, time.March, 16, 9, 0)) {
		t.Errorf("second occurrence wrong: %s", windows[1].Start)
	}
}

func TestExpandDailyCountEndCondition(t *testing.T) {
	a := &Availability{
		StartTime: day(2026, time.March, 2, 9, 0),
		EndTime:   day(2026, time.March, 2, 10, 0),
		Type:      WindowAvailable,
		Recurrence: &Recurrence{
			Frequency: FreqDaily,
			Interval:  1,
			Count:     3,
		},
	}

	windows := a.Expand(day(2026, time.March, 1, 0, 0), day(2026, time.April, 1, 0, 0))
	if len(windows) != 3 {
		t.Fatalf("count=3 must cap occurrences, got %d", len(windows))
	}
}

func TestExpandDailyUntilEndCondition(t *testing.T) {
	until := day(2026, time.March, 4, 23, 59)
	a := &Availability{
		StartTime: day(2026, time.March, 2, 9, 0),
		EndTime:   day(2026, time.March, 2, 10, 0),
		Type:      WindowAvailable,
		Recurrence: &Recurrence{
			Frequency: FreqDaily,
			Interval:  1,
			Until:     &until,
		},
	}

	windows := a.Expand(day(2026, time.March, 1, 0, 0), day(2026, time.April, 1, 0, 0))
	if len(windows) != 3 {
		t.Fatalf("until must stop after March 4, got %d occurrences", len(windows))
	}
}

func TestExpandMonthlySkipsShortMonths(t *testing.T) {
	// 31st of every month; February must be skipped, not normalized.
	a := &Availability{
		StartTime: day(2026, time.January, 31, 9, 0),
		EndTime:   day(2026, time.January, 31, 10, 0),
		Type:      WindowAvailable,
		Recurrence: &Recurrence{
			Frequency: FreqMonthly,
			Interval:  1,
		},
	}

	windows := a.Expand(day(2026, time.January, 1, 0, 0), day(2026, time.June, 1, 0, 0))
	if len(windows) != 3 {
		t.Fatalf("expected Jan, Mar, May occurrences, got %d", len(windows))
	}
	for _, w := range windows {
		if w.Start.Day() != 31 {
			t.Errorf("occurrence landed on day %d, want 31", w.Start.Day())
		}
		switch w.Start.Month() {
		case time.February, time.April:
			t.Errorf("short month %s must be skipped", w.Start.Month())
		}
	}
}

func TestExpandRecurringStartedBeforeRange(t *testing.T) {
	// Weekly pattern that began months before the query range still emits
	// in-range occurrences.
	a := &Availability{
		StartTime: day(2025, time.June, 2, 9, 0), // a Monday
		EndTime:   day(2025, time.June, 2, 17, 0),
		Type:      WindowAvailable,
		Recurrence: &Recurrence{
			Frequency: FreqWeekly,
			Interval:  1,
		},
	}

	windows := a.Expand(day(2026, time.March, 2, 0, 0), day(2026, time.March, 9, 0, 0))
	if len(windows) != 1 {
		t.Fatalf("expected 1 in-range occurrence, got %d", len(windows))
	}
	if !windows[0].Start.Equal(day(2026, time.March, 2, 9, 0)) {
		t.Errorf("occurrence start wrong: %s", windows[0].Start)
	}
}

func TestRecurrenceValidate(t *testing.T) {
	until := day(2026, time.June, 1, 0, 0)
	cases := []struct {
		name    string
		rec     Recurrence
		wantErr bool
	}{
		{"valid weekly", Recurrence{Frequency: FreqWeekly, Interval: 1}, false},
		{"zero interval", Recurrence{Frequency: FreqDaily, Interval: 0}, true},
		{"bad frequency", Recurrence{Frequency: "hourly", Interval: 1}, true},
		{"until and count", Recurrence{Frequency: FreqDaily, Interval: 1, Until: &until, Count: 3}, true},
		{"day of month out of range", Recurrence{Frequency: FreqMonthly, Interval: 1, DayOfMonth: 32}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rec.Validate()
			if tc.wantErr && err == nil {
				t.Errorf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
