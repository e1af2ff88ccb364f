package availability

import (
	"time"
)

const (
	// safety cap on pattern expansion
	maxOccurrences = 5000
	// recurrences that began before the query range are still walked from
	// up to one year back so their in-range occurrences are not missed
	lookBehind = 365 * 24 * time.Hour
)

// Expand turns the stored record into concrete windows intersecting
// [rangeStart, rangeEnd). Non-recurring records are clipped to the range;
// recurring records are walked forward from the stored start, validating
// each occurrence against the pattern's day and date constraints, until
// the end condition or the safety cap.
func (a *Availability) Expand(rangeStart, rangeEnd time.Time) []Window {
	if !a.StartTime.Before(a.EndTime) || !rangeStart.Before(rangeEnd) {
		return nil
	}

	if a.Recurrence == nil {
		s, e := a.StartTime, a.EndTime
		if !s.Before(rangeEnd) || !e.After(rangeStart) {
			return nil
		}
		if s.Before(rangeStart) {
			s = rangeStart
		}
		if e.After(rangeEnd) {
			e = rangeEnd
		}
		return []Window{a.window(s, e)}
	}

	rec := a.Recurrence
	dur := a.EndTime.Sub(a.StartTime)
	scanFloor := rangeStart.Add(-lookBehind)

	var out []Window
	emitted := 0
	count := 0

	emit := func(start time.Time) {
		end := start.Add(dur)
		if start.Before(rangeEnd) && end.After(rangeStart) {
			out = append(out, a.window(start, end))
			emitted++
		}
	}

	ended := func(start time.Time) bool {
		if rec.Until != nil && start.After(*rec.Until) {
			return true
		}
		if rec.Count > 0 && count >= rec.Count {
			return true
		}
		return !start.Before(rangeEnd)
	}

	switch rec.Frequency {
	case FreqDaily:
		cursor := a.StartTime
		if rec.Count == 0 && cursor.Before(scanFloor) {
			days := int(scanFloor.Sub(cursor).Hours() / 24)
			steps := days / rec.Interval
			cursor = cursor.AddDate(0, 0, steps*rec.Interval)
		}
		for i := 0; i < maxOccurrences && !ended(cursor); i++ {
			if a.matchesDayConstraints(cursor) {
				count++
				emit(cursor)
			}
			cursor = cursor.AddDate(0, 0, rec.Interval)
		}

	case FreqWeekly:
		cursor := a.StartTime
		if rec.Count == 0 && cursor.Before(scanFloor) {
			weeks := int(scanFloor.Sub(cursor).Hours() / (24 * 7))
			blocks := weeks / rec.Interval
			cursor = cursor.AddDate(0, 0, blocks*rec.Interval*7)
		}
		base := startOfWeek(a.StartTime)
		for i := 0; i < maxOccurrences && !ended(cursor); i++ {
			weeksSince := int(startOfWeek(cursor).Sub(base).Hours() / (24 * 7))
			if weeksSince%rec.Interval == 0 && a.matchesWeekday(cursor) && a.matchesDayConstraints(cursor) {
				count++
				emit(cursor)
			}
			cursor = cursor.AddDate(0, 0, 1)
		}

	case FreqMonthly:
		start := a.StartTime
		day := rec.DayOfMonth
		if day == 0 {
			day = start.Day()
		}
		i := 0
		if rec.Count == 0 && start.Before(scanFloor) {
			months := monthsBetween(start, scanFloor)
			i = (months / rec.Interval) * rec.Interval
		}
		for ; i < maxOccurrences*rec.Interval; i += rec.Interval {
			occ := time.Date(start.Year(), start.Month()+time.Month(i), day,
				start.Hour(), start.Minute(), start.Second(), 0, start.Location())
			if ended(occ) {
				break
			}
			// normalization overflow means this month lacks the day
			if occ.Day() != day {
				continue
			}
			if a.matchesWeekday(occ) {
				count++
				emit(occ)
			}
		}

	case FreqYearly:
		start := a.StartTime
		for i := 0; i < maxOccurrences; i++ {
			occ := start.AddDate(i*rec.Interval, 0, 0)
			if ended(occ) {
				break
			}
			if a.matchesWeekday(occ) && a.matchesDayConstraints(occ) {
				count++
				emit(occ)
			}
		}
	}

	return out
}

func (a *Availability) window(start, end time.Time) Window {
	return Window{
		AvailabilityID:        a.ID,
		Start:                 start,
		End:                   end,
		Type:                  a.Type,
		ModeOverride:          a.ModeOverride,
		MaxConcurrentOverride: a.MaxConcurrentOverride,
	}
}

// matchesWeekday checks the optional day-of-week set. An empty set for a
// weekly pattern pins the occurrence to the stored start's weekday.
func (a *Availability) matchesWeekday(t time.Time) bool {
	rec := a.Recurrence
	if len(rec.DaysOfWeek) == 0 {
		if rec.Frequency == FreqWeekly {
			return t.Weekday() == a.StartTime.Weekday()
		}
		return true
	}
	for _, d := range rec.DaysOfWeek {
		if t.Weekday() == d {
			return true
		}
	}
	return false
}

func (a *Availability) matchesDayConstraints(t time.Time) bool {
	rec := a.Recurrence
	if rec.Frequency != FreqMonthly && rec.DayOfMonth > 0 && t.Day() != rec.DayOfMonth {
		return false
	}
	if rec.Frequency == FreqDaily && len(rec.DaysOfWeek) > 0 {
		return a.matchesWeekday(t)
	}
	return true
}

func startOfWeek(t time.Time) time.Time {
	// ISO-style week starting Monday
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func monthsBetween(from, to time.Time) int {
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if months < 0 {
		return 0
	}
	return months
}
