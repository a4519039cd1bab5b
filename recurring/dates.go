package recurring

import "time"

// CalendarDay truncates t to midnight UTC of its calendar day
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b (negative when b is before a)
func DaysBetween(a, b time.Time) int {
	return int(CalendarDay(b).Sub(CalendarDay(a)).Hours() / 24)
}

// NextPredictedDate steps from last by the cadence until the result lies
// strictly after now. Bills that went quiet for several cycles therefore
// never get a date in the past.
func NextPredictedDate(last time.Time, f Frequency, now time.Time) time.Time {
	step := f.CanonicalDays()
	next := CalendarDay(last)
	if step <= 0 {
		return next
	}
	today := CalendarDay(now)
	next = next.AddDate(0, 0, step)
	if !next.After(today) {
		// jump straight to the first cycle after today
		missed := DaysBetween(next, today)/step + 1
		next = next.AddDate(0, 0, missed*step)
	}
	return next
}
