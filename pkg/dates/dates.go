// Package dates holds the exchange-session and calendar arithmetic shared by
// the signal pipeline and the statistics engine.
package dates

import "time"

// MainSessionEnd is the time of day at which the main FORTS session ends and
// the evening session begins.
var MainSessionEnd = 19 * time.Hour

// TimeOfDay returns the duration since midnight of t.
func TimeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// IsMainSession reports whether t falls inside the main trading session.
func IsMainSession(t time.Time) bool {
	return TimeOfDay(t) < MainSessionEnd
}

// IsNewDay reports whether r falls on a later calendar date than l.
func IsNewDay(l, r time.Time) bool {
	return DateOf(l).Before(DateOf(r))
}

// IsNewSessionDate reports whether the step from l to r closes a trading
// session: l was inside the main session and r either left it or moved to a
// later date.
func IsNewSessionDate(l, r time.Time) bool {
	return IsMainSession(l) && (!IsMainSession(r) || IsNewDay(l, r))
}

// IsWeekend reports whether d is a Saturday or Sunday.
func IsWeekend(d time.Time) bool {
	return d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
}

// IsDayAfterHoliday reports whether the gap between l and r contains at
// least one non-weekend calendar day with no local trading. Such a day means
// some other market was open while this one was closed, so the price gap
// across it is not attributable to a held position.
func IsDayAfterHoliday(l, r time.Time) bool {
	for d := DateOf(l).AddDate(0, 0, 1); d.Before(DateOf(r)); d = d.AddDate(0, 0, 1) {
		if !IsWeekend(d) {
			return true
		}
	}
	return false
}

// DateOf truncates t to midnight of its calendar date.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// FirstDayOfMonth returns midnight of the first day of t's month.
func FirstDayOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// LastDayOfMonth returns midnight of the last day of t's month.
func LastDayOfMonth(t time.Time) time.Time {
	return FirstDayOfMonth(t).AddDate(0, 1, -1)
}

// LastDayOfYear returns midnight of December 31 of t's year.
func LastDayOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), 12, 31, 0, 0, 0, 0, t.Location())
}

// NextWeekday returns the first occurrence of day on or after start.
func NextWeekday(start time.Time, day time.Weekday) time.Time {
	daysToAdd := (int(day) - int(start.Weekday()) + 7) % 7
	return DateOf(start).AddDate(0, 0, daysToAdd)
}
