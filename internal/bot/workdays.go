package bot

import "time"

// IsWorkingDay reports whether t falls on Monday through Friday.
func IsWorkingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// WorkingDaysBetween counts working days from start (inclusive, when it is a
// working day) up to but not including end, stepping in whole days.
func WorkingDaysBetween(start, end time.Time) int {
	n := 0
	for cur := start; cur.Before(end); cur = cur.AddDate(0, 0, 1) {
		if IsWorkingDay(cur) {
			n++
		}
	}
	return n
}
