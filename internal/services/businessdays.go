package services

import "time"

// AddBusinessDays advances start by n weekdays. Saturdays and Sundays are
// skipped, so Friday + 1 is the following Monday.
func AddBusinessDays(start time.Time, n int) time.Time {
	d := start
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if isWeekday(d) {
			added++
		}
	}
	return d
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
