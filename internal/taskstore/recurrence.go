package taskstore

import (
	"time"

	"smarttodo/internal/db"
)

const dateLayout = "2006-01-02"

// NextDueDate advances an ISO due date by one recurrence interval using
// calendar-safe arithmetic: monthly and yearly steps clamp the day to the
// last day of the target month (Jan 31 -> Feb 28/29) instead of letting the
// date normalize into the following month. Returns "" for an empty or
// unparseable date, or recurrence none.
func NextDueDate(due, recurrence string) string {
	if due == "" || recurrence == db.RecurrenceNone {
		return ""
	}
	t, err := time.Parse(dateLayout, due)
	if err != nil {
		return ""
	}
	switch recurrence {
	case db.RecurrenceDaily:
		t = t.AddDate(0, 0, 1)
	case db.RecurrenceWeekly:
		t = t.AddDate(0, 0, 7)
	case db.RecurrenceMonthly:
		t = addMonthsClamped(t, 1)
	case db.RecurrenceYearly:
		t = addMonthsClamped(t, 12)
	default:
		return ""
	}
	return t.Format(dateLayout)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	m := int(month) + months
	year += (m - 1) / 12
	month = time.Month((m-1)%12 + 1)
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
