package model

import "time"

// WorkDate resolves an ISO (year, week, day) triple to a calendar date.
//
// The Monday of the requested week is anchored on the first Thursday of the
// year; days are then offset from that Monday by ordinal(day)-1, so Sunday
// lands on the day before the Monday and Saturday five days after it.
// Inputs are not validated: week 0 or 54 still yield a date.
func WorkDate(year, isoWeek int, day time.Weekday) time.Time {
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	firstThursday := jan1.AddDate(0, 0, int(time.Thursday-jan1.Weekday()))

	weekNum := isoWeek
	if _, firstWeek := firstThursday.ISOWeek(); firstWeek <= 1 {
		weekNum--
	}

	monday := firstThursday.AddDate(0, 0, weekNum*7-3)
	return monday.AddDate(0, 0, int(day)-1)
}
