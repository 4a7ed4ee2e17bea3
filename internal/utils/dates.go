package utils

import (
	"strconv"
	"time"
)

// ThirdFriday returns the monthly options expiration for the given month
func ThirdFriday(year int, month time.Month, loc *time.Location) time.Time {
	firstDay := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	firstFriday := firstDay
	for firstFriday.Weekday() != time.Friday {
		firstFriday = firstFriday.AddDate(0, 0, 1)
	}
	return firstFriday.AddDate(0, 0, 14)
}

// NextMonthlyExpiration returns the next third Friday for options expiration.
// Once the expiration week has started, the following month's third Friday is used.
func NextMonthlyExpiration(now time.Time) time.Time {
	thirdFriday := ThirdFriday(now.Year(), now.Month(), now.Location())
	weekStart := thirdFriday.AddDate(0, 0, -7)

	if now.After(weekStart) || now.Equal(weekStart) {
		next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
		return ThirdFriday(next.Year(), next.Month(), now.Location())
	}
	return thirdFriday
}

// MonthlyExpirations lists third Fridays after now that fall within maxDays
func MonthlyExpirations(now time.Time, maxDays int) []time.Time {
	var out []time.Time
	limit := DateOnly(now).AddDate(0, 0, maxDays)
	cursor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for i := 0; i < 24; i++ {
		tf := ThirdFriday(cursor.Year(), cursor.Month(), now.Location())
		if tf.After(limit) {
			break
		}
		if !tf.Before(DateOnly(now)) {
			out = append(out, tf)
		}
		cursor = cursor.AddDate(0, 1, 0)
	}
	return out
}

// DateOnly truncates t to midnight in its own location
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysBetween counts calendar days from a to b; negative when b is earlier
func DaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// DaysToExpiration is DaysBetween floored at zero
func DaysToExpiration(now, expiration time.Time) int {
	d := DaysBetween(now, expiration)
	if d < 0 {
		return 0
	}
	return d
}

// FormatPrice renders a price with two decimals
func FormatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
