package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThirdFriday(t *testing.T) {
	tf := ThirdFriday(2025, time.January, time.UTC)
	assert.Equal(t, time.Date(2025, time.January, 17, 0, 0, 0, 0, time.UTC), tf)
	assert.Equal(t, time.Friday, tf.Weekday())
}

func TestNextMonthlyExpiration(t *testing.T) {
	early := time.Date(2025, time.January, 3, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 17, NextMonthlyExpiration(early).Day())

	inWeek := time.Date(2025, time.January, 14, 12, 0, 0, 0, time.UTC)
	next := NextMonthlyExpiration(inWeek)
	assert.Equal(t, time.February, next.Month())
	assert.Equal(t, 21, next.Day())

	december := time.Date(2025, time.December, 30, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 2026, NextMonthlyExpiration(december).Year())
}

func TestMonthlyExpirations(t *testing.T) {
	now := time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC)
	exps := MonthlyExpirations(now, 60)
	if assert.Len(t, exps, 2) {
		assert.Equal(t, 17, exps[0].Day())
		assert.Equal(t, 21, exps[1].Day())
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2025, time.March, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2025, time.March, 31, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 30, DaysBetween(a, b))
	assert.Equal(t, -30, DaysBetween(b, a))
	assert.Equal(t, 0, DaysToExpiration(b, a))
}

func TestMarketStatus(t *testing.T) {
	at := func(day, hour, min int) time.Time {
		return time.Date(2025, time.June, day, hour, min, 0, 0, Eastern())
	}

	cases := []struct {
		when time.Time
		want MarketStatus
	}{
		{at(2, 10, 0), MarketOpen},
		{at(2, 9, 29), MarketPreMarket},
		{at(2, 16, 0), MarketAfterHours},
		{at(2, 21, 0), MarketClosed},
		{at(2, 3, 59), MarketClosed},
		{at(7, 12, 0), MarketClosed},
	}
	for _, c := range cases {
		got, msg := GetMarketStatus(c.when)
		assert.Equal(t, c.want, got, c.when.String())
		assert.NotEmpty(t, msg)
	}
	assert.True(t, IsMarketOpen(at(3, 15, 59)))
	assert.False(t, IsMarketOpen(at(8, 11, 0)))
}
