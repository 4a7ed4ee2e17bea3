package utils

import (
	"time"
	_ "time/tzdata"
)

// MarketStatus is the US equity session state
type MarketStatus string

const (
	MarketOpen       MarketStatus = "OPEN"
	MarketPreMarket  MarketStatus = "PRE_MARKET"
	MarketAfterHours MarketStatus = "AFTER_HOURS"
	MarketClosed     MarketStatus = "CLOSED"
)

var eastern = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

// Eastern returns the exchange time zone
func Eastern() *time.Location {
	return eastern
}

// GetMarketStatus classifies now into a session and a human-readable message
func GetMarketStatus(now time.Time) (MarketStatus, string) {
	et := now.In(eastern)
	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return MarketClosed, "Market closed (Weekend)"
	}

	minutes := et.Hour()*60 + et.Minute()
	switch {
	case minutes >= 9*60+30 && minutes < 16*60:
		return MarketOpen, "Market is OPEN (9:30 AM - 4:00 PM ET)"
	case minutes >= 4*60 && minutes < 9*60+30:
		return MarketPreMarket, "Pre-market hours (4:00 AM - 9:30 AM ET)"
	case minutes >= 16*60 && minutes < 20*60:
		return MarketAfterHours, "After-hours trading (4:00 PM - 8:00 PM ET)"
	default:
		return MarketClosed, "Market closed (After 8:00 PM or before 4:00 AM ET)"
	}
}

// IsMarketOpen reports whether the regular session is trading
func IsMarketOpen(now time.Time) bool {
	status, _ := GetMarketStatus(now)
	return status == MarketOpen
}
