package utils

import (
	"time"

	"options-trader/internal/models"
)

// EasternLocation is the timezone for US markets.
var EasternLocation *time.Location

func init() {
	var err error
	EasternLocation, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback to fixed EST offset
		EasternLocation = time.FixedZone("EST", -5*60*60)
	}
}

// MarketStatusAt returns the market session for a given instant.
// Regular: 9:30-16:00 ET; extended: 4:00-9:30 and 16:00-20:00 ET.
func MarketStatusAt(t time.Time) models.MarketStatus {
	et := t.In(EasternLocation)

	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return models.MarketClosed
	}

	minutes := et.Hour()*60 + et.Minute()

	switch {
	case minutes >= 570 && minutes < 960: // 9:30 - 16:00
		return models.MarketOpen
	case minutes >= 240 && minutes < 570: // 4:00 - 9:30
		return models.MarketExtended
	case minutes >= 960 && minutes < 1200: // 16:00 - 20:00
		return models.MarketExtended
	default:
		return models.MarketClosed
	}
}

// GetMarketStatus returns the current market session.
func GetMarketStatus() models.MarketStatus {
	return MarketStatusAt(time.Now())
}

// IsMarketOpen returns true if the regular session is active.
func IsMarketOpen() bool {
	return GetMarketStatus() == models.MarketOpen
}

// NextMarketOpen returns the next regular session open after t.
func NextMarketOpen(t time.Time) time.Time {
	et := t.In(EasternLocation)

	next := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, EasternLocation)
	if !et.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// TradingDay truncates t to its date in Eastern time, the key used for
// daily IV samples and loss windows.
func TradingDay(t time.Time) time.Time {
	et := t.In(EasternLocation)
	return time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, EasternLocation)
}

// WeekStart returns the Monday 00:00 ET of t's week.
func WeekStart(t time.Time) time.Time {
	day := TradingDay(t)
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// MonthStart returns the first day 00:00 ET of t's month.
func MonthStart(t time.Time) time.Time {
	et := t.In(EasternLocation)
	return time.Date(et.Year(), et.Month(), 1, 0, 0, 0, 0, EasternLocation)
}
