// Package indicators provides technical indicator calculations over
// OHLCV history.
//
// Single-series indicators (SMA, EMA, RSI) implement Provider: given a
// bar history (most recent last) they return one value per bar, with
// leading entries zero until the warm-up period is reached. Any
// implementation honoring that contract can replace the built-in
// approximations without touching signal aggregation. MACD is the
// exception: it produces three aligned series and keeps its own
// Calculate signature.
package indicators

import (
	"errors"

	"options-trader/internal/models"
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
)

// Provider computes a named single-series indicator from candle history.
type Provider interface {
	Name() string
	Period() int
	Calculate(candles []models.Candle) ([]float64, error)
}

var (
	_ Provider = (*SMA)(nil)
	_ Provider = (*EMA)(nil)
	_ Provider = (*RSI)(nil)
)

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

func closePrices(candles []models.Candle) []float64 {
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.Close
	}
	return prices
}

