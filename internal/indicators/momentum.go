package indicators

import (
	"fmt"

	"options-trader/internal/models"
)

// RSI calculates the Relative Strength Index.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI_%d", r.period)
}

func (r *RSI) Period() int {
	return r.period
}

func (r *RSI) Calculate(candles []models.Candle) ([]float64, error) {
	if r.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < r.period+1 {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	result := make([]float64, n)
	closes := closePrices(candles)

	gains := make([]float64, n)
	losses := make([]float64, n)

	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	// First average uses SMA
	avgGain := mean(gains[1 : r.period+1])
	avgLoss := mean(losses[1 : r.period+1])

	if avgLoss == 0 {
		result[r.period] = 100
	} else {
		rs := avgGain / avgLoss
		result[r.period] = 100 - (100 / (1 + rs))
	}

	// Subsequent values use Wilder smoothing
	for i := r.period + 1; i < n; i++ {
		avgGain = (avgGain*float64(r.period-1) + gains[i]) / float64(r.period)
		avgLoss = (avgLoss*float64(r.period-1) + losses[i]) / float64(r.period)

		if avgLoss == 0 {
			result[i] = 100
		} else {
			rs := avgGain / avgLoss
			result[i] = 100 - (100 / (1 + rs))
		}
	}

	return result, nil
}
