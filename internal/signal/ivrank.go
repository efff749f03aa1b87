package signal

import (
	"options-trader/internal/models"
)

// IVRank positions the current implied volatility within the symbol's
// own historical range: 0 at the 52-week low, 1 at the high.
// Returns -1 when there is not enough history to rank against.
func IVRank(samples []models.IVSample, current float64) float64 {
	if len(samples) < 2 || current <= 0 {
		return -1
	}

	low := samples[0].IV
	high := samples[0].IV
	for _, s := range samples[1:] {
		if s.IV < low {
			low = s.IV
		}
		if s.IV > high {
			high = s.IV
		}
	}

	if high <= low {
		return -1
	}

	rank := (current - low) / (high - low)
	if rank < 0 {
		return 0
	}
	if rank > 1 {
		return 1
	}
	return rank
}
