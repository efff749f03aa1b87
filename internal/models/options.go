package models

import (
	"math"
	"time"
)

// OptionRight distinguishes calls from puts.
type OptionRight string

const (
	RightCall OptionRight = "CALL"
	RightPut  OptionRight = "PUT"
)

// Greeks represents option price sensitivities.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
}

// OptionContract represents a single contract in an option chain.
type OptionContract struct {
	Symbol       string // OCC-style contract symbol
	Underlying   string
	Strike       float64
	Expiration   time.Time
	Right        OptionRight
	Bid          float64
	Ask          float64
	Last         float64
	Volume       int64
	OpenInterest int64
	IV           float64
	Greeks       Greeks
}

// Mid returns the bid/ask midpoint.
func (c OptionContract) Mid() float64 {
	if c.Bid > 0 && c.Ask > 0 {
		return (c.Bid + c.Ask) / 2
	}
	return c.Last
}

// SpreadPercent returns the bid/ask spread as a percentage of the mid price.
func (c OptionContract) SpreadPercent() float64 {
	mid := c.Mid()
	if mid <= 0 {
		return math.Inf(1)
	}
	return (c.Ask - c.Bid) / mid * 100
}

// DTE returns whole days until expiration as of the given time.
func (c OptionContract) DTE(now time.Time) int {
	if c.Expiration.Before(now) {
		return 0
	}
	return int(c.Expiration.Sub(now).Hours() / 24)
}

// OptionChain represents the contracts for one underlying and expiration.
type OptionChain struct {
	Underlying string
	SpotPrice  float64
	Expiration time.Time
	Contracts  []OptionContract
}

// ATMIV returns the implied volatility of the contract whose strike is
// closest to spot, preferring calls. Returns 0 when the chain is empty.
func (ch OptionChain) ATMIV() float64 {
	var best *OptionContract
	bestDist := math.Inf(1)
	for i := range ch.Contracts {
		c := &ch.Contracts[i]
		if c.IV <= 0 {
			continue
		}
		dist := math.Abs(c.Strike - ch.SpotPrice)
		if dist < bestDist || (dist == bestDist && c.Right == RightCall) {
			best = c
			bestDist = dist
		}
	}
	if best == nil {
		return 0
	}
	return best.IV
}
