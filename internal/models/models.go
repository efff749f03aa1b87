// Package models provides domain models for the options trading engine.
package models

import (
	"time"
)

// Direction represents the directional bias of a technical signal.
type Direction string

const (
	DirectionBullish Direction = "BULLISH"
	DirectionBearish Direction = "BEARISH"
	DirectionNeutral Direction = "NEUTRAL"
)

// TradeAction represents the side of a fill.
type TradeAction string

const (
	TradeActionBuy  TradeAction = "BUY"
	TradeActionSell TradeAction = "SELL"
)

// TradingMode selects between simulated and real execution.
type TradingMode string

const (
	ModePaper TradingMode = "paper"
	ModeLive  TradingMode = "live"
)

// MarketStatus represents the current US equity market session.
type MarketStatus string

const (
	MarketOpen     MarketStatus = "OPEN"
	MarketExtended MarketStatus = "EXTENDED"
	MarketClosed   MarketStatus = "CLOSED"
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Quote represents a market quote.
type Quote struct {
	Symbol    string
	Last      float64
	Bid       float64
	Ask       float64
	Volume    int64
	Timestamp time.Time
}

// Mid returns the bid/ask midpoint, falling back to the last price
// when the book is one-sided.
func (q Quote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.Last
}

// Signal is the output of the technical signal generator.
type Signal struct {
	Symbol     string
	Direction  Direction
	Confidence float64 // [0, 1]
	Components map[string]float64
	IVBoost    float64
}
