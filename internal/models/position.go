package models

import "time"

// PositionStatus represents the lifecycle state of a position.
// Transitions are open -> closing -> closed; closed is terminal.
type PositionStatus string

const (
	PositionOpen    PositionStatus = "OPEN"
	PositionClosing PositionStatus = "CLOSING"
	PositionClosed  PositionStatus = "CLOSED"
)

// PositionSide distinguishes long premium from short premium positions.
type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
)

// PositionOrigin records what opened the position.
type PositionOrigin string

const (
	OriginAutomation PositionOrigin = "automation"
	OriginManual     PositionOrigin = "manual"
	OriginSignal     PositionOrigin = "signal"
)

// ExitReason records which predicate closed a position.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop_loss"
	ExitProfitTarget ExitReason = "profit_target"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitMaxHoldDays  ExitReason = "max_hold_days"
	ExitExpiration   ExitReason = "expiration"
	ExitGreekLimit   ExitReason = "greek_limit"
	ExitPartial      ExitReason = "partial_profit"
	ExitRoll         ExitReason = "roll"
	ExitManual       ExitReason = "manual"
)

// Position represents an open or closed position owned by an automation
// (or opened manually).
type Position struct {
	ID           string
	AutomationID string // empty for manual/signal positions
	UserID       string
	Origin       PositionOrigin
	Symbol       string
	Contract     *OptionContract // nil for equity positions
	Side         PositionSide
	Quantity     int // always positive; Side carries direction
	EntryPrice   float64
	EntryIV      float64
	EntryGreeks  Greeks

	CurrentPrice  float64
	CurrentIV     float64
	CurrentGreeks Greeks
	Unrefreshed   bool // last market data refresh failed; values are stale

	HighWaterPnL     float64 // best unrealized P/L seen, for trailing stops
	PartialExitTaken bool    // the one-shot partial profit exit has fired

	Status     PositionStatus
	ExitReason ExitReason
	OpenedAt   time.Time
	ClosedAt   time.Time
}

// Multiplier returns the contract multiplier: 100 for options, 1 for equity.
func (p *Position) Multiplier() float64 {
	if p.Contract != nil {
		return 100
	}
	return 1
}

// direction returns +1 for long positions and -1 for short.
func (p *Position) direction() float64 {
	if p.Side == SideShort {
		return -1
	}
	return 1
}

// UnrealizedPnL derives the open P/L from current price, entry price,
// quantity and multiplier. It is never stored; always recomputed.
func (p *Position) UnrealizedPnL() float64 {
	return (p.CurrentPrice - p.EntryPrice) * float64(p.Quantity) * p.Multiplier() * p.direction()
}

// UnrealizedPnLPercent returns the open P/L as a percentage of the
// entry cost basis.
func (p *Position) UnrealizedPnLPercent() float64 {
	basis := p.EntryPrice * float64(p.Quantity) * p.Multiplier()
	if basis == 0 {
		return 0
	}
	return p.UnrealizedPnL() / basis * 100
}

// RealizedPnLAt computes the P/L of closing qty contracts at exitPrice,
// sign-adjusted for short positions.
func (p *Position) RealizedPnLAt(exitPrice float64, qty int) float64 {
	return (exitPrice - p.EntryPrice) * float64(qty) * p.Multiplier() * p.direction()
}

// Notional returns the capital the position represents at entry.
func (p *Position) Notional() float64 {
	return p.EntryPrice * float64(p.Quantity) * p.Multiplier()
}

// Trade is an immutable execution record, one per fill.
type Trade struct {
	ID           string
	PositionID   string
	AutomationID string
	UserID       string
	Symbol       string
	Action       TradeAction
	Quantity     int
	Price        float64
	Commission   float64
	RealizedPnL  float64 // set only on closing trades
	IsClose      bool
	Source       PositionOrigin
	IsPaper      bool
	Timestamp    time.Time
}
