package models

import "time"

// StrategyType identifies the options strategy an automation trades.
type StrategyType string

const (
	StrategyCoveredCall    StrategyType = "covered_call"
	StrategyCashSecuredPut StrategyType = "cash_secured_put"
	StrategyVerticalSpread StrategyType = "vertical_spread"
	StrategyIronCondor     StrategyType = "iron_condor"
	StrategyStraddle       StrategyType = "straddle"
	StrategyStrangle       StrategyType = "strangle"
	StrategyButterfly      StrategyType = "butterfly"
	StrategyCalendar       StrategyType = "calendar"
)

// EntryCriteria holds the conditions an automation requires before
// opening a position.
type EntryCriteria struct {
	MinConfidence    float64
	MinVolume        int64
	MinOpenInterest  int64
	MaxSpreadPercent float64
	MaxPremium       float64 // 0 = unset
	MinDelta         float64
	MaxDelta         float64 // 0 = unset
	TargetDelta      float64 // 0 = strategy default
	MinDTE           int
	MaxDTE           int
	PreferredDTE     int
}

// PartialExitRule closes a fraction of the position at an intermediate
// profit threshold.
type PartialExitRule struct {
	ProfitPercent float64
	ExitPercent   float64 // fraction of quantity to close, (0, 100]
}

// RollRule rolls the position to the next eligible expiration instead of
// a plain exit once the profit threshold is met.
type RollRule struct {
	Enabled       bool
	ProfitPercent float64
	MinDTE        int // minimum DTE of the replacement expiration
}

// GreekLimits exits the position when an absolute Greek bound is exceeded.
type GreekLimits struct {
	MaxAbsDelta float64 // 0 = unset
	MaxAbsTheta float64 // 0 = unset
}

// ExitCriteria holds the conditions under which an automation closes a
// position.
type ExitCriteria struct {
	ProfitTargetPercent  float64
	StopLossPercent      float64
	MaxDaysToHold        int
	TrailingStopPercent  float64 // 0 = unset
	ExpirationBufferDays int
	PartialExit          *PartialExitRule
	Roll                 *RollRule
	Greeks               *GreekLimits
}

// Automation is a persisted rule set describing when to enter and exit
// positions for one symbol and strategy. The engine never mutates it
// except for the execution counters.
type Automation struct {
	ID                     string
	UserID                 string
	Name                   string
	Symbol                 string
	Strategy               StrategyType
	Entry                  EntryCriteria
	Exit                   ExitCriteria
	IsActive               bool
	IsPaused               bool
	AllowMultiplePositions bool
	ExecutionCount         int
	LastRunAt              time.Time
	CreatedAt              time.Time
}

// Runnable reports whether the automation should be considered during
// opportunity scanning.
func (a *Automation) Runnable() bool {
	return a.IsActive && !a.IsPaused
}
