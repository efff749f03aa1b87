package models

// RiskLimits holds per-user ceiling values. Read-only to the engine.
type RiskLimits struct {
	UserID                string
	MaxPositionSizePct    float64 // of portfolio value, per position
	MaxCapitalAtRiskPct   float64 // cumulative across open positions
	MaxOpenPositions      int
	MaxPositionsPerSymbol int
	MaxDailyLossPct       float64
	MaxWeeklyLossPct      float64
	MaxMonthlyLossPct     float64
	MinDTE                int
	MaxDTE                int
}

// DefaultRiskLimits returns conservative limits applied when a user has
// none persisted.
func DefaultRiskLimits(userID string) RiskLimits {
	return RiskLimits{
		UserID:                userID,
		MaxPositionSizePct:    10,
		MaxCapitalAtRiskPct:   50,
		MaxOpenPositions:      10,
		MaxPositionsPerSymbol: 2,
		MaxDailyLossPct:       3,
		MaxWeeklyLossPct:      7,
		MaxMonthlyLossPct:     15,
		MinDTE:                7,
		MaxDTE:                60,
	}
}
