// Package strategy models the supported options strategies behind a
// shared capability interface, so callers never inspect strategy types
// at runtime.
package strategy

import (
	"fmt"

	"options-trader/internal/models"
)

// Strategy is the capability interface every strategy variant implements.
type Strategy interface {
	Type() models.StrategyType

	// LegCount returns the number of option legs the strategy trades.
	LegCount() int

	// DefaultDelta is the target delta used when an automation leaves
	// its delta preference unset.
	DefaultDelta() float64

	// Side reports whether the strategy collects premium (short) or
	// pays it (long).
	Side() models.PositionSide

	// TargetRight returns the contract right the anchor leg trades for
	// a given signal direction.
	TargetRight(direction models.Direction) models.OptionRight

	// EvaluateEntry reports whether a signal supports opening this
	// strategy under the automation's entry criteria.
	EvaluateEntry(sig models.Signal, entry models.EntryCriteria) bool

	// EvaluateExit reports a strategy-specific exit beyond the common
	// predicates, or false if none applies.
	EvaluateExit(pos *models.Position, exit models.ExitCriteria) (models.ExitReason, bool)
}

// ForType returns the strategy implementation for a strategy type.
func ForType(t models.StrategyType) (Strategy, error) {
	switch t {
	case models.StrategyCoveredCall:
		return coveredCall{}, nil
	case models.StrategyCashSecuredPut:
		return cashSecuredPut{}, nil
	case models.StrategyVerticalSpread:
		return verticalSpread{}, nil
	case models.StrategyIronCondor:
		return ironCondor{}, nil
	case models.StrategyStraddle:
		return straddle{}, nil
	case models.StrategyStrangle:
		return strangle{}, nil
	case models.StrategyButterfly:
		return butterfly{}, nil
	case models.StrategyCalendar:
		return calendar{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy type: %s", t)
	}
}

// directionalEntry is the shared gate: signal direction must be in the
// accepted set and confidence must clear the automation's floor.
func directionalEntry(sig models.Signal, entry models.EntryCriteria, accepted ...models.Direction) bool {
	if sig.Confidence < entry.MinConfidence {
		return false
	}
	for _, d := range accepted {
		if sig.Direction == d {
			return true
		}
	}
	return false
}

type coveredCall struct{}

func (coveredCall) Type() models.StrategyType { return models.StrategyCoveredCall }
func (coveredCall) LegCount() int             { return 1 }
func (coveredCall) DefaultDelta() float64     { return 0.30 }
func (coveredCall) Side() models.PositionSide { return models.SideShort }
func (coveredCall) TargetRight(models.Direction) models.OptionRight {
	return models.RightCall
}
func (coveredCall) EvaluateEntry(sig models.Signal, entry models.EntryCriteria) bool {
	return directionalEntry(sig, entry, models.DirectionBullish, models.DirectionNeutral)
}
func (coveredCall) EvaluateExit(*models.Position, models.ExitCriteria) (models.ExitReason, bool) {
	return "", false
}

type cashSecuredPut struct{}

func (cashSecuredPut) Type() models.StrategyType { return models.StrategyCashSecuredPut }
func (cashSecuredPut) LegCount() int             { return 1 }
func (cashSecuredPut) DefaultDelta() float64     { return 0.30 }
func (cashSecuredPut) Side() models.PositionSide { return models.SideShort }
func (cashSecuredPut) TargetRight(models.Direction) models.OptionRight {
	return models.RightPut
}
func (cashSecuredPut) EvaluateEntry(sig models.Signal, entry models.EntryCriteria) bool {
	return directionalEntry(sig, entry, models.DirectionBullish, models.DirectionNeutral)
}
func (cashSecuredPut) EvaluateExit(*models.Position, models.ExitCriteria) (models.ExitReason, bool) {
	return "", false
}

type verticalSpread struct{}

func (verticalSpread) Type() models.StrategyType { return models.StrategyVerticalSpread }
func (verticalSpread) LegCount() int             { return 2 }
func (verticalSpread) DefaultDelta() float64     { return 0.35 }
func (verticalSpread) Side() models.PositionSide { return models.SideLong }
func (verticalSpread) TargetRight(direction models.Direction) models.OptionRight {
	if direction == models.DirectionBearish {
		return models.RightPut
	}
	return models.RightCall
}
func (verticalSpread) EvaluateEntry(sig models.Signal, entry models.EntryCriteria) bool {
	return directionalEntry(sig, entry, models.DirectionBullish, models.DirectionBearish)
}
func (verticalSpread) EvaluateExit(*models.Position, models.ExitCriteria) (models.ExitReason, bool) {
	return "", false
}

type ironCondor struct{}

func (ironCondor) Type() models.StrategyType { return models.StrategyIronCondor }
func (ironCondor) LegCount() int             { return 4 }
func (ironCondor) DefaultDelta() float64     { return 0.16 }
func (ironCondor) Side() models.PositionSide { return models.SideShort }
func (ironCondor) TargetRight(models.Direction) models.OptionRight {
	return models.RightPut
}
func (ironCondor) EvaluateEntry(sig models.Signal, entry models.EntryCriteria) bool {
	return directionalEntry(sig, entry, models.DirectionNeutral)
}
func (ironCondor) EvaluateExit(*models.Position, models.ExitCriteria) (models.ExitReason, bool) {
	return "", false
}

type straddle struct{}

func (straddle) Type() models.StrategyType { return models.StrategyStraddle }
func (straddle) LegCount() int             { return 2 }
func (straddle) DefaultDelta() float64     { return 0.50 }
func (straddle) Side() models.PositionSide { return models.SideLong }
func (straddle) TargetRight(direction models.Direction) models.OptionRight {
	if direction == models.DirectionBearish {
		return models.RightPut
	}
	return models.RightCall
}
func (straddle) EvaluateEntry(sig models.Signal, entry models.EntryCriteria) bool {
	// Long volatility: any decisive direction works, neutral does not.
	return directionalEntry(sig, entry, models.DirectionBullish, models.DirectionBearish)
}
func (straddle) EvaluateExit(*models.Position, models.ExitCriteria) (models.ExitReason, bool) {
	return "", false
}

type strangle struct{}

func (strangle) Type() models.StrategyType { return models.StrategyStrangle }
func (strangle) LegCount() int             { return 2 }
func (strangle) DefaultDelta() float64     { return 0.16 }
func (strangle) Side() models.PositionSide { return models.SideShort }
func (strangle) TargetRight(models.Direction) models.OptionRight {
	return models.RightPut
}
func (strangle) EvaluateEntry(sig models.Signal, entry models.EntryCriteria) bool {
	return directionalEntry(sig, entry, models.DirectionNeutral)
}
func (strangle) EvaluateExit(*models.Position, models.ExitCriteria) (models.ExitReason, bool) {
	return "", false
}

type butterfly struct{}

func (butterfly) Type() models.StrategyType { return models.StrategyButterfly }
func (butterfly) LegCount() int             { return 3 }
func (butterfly) DefaultDelta() float64     { return 0.50 }
func (butterfly) Side() models.PositionSide { return models.SideLong }
func (butterfly) TargetRight(models.Direction) models.OptionRight {
	return models.RightCall
}
func (butterfly) EvaluateEntry(sig models.Signal, entry models.EntryCriteria) bool {
	return directionalEntry(sig, entry, models.DirectionNeutral)
}
func (butterfly) EvaluateExit(*models.Position, models.ExitCriteria) (models.ExitReason, bool) {
	return "", false
}

type calendar struct{}

func (calendar) Type() models.StrategyType { return models.StrategyCalendar }
func (calendar) LegCount() int             { return 2 }
func (calendar) DefaultDelta() float64     { return 0.50 }
func (calendar) Side() models.PositionSide { return models.SideLong }
func (calendar) TargetRight(models.Direction) models.OptionRight {
	return models.RightCall
}
func (calendar) EvaluateEntry(sig models.Signal, entry models.EntryCriteria) bool {
	return directionalEntry(sig, entry, models.DirectionNeutral)
}
func (calendar) EvaluateExit(*models.Position, models.ExitCriteria) (models.ExitReason, bool) {
	return "", false
}
