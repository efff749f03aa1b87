// Package monitor evaluates open positions against their automation's
// exit rules.
package monitor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"options-trader/internal/models"
	"options-trader/internal/strategy"
)

// PriceSource provides refreshed marks with an explicit freshness
// flag. Option positions refresh from a contract snapshot so greeks
// and IV move with the market; equity positions from the NBBO quote.
type PriceSource interface {
	QuoteWithFallback(ctx context.Context, symbol string) (*models.Quote, bool, error)
	ContractWithFallback(ctx context.Context, underlying, occSymbol string, expiration time.Time) (*models.OptionContract, bool, error)
}

// Action is what the monitor wants done with a position.
type Action int

const (
	Hold Action = iota
	Close
	PartialClose
	Roll
)

// Decision is the outcome of evaluating one position. ExitPrice is the
// refreshed mark the decision was made against; the executor still
// fills at its own price.
type Decision struct {
	Action    Action
	Reason    models.ExitReason
	Quantity  int // contracts to close; full quantity unless partial
	ExitPrice float64
	Detail    string
}

// Monitor refreshes positions and applies exit predicates in a fixed
// priority order. The first matching predicate wins; later ones are
// never consulted.
type Monitor struct {
	quotes PriceSource
	logger zerolog.Logger
}

// NewMonitor creates a monitor.
func NewMonitor(quotes PriceSource, logger zerolog.Logger) *Monitor {
	return &Monitor{
		quotes: quotes,
		logger: logger.With().Str("component", "monitor").Logger(),
	}
}

// Evaluate refreshes the position's market values in place and returns
// the exit decision. A failed refresh keeps the previous values and
// marks the position unrefreshed; evaluation still runs so a badly
// losing position is not held just because one quote fetch failed.
func (m *Monitor) Evaluate(ctx context.Context, pos *models.Position, auto *models.Automation, now time.Time) Decision {
	m.refresh(ctx, pos)

	if pnl := pos.UnrealizedPnL(); pnl > pos.HighWaterPnL {
		pos.HighWaterPnL = pnl
	}

	exit := auto.Exit
	pnlPct := pos.UnrealizedPnLPercent()

	// 1. Stop loss.
	if exit.StopLossPercent > 0 && pnlPct <= -exit.StopLossPercent {
		return m.closeAll(pos, models.ExitStopLoss,
			fmt.Sprintf("pnl %.1f%% breached stop at -%.1f%%", pnlPct, exit.StopLossPercent))
	}

	// 2. Profit target, with roll and partial-exit refinements.
	if exit.ProfitTargetPercent > 0 && pnlPct >= exit.ProfitTargetPercent {
		if r := exit.Roll; r != nil && r.Enabled && pnlPct >= r.ProfitPercent {
			return Decision{
				Action:    Roll,
				Reason:    models.ExitRoll,
				Quantity:  pos.Quantity,
				ExitPrice: pos.CurrentPrice,
				Detail:    fmt.Sprintf("pnl %.1f%% hit roll threshold %.1f%%", pnlPct, r.ProfitPercent),
			}
		}
		return m.closeAll(pos, models.ExitProfitTarget,
			fmt.Sprintf("pnl %.1f%% hit target %.1f%%", pnlPct, exit.ProfitTargetPercent))
	}
	if p := exit.PartialExit; p != nil && !pos.PartialExitTaken && pnlPct >= p.ProfitPercent {
		qty := partialQuantity(pos.Quantity, p.ExitPercent)
		if qty >= pos.Quantity {
			return m.closeAll(pos, models.ExitPartial,
				fmt.Sprintf("partial exit covers full quantity at pnl %.1f%%", pnlPct))
		}
		return Decision{
			Action:    PartialClose,
			Reason:    models.ExitPartial,
			Quantity:  qty,
			ExitPrice: pos.CurrentPrice,
			Detail:    fmt.Sprintf("closing %d of %d at pnl %.1f%%", qty, pos.Quantity, pnlPct),
		}
	}

	// 3. Trailing stop, measured as retracement from the high-water P/L.
	if exit.TrailingStopPercent > 0 && pos.HighWaterPnL > 0 {
		retracement := (pos.HighWaterPnL - pos.UnrealizedPnL()) / pos.HighWaterPnL * 100
		if retracement >= exit.TrailingStopPercent {
			return m.closeAll(pos, models.ExitTrailingStop,
				fmt.Sprintf("retraced %.1f%% from high-water pnl %.2f", retracement, pos.HighWaterPnL))
		}
	}

	// 4. Maximum hold time.
	if exit.MaxDaysToHold > 0 {
		held := int(now.Sub(pos.OpenedAt).Hours() / 24)
		if held >= exit.MaxDaysToHold {
			return m.closeAll(pos, models.ExitMaxHoldDays,
				fmt.Sprintf("held %d days, limit %d", held, exit.MaxDaysToHold))
		}
	}

	// 5. Expiration buffer. Options never ride into expiration.
	if pos.Contract != nil {
		buffer := exit.ExpirationBufferDays
		if buffer <= 0 {
			buffer = 1
		}
		if dte := pos.Contract.DTE(now); dte <= buffer {
			return m.closeAll(pos, models.ExitExpiration,
				fmt.Sprintf("%d DTE inside %d day buffer", dte, buffer))
		}
	}

	// 6. Greek limits.
	if g := exit.Greeks; g != nil {
		if g.MaxAbsDelta > 0 && math.Abs(pos.CurrentGreeks.Delta) > g.MaxAbsDelta {
			return m.closeAll(pos, models.ExitGreekLimit,
				fmt.Sprintf("abs delta %.3f over %.3f", math.Abs(pos.CurrentGreeks.Delta), g.MaxAbsDelta))
		}
		if g.MaxAbsTheta > 0 && math.Abs(pos.CurrentGreeks.Theta) > g.MaxAbsTheta {
			return m.closeAll(pos, models.ExitGreekLimit,
				fmt.Sprintf("abs theta %.3f over %.3f", math.Abs(pos.CurrentGreeks.Theta), g.MaxAbsTheta))
		}
	}

	// 7. Strategy-specific exits.
	if strat, err := strategy.ForType(auto.Strategy); err == nil {
		if reason, ok := strat.EvaluateExit(pos, exit); ok {
			return m.closeAll(pos, reason, "strategy exit")
		}
	}

	return Decision{Action: Hold, ExitPrice: pos.CurrentPrice}
}

// refresh updates the position's current market values in place.
func (m *Monitor) refresh(ctx context.Context, pos *models.Position) {
	if pos.Contract == nil {
		q, fresh, err := m.quotes.QuoteWithFallback(ctx, pos.Symbol)
		if err != nil {
			pos.Unrefreshed = true
			m.logger.Warn().Err(err).Str("position_id", pos.ID).Str("symbol", pos.Symbol).
				Msg("refresh failed, keeping last values")
			return
		}
		if mid := q.Mid(); mid > 0 {
			pos.CurrentPrice = mid
		}
		pos.Unrefreshed = !fresh
		return
	}

	c, fresh, err := m.quotes.ContractWithFallback(ctx, pos.Symbol, pos.Contract.Symbol, pos.Contract.Expiration)
	if err != nil {
		pos.Unrefreshed = true
		m.logger.Warn().Err(err).Str("position_id", pos.ID).Str("symbol", pos.Contract.Symbol).
			Msg("refresh failed, keeping last values")
		return
	}

	if mid := c.Mid(); mid > 0 {
		pos.CurrentPrice = mid
	}
	// Snapshots without greek or IV data keep the last known values so
	// the greek predicates never compare against zeros.
	if c.Greeks != (models.Greeks{}) {
		pos.CurrentGreeks = c.Greeks
	}
	if c.IV > 0 {
		pos.CurrentIV = c.IV
	}
	pos.Unrefreshed = !fresh
}

func (m *Monitor) closeAll(pos *models.Position, reason models.ExitReason, detail string) Decision {
	m.logger.Info().
		Str("position_id", pos.ID).
		Str("symbol", pos.Symbol).
		Str("reason", string(reason)).
		Str("detail", detail).
		Msg("exit triggered")
	return Decision{
		Action:    Close,
		Reason:    reason,
		Quantity:  pos.Quantity,
		ExitPrice: pos.CurrentPrice,
		Detail:    detail,
	}
}

// partialQuantity converts an exit percentage into a contract count,
// never below one.
func partialQuantity(total int, exitPercent float64) int {
	qty := int(math.Floor(float64(total) * exitPercent / 100))
	if qty < 1 {
		qty = 1
	}
	return qty
}
