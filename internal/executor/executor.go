// Package executor turns approved opportunities and exit decisions
// into fills, positions and trade records.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"options-trader/internal/audit"
	apperrors "options-trader/internal/errors"
	"options-trader/internal/gateway"
	"options-trader/internal/models"
	"options-trader/internal/risk"
	"options-trader/internal/scanner"
	"options-trader/internal/store"
	"options-trader/internal/strategy"
	"options-trader/pkg/id"
)

// Executor opens and closes positions. Paper and live mode share every
// step except the fill itself: paper fills synthetically at the mid,
// live places a real order through the gateway.
type Executor struct {
	mode       models.TradingMode
	gw         gateway.Gateway
	store      store.DataStore
	riskMgr    *risk.Manager
	sink       audit.Sink
	paper      *PaperAccount
	commission float64 // per contract, per side
	logger     zerolog.Logger
}

// NewExecutor creates an executor. The paper account may be nil in
// live mode.
func NewExecutor(mode models.TradingMode, gw gateway.Gateway, st store.DataStore, riskMgr *risk.Manager, sink audit.Sink, paper *PaperAccount, commission float64, logger zerolog.Logger) *Executor {
	return &Executor{
		mode:       mode,
		gw:         gw,
		store:      st,
		riskMgr:    riskMgr,
		sink:       sink,
		paper:      paper,
		commission: commission,
		logger:     logger.With().Str("component", "executor").Str("mode", string(mode)).Logger(),
	}
}

// IsPaper reports whether fills are simulated.
func (e *Executor) IsPaper() bool {
	return e.mode == models.ModePaper
}

// OpenPosition runs the full entry sequence: risk approval, fill,
// position and trade records, audit entry, execution counter. The
// returned violation is non-nil when risk rejected the entry; that is
// a normal outcome, not an error.
func (e *Executor) OpenPosition(ctx context.Context, auto *models.Automation, strat strategy.Strategy, sc scanner.ScoredContract, now time.Time) (*models.Position, *apperrors.RiskViolation, error) {
	contract := sc.Contract
	premium := contract.Mid()

	// The approve-then-record sequence holds the user lock so two
	// concurrent entries cannot both pass against the same headroom.
	unlock := e.riskMgr.LockUser(auto.UserID)
	defer unlock()

	decision, err := e.riskMgr.Evaluate(ctx, risk.Proposal{
		UserID:       auto.UserID,
		AutomationID: auto.ID,
		Symbol:       auto.Symbol,
		Premium:      premium,
		Multiplier:   100,
		DTE:          sc.DTE,
		Side:         strat.Side(),
	}, now)
	if err != nil {
		return nil, nil, err
	}
	if !decision.Approved {
		e.sink.Audit(ctx, models.AuditLog{
			UserID:       auto.UserID,
			AutomationID: auto.ID,
			Symbol:       auto.Symbol,
			Event:        models.AuditRiskRejection,
			Success:      false,
			Detail:       decision.Violation.Error(),
		})
		if rerr := e.store.RecordAutomationRun(ctx, auto.ID, now, false); rerr != nil {
			e.logger.Error().Err(rerr).Str("automation_id", auto.ID).Msg("run record failed")
		}
		return nil, decision.Violation, nil
	}

	action := models.TradeActionBuy
	if strat.Side() == models.SideShort {
		action = models.TradeActionSell
	}

	fill, err := e.fill(ctx, contract.Symbol, action, decision.Quantity, premium)
	if err != nil {
		// An approved entry that fails to fill leaves no position and
		// no trade behind, only the audit trail. No silent retry.
		e.sink.Audit(ctx, models.AuditLog{
			UserID:       auto.UserID,
			AutomationID: auto.ID,
			Symbol:       auto.Symbol,
			Event:        models.AuditEntry,
			Success:      false,
			Detail:       fmt.Sprintf("order failed: %v", err),
		})
		e.sink.Error(ctx, models.ErrorLog{
			AutomationID: auto.ID,
			Symbol:       auto.Symbol,
			Step:         "entry_order",
			Message:      err.Error(),
		})
		return nil, nil, apperrors.NewExecutionError(auto.ID, contract.Symbol, string(action), "order placement failed", err)
	}

	pos := &models.Position{
		ID:           id.New(),
		AutomationID: auto.ID,
		UserID:       auto.UserID,
		Origin:       models.OriginAutomation,
		Symbol:       auto.Symbol,
		Contract:     &contract,
		Side:         strat.Side(),
		Quantity:     fill.Quantity,
		EntryPrice:   fill.Price,
		EntryIV:      contract.IV,
		EntryGreeks:  contract.Greeks,
		CurrentPrice: fill.Price,
		CurrentIV:    contract.IV,
		Status:       models.PositionOpen,
		OpenedAt:     now,
	}
	if err := e.store.SavePosition(ctx, pos); err != nil {
		return nil, nil, apperrors.Wrap(err, "position save failed")
	}

	commission := e.commission * float64(fill.Quantity)
	trade := &models.Trade{
		ID:           id.New(),
		PositionID:   pos.ID,
		AutomationID: auto.ID,
		UserID:       auto.UserID,
		Symbol:       contract.Symbol,
		Action:       action,
		Quantity:     fill.Quantity,
		Price:        fill.Price,
		Commission:   commission,
		Source:       models.OriginAutomation,
		IsPaper:      e.IsPaper(),
		Timestamp:    now,
	}
	if err := e.store.SaveTrade(ctx, trade); err != nil {
		return nil, nil, apperrors.Wrap(err, "trade save failed")
	}

	e.settle(auto.UserID, action, fill.Price, fill.Quantity, commission)

	e.sink.Audit(ctx, models.AuditLog{
		UserID:       auto.UserID,
		AutomationID: auto.ID,
		PositionID:   pos.ID,
		Symbol:       auto.Symbol,
		Event:        models.AuditEntry,
		Success:      true,
		Detail: fmt.Sprintf("%s %d x %s @ %.2f (score %.2f, %s)",
			action, fill.Quantity, contract.Symbol, fill.Price, sc.Score, sc.Category),
	})
	if err := e.store.RecordAutomationRun(ctx, auto.ID, now, true); err != nil {
		e.logger.Error().Err(err).Str("automation_id", auto.ID).Msg("run record failed")
	}

	e.logger.Info().
		Str("position_id", pos.ID).
		Str("contract", contract.Symbol).
		Int("quantity", fill.Quantity).
		Float64("price", fill.Price).
		Msg("position opened")
	return pos, nil, nil
}

// ClosePosition closes qty contracts of an open position, recording the
// realized P/L on the closing trade. Closing the full quantity moves
// the position to closed; a partial close shrinks it and leaves it open.
func (e *Executor) ClosePosition(ctx context.Context, pos *models.Position, reason models.ExitReason, qty int, now time.Time) (*models.Trade, error) {
	if pos.Status == models.PositionClosed {
		return nil, apperrors.ErrPositionClosed
	}
	if qty <= 0 || qty > pos.Quantity {
		qty = pos.Quantity
	}

	// Long positions sell to close; short positions buy back.
	action := models.TradeActionSell
	if pos.Side == models.SideShort {
		action = models.TradeActionBuy
	}
	symbol := pos.Symbol
	if pos.Contract != nil {
		symbol = pos.Contract.Symbol
	}

	prevStatus := pos.Status
	pos.Status = models.PositionClosing
	if err := e.store.SavePosition(ctx, pos); err != nil {
		pos.Status = prevStatus
		return nil, apperrors.Wrap(err, "position save failed")
	}

	fill, err := e.fill(ctx, symbol, action, qty, pos.CurrentPrice)
	if err != nil {
		pos.Status = prevStatus
		if serr := e.store.SavePosition(ctx, pos); serr != nil {
			e.logger.Error().Err(serr).Str("position_id", pos.ID).Msg("status revert failed")
		}
		e.sink.Audit(ctx, models.AuditLog{
			UserID:       pos.UserID,
			AutomationID: pos.AutomationID,
			PositionID:   pos.ID,
			Symbol:       pos.Symbol,
			Event:        models.AuditExit,
			Success:      false,
			Detail:       fmt.Sprintf("close order failed: %v", err),
		})
		e.sink.Error(ctx, models.ErrorLog{
			AutomationID: pos.AutomationID,
			Symbol:       pos.Symbol,
			Step:         "exit_order",
			Message:      err.Error(),
		})
		return nil, apperrors.NewExecutionError(pos.AutomationID, symbol, string(action), "close order failed", err)
	}

	commission := e.commission * float64(fill.Quantity)
	realized := pos.RealizedPnLAt(fill.Price, fill.Quantity)

	trade := &models.Trade{
		ID:           id.New(),
		PositionID:   pos.ID,
		AutomationID: pos.AutomationID,
		UserID:       pos.UserID,
		Symbol:       symbol,
		Action:       action,
		Quantity:     fill.Quantity,
		Price:        fill.Price,
		Commission:   commission,
		RealizedPnL:  realized,
		IsClose:      true,
		Source:       pos.Origin,
		IsPaper:      e.IsPaper(),
		Timestamp:    now,
	}
	if err := e.store.SaveTrade(ctx, trade); err != nil {
		return nil, apperrors.Wrap(err, "trade save failed")
	}

	e.settle(pos.UserID, action, fill.Price, fill.Quantity, commission)

	if fill.Quantity >= pos.Quantity {
		pos.Status = models.PositionClosed
		pos.ExitReason = reason
		pos.ClosedAt = now
	} else {
		pos.Quantity -= fill.Quantity
		pos.Status = models.PositionOpen
		if reason == models.ExitPartial {
			pos.PartialExitTaken = true
		}
	}
	if err := e.store.SavePosition(ctx, pos); err != nil {
		return nil, apperrors.Wrap(err, "position save failed")
	}

	e.sink.Audit(ctx, models.AuditLog{
		UserID:       pos.UserID,
		AutomationID: pos.AutomationID,
		PositionID:   pos.ID,
		Symbol:       pos.Symbol,
		Event:        models.AuditExit,
		Success:      true,
		Detail: fmt.Sprintf("%s %d x %s @ %.2f (%s, pnl %.2f)",
			action, fill.Quantity, symbol, fill.Price, reason, realized),
	})

	e.logger.Info().
		Str("position_id", pos.ID).
		Str("reason", string(reason)).
		Float64("realized_pnl", realized).
		Msg("position closed")
	return trade, nil
}

// RollPosition closes the position and opens its replacement as one
// decision: when either leg's order fails, neither position change nor
// trade is recorded.
func (e *Executor) RollPosition(ctx context.Context, pos *models.Position, auto *models.Automation, strat strategy.Strategy, replacement scanner.ScoredContract, now time.Time) (*models.Position, error) {
	if pos.Status == models.PositionClosed {
		return nil, apperrors.ErrPositionClosed
	}

	closeAction := models.TradeActionSell
	if pos.Side == models.SideShort {
		closeAction = models.TradeActionBuy
	}
	openAction := models.TradeActionBuy
	if strat.Side() == models.SideShort {
		openAction = models.TradeActionSell
	}
	oldSymbol := pos.Symbol
	if pos.Contract != nil {
		oldSymbol = pos.Contract.Symbol
	}

	// Both fills must land before anything is recorded.
	closeFill, err := e.fill(ctx, oldSymbol, closeAction, pos.Quantity, pos.CurrentPrice)
	if err != nil {
		e.rollFailed(ctx, pos, "roll_close_order", err)
		return nil, apperrors.NewExecutionError(pos.AutomationID, oldSymbol, string(closeAction), "roll close failed", err)
	}
	openFill, err := e.fill(ctx, replacement.Contract.Symbol, openAction, pos.Quantity, replacement.Contract.Mid())
	if err != nil {
		e.rollFailed(ctx, pos, "roll_open_order", err)
		return nil, apperrors.NewExecutionError(pos.AutomationID, replacement.Contract.Symbol, string(openAction), "roll open failed", err)
	}

	realized := pos.RealizedPnLAt(closeFill.Price, closeFill.Quantity)
	closeCommission := e.commission * float64(closeFill.Quantity)
	openCommission := e.commission * float64(openFill.Quantity)

	closeTrade := &models.Trade{
		ID:           id.New(),
		PositionID:   pos.ID,
		AutomationID: pos.AutomationID,
		UserID:       pos.UserID,
		Symbol:       oldSymbol,
		Action:       closeAction,
		Quantity:     closeFill.Quantity,
		Price:        closeFill.Price,
		Commission:   closeCommission,
		RealizedPnL:  realized,
		IsClose:      true,
		Source:       pos.Origin,
		IsPaper:      e.IsPaper(),
		Timestamp:    now,
	}
	if err := e.store.SaveTrade(ctx, closeTrade); err != nil {
		return nil, apperrors.Wrap(err, "roll close trade save failed")
	}

	pos.Status = models.PositionClosed
	pos.ExitReason = models.ExitRoll
	pos.ClosedAt = now
	if err := e.store.SavePosition(ctx, pos); err != nil {
		return nil, apperrors.Wrap(err, "roll position save failed")
	}
	e.settle(pos.UserID, closeAction, closeFill.Price, closeFill.Quantity, closeCommission)

	newContract := replacement.Contract
	next := &models.Position{
		ID:           id.New(),
		AutomationID: pos.AutomationID,
		UserID:       pos.UserID,
		Origin:       models.OriginAutomation,
		Symbol:       pos.Symbol,
		Contract:     &newContract,
		Side:         pos.Side,
		Quantity:     openFill.Quantity,
		EntryPrice:   openFill.Price,
		EntryIV:      newContract.IV,
		EntryGreeks:  newContract.Greeks,
		CurrentPrice: openFill.Price,
		CurrentIV:    newContract.IV,
		Status:       models.PositionOpen,
		OpenedAt:     now,
	}
	if err := e.store.SavePosition(ctx, next); err != nil {
		return nil, apperrors.Wrap(err, "roll position save failed")
	}

	openTrade := &models.Trade{
		ID:           id.New(),
		PositionID:   next.ID,
		AutomationID: pos.AutomationID,
		UserID:       pos.UserID,
		Symbol:       newContract.Symbol,
		Action:       openAction,
		Quantity:     openFill.Quantity,
		Price:        openFill.Price,
		Commission:   openCommission,
		Source:       models.OriginAutomation,
		IsPaper:      e.IsPaper(),
		Timestamp:    now,
	}
	if err := e.store.SaveTrade(ctx, openTrade); err != nil {
		return nil, apperrors.Wrap(err, "roll open trade save failed")
	}
	e.settle(pos.UserID, openAction, openFill.Price, openFill.Quantity, openCommission)

	e.sink.Audit(ctx, models.AuditLog{
		UserID:       pos.UserID,
		AutomationID: pos.AutomationID,
		PositionID:   next.ID,
		Symbol:       pos.Symbol,
		Event:        models.AuditExit,
		Success:      true,
		Detail: fmt.Sprintf("rolled %s -> %s @ %.2f (pnl %.2f)",
			oldSymbol, newContract.Symbol, openFill.Price, realized),
	})

	e.logger.Info().
		Str("old_position_id", pos.ID).
		Str("new_position_id", next.ID).
		Str("contract", newContract.Symbol).
		Msg("position rolled")
	return next, nil
}

func (e *Executor) rollFailed(ctx context.Context, pos *models.Position, step string, err error) {
	e.sink.Audit(ctx, models.AuditLog{
		UserID:       pos.UserID,
		AutomationID: pos.AutomationID,
		PositionID:   pos.ID,
		Symbol:       pos.Symbol,
		Event:        models.AuditExit,
		Success:      false,
		Detail:       fmt.Sprintf("%s failed: %v", step, err),
	})
	e.sink.Error(ctx, models.ErrorLog{
		AutomationID: pos.AutomationID,
		Symbol:       pos.Symbol,
		Step:         step,
		Message:      err.Error(),
	})
}

// fill executes one order. Paper mode fills synthetically at the
// reference price; live mode places a real order exactly once.
func (e *Executor) fill(ctx context.Context, symbol string, action models.TradeAction, qty int, refPrice float64) (*gateway.Fill, error) {
	if e.IsPaper() {
		if refPrice <= 0 {
			return nil, apperrors.NewGatewayError("paper_fill", symbol, apperrors.ErrNoMarketData)
		}
		return &gateway.Fill{
			OrderID:   id.New(),
			Price:     refPrice,
			Quantity:  qty,
			Timestamp: time.Now(),
		}, nil
	}
	return e.gw.PlaceOrder(ctx, gateway.Order{
		Symbol:     symbol,
		Action:     action,
		Quantity:   qty,
		LimitPrice: refPrice,
	})
}

// settle applies paper cash movement for a fill: buys debit cash,
// sells credit it. Commission always debits.
func (e *Executor) settle(userID string, action models.TradeAction, price float64, qty int, commission float64) {
	if e.paper == nil {
		return
	}
	notional := price * float64(qty) * 100
	if action == models.TradeActionBuy {
		notional = -notional
	}
	e.paper.Apply(userID, notional-commission)
}
