// Package risk enforces per-user trading limits before any order is
// placed.
package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "options-trader/internal/errors"
	"options-trader/internal/models"
	"options-trader/internal/store"
	"options-trader/pkg/utils"
)

// Violation codes, one per check.
const (
	CodeMaxOpenPositions      = "MAX_OPEN_POSITIONS"
	CodeMaxPositionsPerSymbol = "MAX_POSITIONS_PER_SYMBOL"
	CodePositionSize          = "POSITION_SIZE"
	CodeCapitalAtRisk         = "CAPITAL_AT_RISK"
	CodeDailyLoss             = "DAILY_LOSS"
	CodeWeeklyLoss            = "WEEKLY_LOSS"
	CodeMonthlyLoss           = "MONTHLY_LOSS"
	CodeDTEBounds             = "DTE_BOUNDS"
)

// BalanceSource reports a user's current portfolio value. Paper mode
// backs this with the simulated account, live mode with broker equity.
type BalanceSource interface {
	PortfolioValue(ctx context.Context, userID string) (float64, error)
}

// Proposal describes an entry the manager is asked to approve.
type Proposal struct {
	UserID       string
	AutomationID string
	Symbol       string // underlying
	Premium      float64
	Multiplier   float64 // 100 for options, 1 for equity
	DTE          int
	Side         models.PositionSide
}

// Decision is the outcome of an evaluation. When approved, Quantity is
// the largest contract count that fits the per-position size ceiling.
type Decision struct {
	Approved       bool
	Quantity       int
	PortfolioValue float64
	Violation      *apperrors.RiskViolation
}

// Manager evaluates proposals against per-user limits. Checks run in a
// fixed order and short-circuit on the first violation, so a rejection
// always carries the code of the first limit hit.
type Manager struct {
	store    store.DataStore
	balances BalanceSource
	defaults models.RiskLimits
	logger   zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a risk manager. The defaults apply to users
// without persisted limits.
func NewManager(st store.DataStore, balances BalanceSource, defaults models.RiskLimits, logger zerolog.Logger) *Manager {
	return &Manager{
		store:    st,
		balances: balances,
		defaults: defaults,
		logger:   logger.With().Str("component", "risk").Logger(),
		locks:    make(map[string]*sync.Mutex),
	}
}

// LockUser serializes the approve-then-record sequence for one user.
// The caller must invoke the returned function once the new position
// has been recorded (or the attempt abandoned); until then no other
// proposal for the same user can be evaluated.
func (m *Manager) LockUser(userID string) func() {
	m.mu.Lock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[userID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Evaluate runs every check against the proposal. A violation is a
// normal negative outcome carried in the decision, not an error; the
// error return is reserved for store or balance lookup failures.
func (m *Manager) Evaluate(ctx context.Context, p Proposal, now time.Time) (Decision, error) {
	limits, err := m.limitsFor(ctx, p.UserID)
	if err != nil {
		return Decision{}, err
	}

	pv, err := m.balances.PortfolioValue(ctx, p.UserID)
	if err != nil {
		return Decision{}, apperrors.Wrap(err, "portfolio value lookup failed")
	}
	decision := Decision{PortfolioValue: pv}

	// Position count ceilings.
	openCount, err := m.store.CountOpenPositions(ctx, p.UserID)
	if err != nil {
		return Decision{}, err
	}
	if openCount >= limits.MaxOpenPositions {
		return m.reject(decision, p, apperrors.NewRiskViolation(CodeMaxOpenPositions,
			float64(openCount), float64(limits.MaxOpenPositions),
			"open position limit reached")), nil
	}

	symbolCount, err := m.store.CountOpenPositionsBySymbol(ctx, p.UserID, p.Symbol)
	if err != nil {
		return Decision{}, err
	}
	if symbolCount >= limits.MaxPositionsPerSymbol {
		return m.reject(decision, p, apperrors.NewRiskViolation(CodeMaxPositionsPerSymbol,
			float64(symbolCount), float64(limits.MaxPositionsPerSymbol),
			fmt.Sprintf("position limit for %s reached", p.Symbol))), nil
	}

	// Sizing: the approved quantity comes from the per-position
	// ceiling alone. Zero quantity is a rejection, not a zero-lot
	// approval.
	perContract := p.Premium * p.Multiplier
	if perContract <= 0 {
		return m.reject(decision, p, apperrors.NewRiskViolation(CodePositionSize,
			perContract, 0, "non-positive premium")), nil
	}

	positionCeiling := limits.MaxPositionSizePct / 100 * pv
	qty := int(math.Floor(positionCeiling / perContract))
	if qty < 1 {
		return m.reject(decision, p, apperrors.NewRiskViolation(CodePositionSize,
			perContract, positionCeiling,
			"one contract exceeds the position size ceiling")), nil
	}

	// Capital at risk is pass/fail: a proposal that would push the
	// cumulative deployed notional over the ceiling is rejected whole,
	// never silently downsized.
	openNotional, err := m.store.OpenNotional(ctx, p.UserID)
	if err != nil {
		return Decision{}, err
	}
	riskCeiling := limits.MaxCapitalAtRiskPct / 100 * pv
	if proposed := openNotional + float64(qty)*perContract; proposed > riskCeiling {
		return m.reject(decision, p, apperrors.NewRiskViolation(CodeCapitalAtRisk,
			proposed, riskCeiling,
			"cumulative capital at risk over the ceiling")), nil
	}

	// Loss windows.
	windows := []struct {
		code  string
		since time.Time
		pct   float64
	}{
		{CodeDailyLoss, utils.TradingDay(now), limits.MaxDailyLossPct},
		{CodeWeeklyLoss, utils.WeekStart(now), limits.MaxWeeklyLossPct},
		{CodeMonthlyLoss, utils.MonthStart(now), limits.MaxMonthlyLossPct},
	}
	for _, w := range windows {
		realized, err := m.store.RealizedPnLSince(ctx, p.UserID, w.since)
		if err != nil {
			return Decision{}, err
		}
		loss := -realized
		limit := w.pct / 100 * pv
		if loss >= limit && limit > 0 {
			return m.reject(decision, p, apperrors.NewRiskViolation(w.code,
				loss, limit, "loss limit reached, trading halted for the window")), nil
		}
	}

	// DTE bounds.
	if p.DTE < limits.MinDTE || (limits.MaxDTE > 0 && p.DTE > limits.MaxDTE) {
		return m.reject(decision, p, apperrors.NewRiskViolation(CodeDTEBounds,
			float64(p.DTE), float64(limits.MaxDTE),
			fmt.Sprintf("DTE outside [%d, %d]", limits.MinDTE, limits.MaxDTE))), nil
	}

	decision.Approved = true
	decision.Quantity = qty
	m.logger.Debug().
		Str("user_id", p.UserID).
		Str("symbol", p.Symbol).
		Int("quantity", qty).
		Float64("portfolio_value", pv).
		Msg("proposal approved")
	return decision, nil
}

func (m *Manager) limitsFor(ctx context.Context, userID string) (models.RiskLimits, error) {
	limits, err := m.store.GetRiskLimits(ctx, userID)
	if err != nil {
		return models.RiskLimits{}, err
	}
	if limits == nil {
		defaults := m.defaults
		defaults.UserID = userID
		return defaults, nil
	}
	return *limits, nil
}

func (m *Manager) reject(d Decision, p Proposal, v *apperrors.RiskViolation) Decision {
	m.logger.Info().
		Str("user_id", p.UserID).
		Str("automation_id", p.AutomationID).
		Str("symbol", p.Symbol).
		Str("code", v.Code).
		Float64("current", v.Current).
		Float64("limit", v.Limit).
		Msg("proposal rejected")
	d.Approved = false
	d.Violation = v
	return d
}
