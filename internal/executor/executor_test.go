package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-trader/internal/audit"
	apperrors "options-trader/internal/errors"
	"options-trader/internal/gateway"
	"options-trader/internal/models"
	"options-trader/internal/risk"
	"options-trader/internal/scanner"
	"options-trader/internal/store"
	"options-trader/internal/strategy"
)

// memStore keeps positions and trades in memory and answers the risk
// queries from them. Unimplemented interface methods panic through the
// embedded nil interface.
type memStore struct {
	store.DataStore

	positions map[string]*models.Position
	trades    []*models.Trade
	runs      map[string]int

	savePositionErr error
}

func newMemStore() *memStore {
	return &memStore{
		positions: map[string]*models.Position{},
		runs:      map[string]int{},
	}
}

func (m *memStore) SavePosition(_ context.Context, p *models.Position) error {
	if m.savePositionErr != nil {
		return m.savePositionErr
	}
	clone := *p
	m.positions[p.ID] = &clone
	return nil
}

func (m *memStore) SaveTrade(_ context.Context, t *models.Trade) error {
	clone := *t
	m.trades = append(m.trades, &clone)
	return nil
}

func (m *memStore) RecordAutomationRun(_ context.Context, id string, _ time.Time, executed bool) error {
	if executed {
		m.runs[id]++
	}
	return nil
}

func (m *memStore) GetRiskLimits(context.Context, string) (*models.RiskLimits, error) {
	return nil, nil
}

func (m *memStore) CountOpenPositions(context.Context, string) (int, error) {
	n := 0
	for _, p := range m.positions {
		if p.Status != models.PositionClosed {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountOpenPositionsBySymbol(_ context.Context, _ string, symbol string) (int, error) {
	n := 0
	for _, p := range m.positions {
		if p.Status != models.PositionClosed && p.Symbol == symbol {
			n++
		}
	}
	return n, nil
}

func (m *memStore) OpenNotional(context.Context, string) (float64, error) {
	var total float64
	for _, p := range m.positions {
		if p.Status != models.PositionClosed {
			total += p.Notional()
		}
	}
	return total, nil
}

func (m *memStore) RealizedPnLSince(context.Context, string, time.Time) (float64, error) {
	var total float64
	for _, t := range m.trades {
		if t.IsClose {
			total += t.RealizedPnL
		}
	}
	return total, nil
}

// failGateway rejects every order; paper mode must never reach it.
type failGateway struct {
	gateway.Gateway
}

func (failGateway) PlaceOrder(context.Context, gateway.Order) (*gateway.Fill, error) {
	return nil, errors.New("gateway should not be called")
}

var execNow = time.Date(2026, 1, 7, 15, 0, 0, 0, time.UTC)

func testAutomation() *models.Automation {
	return &models.Automation{
		ID:       "auto-1",
		UserID:   "default",
		Name:     "covered calls",
		Symbol:   "AAPL",
		Strategy: models.StrategyCoveredCall,
		IsActive: true,
	}
}

func testScored(premiumMid float64) scanner.ScoredContract {
	return scanner.ScoredContract{
		Contract: models.OptionContract{
			Symbol:       "AAPL260220C00210000",
			Underlying:   "AAPL",
			Strike:       210,
			Expiration:   execNow.AddDate(0, 0, 44),
			Right:        models.RightCall,
			Bid:          premiumMid - 0.05,
			Ask:          premiumMid + 0.05,
			Volume:       800,
			OpenInterest: 3000,
			IV:           0.32,
			Greeks:       models.Greeks{Delta: 0.30},
		},
		Score:    0.81,
		Category: scanner.CategoryAggressive,
		DTE:      44,
	}
}

func newPaperExecutor(ms *memStore) (*Executor, *PaperAccount) {
	paper := NewPaperAccount(ms, 100000)
	riskMgr := risk.NewManager(ms, paper, models.DefaultRiskLimits(""), zerolog.Nop())
	exec := NewExecutor(models.ModePaper, failGateway{}, ms, riskMgr, audit.NopSink{}, paper, 0.65, zerolog.Nop())
	return exec, paper
}

func mustStrategy(t *testing.T) strategy.Strategy {
	t.Helper()
	s, err := strategy.ForType(models.StrategyCoveredCall)
	require.NoError(t, err)
	return s
}

func TestOpenPositionPaperFlow(t *testing.T) {
	ms := newMemStore()
	exec, paper := newPaperExecutor(ms)

	pos, violation, err := exec.OpenPosition(context.Background(), testAutomation(), mustStrategy(t), testScored(2.50), execNow)

	require.NoError(t, err)
	require.Nil(t, violation)
	require.NotNil(t, pos)

	// 10% of 100k at 250 per contract: 40 contracts, filled at the mid.
	assert.Equal(t, 40, pos.Quantity)
	assert.InDelta(t, 2.50, pos.EntryPrice, 1e-9)
	assert.Equal(t, models.SideShort, pos.Side, "covered calls collect premium")
	assert.Equal(t, models.PositionOpen, pos.Status)

	require.Len(t, ms.trades, 1)
	trade := ms.trades[0]
	assert.Equal(t, models.TradeActionSell, trade.Action)
	assert.True(t, trade.IsPaper)
	assert.False(t, trade.IsClose)
	assert.InDelta(t, 0.65*40, trade.Commission, 1e-9)

	assert.Equal(t, 1, ms.runs["auto-1"], "execution counter advances on entry")

	// Selling 40 contracts at 2.50 credits 10000 minus commission.
	assert.InDelta(t, 100000+10000-26.0, paper.Balance("default"), 1e-9)
}

func TestOpenPositionRiskRejection(t *testing.T) {
	ms := newMemStore()
	exec, _ := newPaperExecutor(ms)

	// A premium too large for the position size ceiling.
	pos, violation, err := exec.OpenPosition(context.Background(), testAutomation(), mustStrategy(t), testScored(150.00), execNow)

	require.NoError(t, err, "a risk rejection is not an error")
	require.Nil(t, pos)
	require.NotNil(t, violation)
	assert.Equal(t, risk.CodePositionSize, violation.Code)
	assert.Empty(t, ms.trades, "no trade recorded on rejection")
	assert.Zero(t, ms.runs["auto-1"], "rejected runs do not advance the counter")
}

func TestClosePositionFullFlow(t *testing.T) {
	ms := newMemStore()
	exec, _ := newPaperExecutor(ms)

	pos, _, err := exec.OpenPosition(context.Background(), testAutomation(), mustStrategy(t), testScored(2.50), execNow)
	require.NoError(t, err)

	// The short decayed from 2.50 to 1.00: profit on the buyback.
	pos.CurrentPrice = 1.00
	trade, err := exec.ClosePosition(context.Background(), pos, models.ExitProfitTarget, 0, execNow.Add(time.Hour))

	require.NoError(t, err)
	assert.Equal(t, models.TradeActionBuy, trade.Action, "short positions buy to close")
	assert.True(t, trade.IsClose)
	// (1.00 - 2.50) * 40 * 100 * -1 = +6000.
	assert.InDelta(t, 6000.0, trade.RealizedPnL, 1e-9)

	assert.Equal(t, models.PositionClosed, pos.Status)
	assert.Equal(t, models.ExitProfitTarget, pos.ExitReason)
	assert.False(t, pos.ClosedAt.IsZero())

	saved := ms.positions[pos.ID]
	require.NotNil(t, saved)
	assert.Equal(t, models.PositionClosed, saved.Status)
}

func TestClosePositionPartial(t *testing.T) {
	ms := newMemStore()
	exec, _ := newPaperExecutor(ms)

	pos, _, err := exec.OpenPosition(context.Background(), testAutomation(), mustStrategy(t), testScored(2.50), execNow)
	require.NoError(t, err)
	require.Equal(t, 40, pos.Quantity)

	pos.CurrentPrice = 2.00
	trade, err := exec.ClosePosition(context.Background(), pos, models.ExitPartial, 20, execNow.Add(time.Hour))

	require.NoError(t, err)
	assert.Equal(t, 20, trade.Quantity)
	assert.Equal(t, models.PositionOpen, pos.Status, "partial close leaves the position open")
	assert.Equal(t, 20, pos.Quantity)
	assert.True(t, pos.PartialExitTaken)
}

func TestClosePositionAlreadyClosed(t *testing.T) {
	ms := newMemStore()
	exec, _ := newPaperExecutor(ms)

	pos := &models.Position{ID: "p", Status: models.PositionClosed}
	_, err := exec.ClosePosition(context.Background(), pos, models.ExitManual, 0, execNow)

	assert.ErrorIs(t, err, apperrors.ErrPositionClosed)
}

func TestClosePositionRevertsStatusOnFillFailure(t *testing.T) {
	ms := newMemStore()
	exec, _ := newPaperExecutor(ms)

	pos, _, err := exec.OpenPosition(context.Background(), testAutomation(), mustStrategy(t), testScored(2.50), execNow)
	require.NoError(t, err)

	// A zero mark makes the synthetic fill fail.
	pos.CurrentPrice = 0
	_, err = exec.ClosePosition(context.Background(), pos, models.ExitStopLoss, 0, execNow)

	require.Error(t, err)
	assert.Equal(t, models.PositionOpen, pos.Status, "failed close reverts to open")
	require.Len(t, ms.trades, 1, "only the entry trade exists")
}

func TestRollPosition(t *testing.T) {
	ms := newMemStore()
	exec, _ := newPaperExecutor(ms)

	pos, _, err := exec.OpenPosition(context.Background(), testAutomation(), mustStrategy(t), testScored(2.50), execNow)
	require.NoError(t, err)
	pos.CurrentPrice = 1.00

	replacement := testScored(2.20)
	replacement.Contract.Symbol = "AAPL260320C00215000"
	replacement.Contract.Expiration = execNow.AddDate(0, 0, 72)

	next, err := exec.RollPosition(context.Background(), pos, testAutomation(), mustStrategy(t), replacement, execNow.Add(time.Hour))

	require.NoError(t, err)
	require.NotNil(t, next)

	assert.Equal(t, models.PositionClosed, pos.Status)
	assert.Equal(t, models.ExitRoll, pos.ExitReason)

	assert.Equal(t, models.PositionOpen, next.Status)
	assert.Equal(t, "AAPL260320C00215000", next.Contract.Symbol)
	assert.Equal(t, pos.Side, next.Side)
	assert.Equal(t, pos.Quantity, next.Quantity)

	// Entry, roll close, roll open.
	require.Len(t, ms.trades, 3)
	assert.True(t, ms.trades[1].IsClose)
	assert.InDelta(t, 6000.0, ms.trades[1].RealizedPnL, 1e-9)
	assert.False(t, ms.trades[2].IsClose)
}

func TestRollPositionFailedLegRecordsNothing(t *testing.T) {
	ms := newMemStore()
	exec, _ := newPaperExecutor(ms)

	pos, _, err := exec.OpenPosition(context.Background(), testAutomation(), mustStrategy(t), testScored(2.50), execNow)
	require.NoError(t, err)
	pos.CurrentPrice = 1.00

	// The replacement has no market, so the open leg cannot fill.
	replacement := testScored(2.20)
	replacement.Contract.Bid, replacement.Contract.Ask, replacement.Contract.Last = 0, 0, 0

	_, err = exec.RollPosition(context.Background(), pos, testAutomation(), mustStrategy(t), replacement, execNow)

	require.Error(t, err)
	require.Len(t, ms.trades, 1, "neither roll leg was recorded")
	saved := ms.positions[pos.ID]
	assert.Equal(t, models.PositionOpen, saved.Status, "stored position untouched")
}

func TestPaperAccountPortfolioValue(t *testing.T) {
	ms := newMemStore()
	paper := NewPaperAccount(ms, 50000)

	require.NoError(t, ms.SavePosition(context.Background(), &models.Position{
		ID:         "p1",
		UserID:     "default",
		Contract:   &models.OptionContract{},
		Side:       models.SideLong,
		Quantity:   2,
		EntryPrice: 3.00,
		Status:     models.PositionOpen,
	}))

	paper.Apply("default", -600)

	pv, err := paper.PortfolioValue(context.Background(), "default")
	require.NoError(t, err)
	// 50000 - 600 cash plus 600 of deployed notional.
	assert.InDelta(t, 50000.0, pv, 1e-9)

	paper.Reset("default")
	assert.InDelta(t, 50000.0, paper.Balance("default"), 1e-9)
}
