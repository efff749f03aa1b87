package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-trader/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testAutomation(id string) *models.Automation {
	return &models.Automation{
		ID:       id,
		UserID:   "default",
		Name:     "weekly covered calls",
		Symbol:   "AAPL",
		Strategy: models.StrategyCoveredCall,
		Entry: models.EntryCriteria{
			MinConfidence:    0.6,
			MinVolume:        100,
			MinOpenInterest:  500,
			MaxSpreadPercent: 25,
			MinDTE:           7,
			MaxDTE:           45,
			PreferredDTE:     30,
		},
		Exit: models.ExitCriteria{
			ProfitTargetPercent: 50,
			StopLossPercent:     100,
			MaxDaysToHold:       21,
			PartialExit:         &models.PartialExitRule{ProfitPercent: 25, ExitPercent: 50},
			Roll:                &models.RollRule{Enabled: true, ProfitPercent: 80, MinDTE: 14},
			Greeks:              &models.GreekLimits{MaxAbsDelta: 0.80},
		},
		IsActive:  true,
		CreatedAt: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
	}
}

func testPosition(id, userID string, contract *models.OptionContract, entry float64, qty int, status models.PositionStatus) *models.Position {
	return &models.Position{
		ID:           id,
		AutomationID: "auto-1",
		UserID:       userID,
		Origin:       models.OriginAutomation,
		Symbol:       "AAPL",
		Contract:     contract,
		Side:         models.SideLong,
		Quantity:     qty,
		EntryPrice:   entry,
		EntryIV:      0.32,
		EntryGreeks:  models.Greeks{Delta: 0.30, Theta: -0.02},
		CurrentPrice: entry,
		Status:       status,
		OpenedAt:     time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
	}
}

func testOptionContract() *models.OptionContract {
	return &models.OptionContract{
		Symbol:       "AAPL260220C00210000",
		Underlying:   "AAPL",
		Strike:       210,
		Expiration:   time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC),
		Right:        models.RightCall,
		Bid:          2.45,
		Ask:          2.55,
		Volume:       800,
		OpenInterest: 3000,
		IV:           0.32,
		Greeks:       models.Greeks{Delta: 0.30},
	}
}

func TestAutomationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAutomation("auto-1")
	require.NoError(t, s.SaveAutomation(ctx, a))

	got, err := s.GetAutomation(ctx, "auto-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, a.Name, got.Name)
	assert.Equal(t, a.Strategy, got.Strategy)
	assert.Equal(t, a.Entry, got.Entry)
	require.NotNil(t, got.Exit.PartialExit)
	assert.Equal(t, *a.Exit.PartialExit, *got.Exit.PartialExit)
	require.NotNil(t, got.Exit.Roll)
	assert.Equal(t, *a.Exit.Roll, *got.Exit.Roll)
	require.NotNil(t, got.Exit.Greeks)
	assert.True(t, got.IsActive)
	assert.True(t, got.LastRunAt.IsZero())

	missing, err := s.GetAutomation(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetActiveAutomationsFiltersInactive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := testAutomation("auto-1")
	inactive := testAutomation("auto-2")
	inactive.IsActive = false
	require.NoError(t, s.SaveAutomation(ctx, active))
	require.NoError(t, s.SaveAutomation(ctx, inactive))

	got, err := s.GetActiveAutomations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "auto-1", got[0].ID)
}

func TestRecordAutomationRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAutomation(ctx, testAutomation("auto-1")))

	at := time.Date(2026, 1, 7, 15, 0, 0, 0, time.UTC)

	// A run without a trade keeps the counter flat.
	require.NoError(t, s.RecordAutomationRun(ctx, "auto-1", at, false))
	got, err := s.GetAutomation(ctx, "auto-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.ExecutionCount)
	assert.False(t, got.LastRunAt.IsZero())

	// An executed run increments it.
	require.NoError(t, s.RecordAutomationRun(ctx, "auto-1", at.Add(time.Hour), true))
	got, err = s.GetAutomation(ctx, "auto-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ExecutionCount)

	assert.Error(t, s.RecordAutomationRun(ctx, "missing", at, true))
}

func TestPositionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testPosition("pos-1", "default", testOptionContract(), 2.50, 2, models.PositionOpen)
	p.HighWaterPnL = 120
	p.PartialExitTaken = true
	require.NoError(t, s.SavePosition(ctx, p))

	got, err := s.GetPosition(ctx, "pos-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NotNil(t, got.Contract)
	assert.Equal(t, p.Contract.Symbol, got.Contract.Symbol)
	assert.Equal(t, p.Contract.Strike, got.Contract.Strike)
	assert.Equal(t, p.EntryGreeks, got.EntryGreeks)
	assert.Equal(t, p.HighWaterPnL, got.HighWaterPnL)
	assert.True(t, got.PartialExitTaken)
	assert.Equal(t, models.PositionOpen, got.Status)
	assert.True(t, got.ClosedAt.IsZero())

	// Equity positions persist without a contract.
	eq := testPosition("pos-2", "default", nil, 100, 10, models.PositionOpen)
	require.NoError(t, s.SavePosition(ctx, eq))
	got, err = s.GetPosition(ctx, "pos-2")
	require.NoError(t, err)
	assert.Nil(t, got.Contract)
}

func TestPositionCountsAndNotional(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Two open option positions, one open equity, one closed.
	require.NoError(t, s.SavePosition(ctx, testPosition("p1", "default", testOptionContract(), 2.50, 2, models.PositionOpen)))
	require.NoError(t, s.SavePosition(ctx, testPosition("p2", "default", testOptionContract(), 1.00, 1, models.PositionClosing)))
	require.NoError(t, s.SavePosition(ctx, testPosition("p3", "default", nil, 100, 5, models.PositionOpen)))
	require.NoError(t, s.SavePosition(ctx, testPosition("p4", "default", testOptionContract(), 9.99, 9, models.PositionClosed)))
	require.NoError(t, s.SavePosition(ctx, testPosition("p5", "other", testOptionContract(), 3.00, 1, models.PositionOpen)))

	count, err := s.CountOpenPositions(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "closing counts as open, closed does not")

	bySymbol, err := s.CountOpenPositionsBySymbol(ctx, "default", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 3, bySymbol)

	has, err := s.HasOpenPosition(ctx, "auto-1")
	require.NoError(t, err)
	assert.True(t, has)

	// 2*2.50*100 + 1*1.00*100 + 5*100*1 = 1100.
	notional, err := s.OpenNotional(ctx, "default")
	require.NoError(t, err)
	assert.InDelta(t, 1100.0, notional, 1e-9)

	none, err := s.OpenNotional(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestTradesFilterAndWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	save := func(id string, ts time.Time, symbol string, pnl float64, isClose bool) {
		require.NoError(t, s.SaveTrade(ctx, &models.Trade{
			ID:          id,
			PositionID:  "pos-1",
			UserID:      "default",
			Symbol:      symbol,
			Action:      models.TradeActionBuy,
			Quantity:    1,
			Price:       2.50,
			RealizedPnL: pnl,
			IsClose:     isClose,
			Source:      models.OriginAutomation,
			IsPaper:     true,
			Timestamp:   ts,
		}))
	}

	save("t1", base, "AAPL260220C00210000", 0, false)
	save("t2", base.Add(24*time.Hour), "AAPL260220C00210000", 150, true)
	save("t3", base.Add(48*time.Hour), "SPY260220P00470000", -40, true)

	// Newest first, filterable by symbol.
	got, err := s.GetTrades(ctx, TradeFilter{UserID: "default"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "t3", got[0].ID)

	got, err = s.GetTrades(ctx, TradeFilter{Symbol: "SPY260220P00470000"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t3", got[0].ID)

	closes := true
	got, err = s.GetTrades(ctx, TradeFilter{IsClose: &closes, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t3", got[0].ID)

	// The loss window only sees closing trades at or after the cutoff.
	pnl, err := s.RealizedPnLSince(ctx, "default", base.Add(36*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, -40.0, pnl, 1e-9)

	pnl, err = s.RealizedPnLSince(ctx, "default", base)
	require.NoError(t, err)
	assert.InDelta(t, 110.0, pnl, 1e-9)

	pnl, err = s.RealizedPnLSince(ctx, "nobody", base)
	require.NoError(t, err)
	assert.Zero(t, pnl)
}

func TestRiskLimitsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	missing, err := s.GetRiskLimits(ctx, "default")
	require.NoError(t, err)
	assert.Nil(t, missing, "absent limits are nil, not an error")

	limits := models.DefaultRiskLimits("default")
	limits.MaxOpenPositions = 4
	require.NoError(t, s.SaveRiskLimits(ctx, &limits))

	got, err := s.GetRiskLimits(ctx, "default")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, limits, *got)
}

func TestAuditAppendAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 7, 15, 0, 0, 0, time.UTC)
	for i, event := range []models.AuditEvent{models.AuditTrigger, models.AuditEntry, models.AuditExit} {
		require.NoError(t, s.AppendAudit(ctx, &models.AuditLog{
			ID:        string(rune('a' + i)),
			UserID:    "default",
			Symbol:    "AAPL",
			Event:     event,
			Success:   true,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := s.RecentAudit(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.AuditExit, got[0].Event, "newest first")
	assert.Equal(t, models.AuditEntry, got[1].Event)

	require.NoError(t, s.AppendError(ctx, &models.ErrorLog{
		ID:        "e1",
		Symbol:    "AAPL",
		Step:      "chain",
		Message:   "boom",
		Timestamp: base,
	}))
}

func TestIVSampleOncePerDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	day := time.Now().AddDate(0, 0, -2)
	require.NoError(t, s.SaveIVSample(ctx, models.IVSample{Symbol: "AAPL", Day: day, IV: 0.30}))
	// A second observation on the same day is ignored, first one wins.
	require.NoError(t, s.SaveIVSample(ctx, models.IVSample{Symbol: "AAPL", Day: day, IV: 0.99}))
	require.NoError(t, s.SaveIVSample(ctx, models.IVSample{Symbol: "AAPL", Day: day.AddDate(0, 0, 1), IV: 0.35}))
	require.NoError(t, s.SaveIVSample(ctx, models.IVSample{Symbol: "SPY", Day: day, IV: 0.18}))

	samples, err := s.GetIVHistory(ctx, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.InDelta(t, 0.30, samples[0].IV, 1e-9, "oldest first, duplicate ignored")
	assert.InDelta(t, 0.35, samples[1].IV, 1e-9)
}
