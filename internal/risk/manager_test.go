package risk

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-trader/internal/models"
	"options-trader/internal/store"
)

// fakeStore implements just the queries the manager issues. Everything
// else panics through the embedded nil interface.
type fakeStore struct {
	store.DataStore

	limits       *models.RiskLimits
	openCount    int
	symbolCount  int
	openNotional float64
	realized     float64
}

func (f *fakeStore) GetRiskLimits(context.Context, string) (*models.RiskLimits, error) {
	return f.limits, nil
}

func (f *fakeStore) CountOpenPositions(context.Context, string) (int, error) {
	return f.openCount, nil
}

func (f *fakeStore) CountOpenPositionsBySymbol(context.Context, string, string) (int, error) {
	return f.symbolCount, nil
}

func (f *fakeStore) OpenNotional(context.Context, string) (float64, error) {
	return f.openNotional, nil
}

func (f *fakeStore) RealizedPnLSince(context.Context, string, time.Time) (float64, error) {
	return f.realized, nil
}

type fixedBalance float64

func (b fixedBalance) PortfolioValue(context.Context, string) (float64, error) {
	return float64(b), nil
}

var evalNow = time.Date(2026, 1, 7, 15, 0, 0, 0, time.UTC)

func baseProposal() Proposal {
	return Proposal{
		UserID:     "default",
		Symbol:     "AAPL",
		Premium:    2.50,
		Multiplier: 100,
		DTE:        30,
		Side:       models.SideLong,
	}
}

func newTestManager(fs *fakeStore, pv float64) *Manager {
	return NewManager(fs, fixedBalance(pv), models.DefaultRiskLimits(""), zerolog.Nop())
}

func TestEvaluateApprovedSizing(t *testing.T) {
	m := newTestManager(&fakeStore{}, 100000)

	d, err := m.Evaluate(context.Background(), baseProposal(), evalNow)

	require.NoError(t, err)
	require.True(t, d.Approved)
	// 10% of 100k is 10000; at 250 per contract that is 40 contracts.
	assert.Equal(t, 40, d.Quantity)
	assert.Equal(t, 100000.0, d.PortfolioValue)
	assert.Nil(t, d.Violation)
}

func TestEvaluateViolations(t *testing.T) {
	tests := []struct {
		name     string
		store    *fakeStore
		mutate   func(*Proposal)
		wantCode string
	}{
		{
			"open position ceiling",
			&fakeStore{openCount: 10},
			nil,
			CodeMaxOpenPositions,
		},
		{
			"per-symbol ceiling",
			&fakeStore{symbolCount: 2},
			nil,
			CodeMaxPositionsPerSymbol,
		},
		{
			"one contract exceeds position size",
			&fakeStore{},
			func(p *Proposal) { p.Premium = 150 },
			CodePositionSize,
		},
		{
			"non-positive premium",
			&fakeStore{},
			func(p *Proposal) { p.Premium = 0 },
			CodePositionSize,
		},
		{
			"no capital-at-risk headroom",
			&fakeStore{openNotional: 49900},
			nil,
			CodeCapitalAtRisk,
		},
		{
			"daily loss halt",
			&fakeStore{realized: -3000},
			nil,
			CodeDailyLoss,
		},
		{
			"DTE below floor",
			&fakeStore{},
			func(p *Proposal) { p.DTE = 3 },
			CodeDTEBounds,
		},
		{
			"DTE above ceiling",
			&fakeStore{},
			func(p *Proposal) { p.DTE = 90 },
			CodeDTEBounds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(tt.store, 100000)
			p := baseProposal()
			if tt.mutate != nil {
				tt.mutate(&p)
			}

			d, err := m.Evaluate(context.Background(), p, evalNow)

			require.NoError(t, err, "a violation is a decision, not an error")
			require.False(t, d.Approved)
			require.NotNil(t, d.Violation)
			assert.Equal(t, tt.wantCode, d.Violation.Code)
			assert.Zero(t, d.Quantity)
		})
	}
}

func TestEvaluateRejectsSecondEntryOverCapitalCeiling(t *testing.T) {
	limits := models.DefaultRiskLimits("default")
	limits.MaxCapitalAtRiskPct = 15

	fs := &fakeStore{limits: &limits}
	m := newTestManager(fs, 100000)

	// First entry gets the full per-position size: 10000 / 250 = 40.
	d, err := m.Evaluate(context.Background(), baseProposal(), evalNow)
	require.NoError(t, err)
	require.True(t, d.Approved)
	assert.Equal(t, 40, d.Quantity)

	// With 10000 deployed the 15% ceiling leaves only 5000; an
	// identical second entry would breach it and is rejected whole,
	// never downsized to fit.
	fs.openNotional = 10000
	d, err = m.Evaluate(context.Background(), baseProposal(), evalNow)
	require.NoError(t, err)
	require.False(t, d.Approved)
	require.NotNil(t, d.Violation)
	assert.Equal(t, CodeCapitalAtRisk, d.Violation.Code)
	assert.Zero(t, d.Quantity)
}

func TestEvaluateUsesDefaultsWhenNoPersistedLimits(t *testing.T) {
	defaults := models.DefaultRiskLimits("")
	defaults.MaxOpenPositions = 1

	fs := &fakeStore{openCount: 1}
	m := NewManager(fs, fixedBalance(100000), defaults, zerolog.Nop())

	d, err := m.Evaluate(context.Background(), baseProposal(), evalNow)

	require.NoError(t, err)
	require.False(t, d.Approved)
	assert.Equal(t, CodeMaxOpenPositions, d.Violation.Code)
}

func TestEvaluateZeroLossLimitDisablesHalt(t *testing.T) {
	limits := models.DefaultRiskLimits("default")
	limits.MaxDailyLossPct = 0
	limits.MaxWeeklyLossPct = 0
	limits.MaxMonthlyLossPct = 0

	fs := &fakeStore{limits: &limits, realized: -50000}
	m := newTestManager(fs, 100000)

	d, err := m.Evaluate(context.Background(), baseProposal(), evalNow)

	require.NoError(t, err)
	assert.True(t, d.Approved, "zero limit means no loss halt")
}

func TestLockUserSerializesSameUser(t *testing.T) {
	m := newTestManager(&fakeStore{}, 100000)

	unlock := m.LockUser("default")

	acquired := make(chan struct{})
	go func() {
		u := m.LockUser("default")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first still held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after unlock")
	}
}
