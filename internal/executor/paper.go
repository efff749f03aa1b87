package executor

import (
	"context"
	"sync"

	"options-trader/internal/gateway"
	"options-trader/internal/store"
)

// PaperAccount tracks simulated cash balances per user. Balances move
// only on simulated fills; portfolio value adds the entry notional of
// open positions so risk sizing sees deployed capital too.
type PaperAccount struct {
	store   store.DataStore
	initial float64

	mu       sync.RWMutex
	balances map[string]float64
}

// NewPaperAccount creates a paper account seeded with an initial cash
// balance per user.
func NewPaperAccount(st store.DataStore, initialBalance float64) *PaperAccount {
	if initialBalance <= 0 {
		initialBalance = 100000
	}
	return &PaperAccount{
		store:    st,
		initial:  initialBalance,
		balances: make(map[string]float64),
	}
}

// Balance returns the user's current simulated cash.
func (a *PaperAccount) Balance(userID string) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if b, ok := a.balances[userID]; ok {
		return b
	}
	return a.initial
}

// Apply moves the user's cash by delta: negative debits, positive credits.
func (a *PaperAccount) Apply(userID string, delta float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.balances[userID]; !ok {
		a.balances[userID] = a.initial
	}
	a.balances[userID] += delta
}

// Reset restores the user's cash to the initial balance.
func (a *PaperAccount) Reset(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[userID] = a.initial
}

// PortfolioValue is cash plus the entry notional of open positions.
func (a *PaperAccount) PortfolioValue(ctx context.Context, userID string) (float64, error) {
	notional, err := a.store.OpenNotional(ctx, userID)
	if err != nil {
		return 0, err
	}
	return a.Balance(userID) + notional, nil
}

// LiveBalance reports portfolio value from broker account equity.
// Live mode runs a single brokerage account, so the user ID is unused.
type LiveBalance struct {
	gw gateway.Gateway
}

// NewLiveBalance creates a broker-backed balance source.
func NewLiveBalance(gw gateway.Gateway) LiveBalance {
	return LiveBalance{gw: gw}
}

// PortfolioValue returns the broker account equity.
func (b LiveBalance) PortfolioValue(ctx context.Context, _ string) (float64, error) {
	return b.gw.GetAccountEquity(ctx)
}
