// Package gateway provides market data and broker integration
// interfaces and implementations.
package gateway

import (
	"context"
	"time"

	"options-trader/internal/models"
)

// Gateway defines the engine's view of the market data / broker
// collaborator. Implementations may time out or return stale data;
// callers decide how to degrade.
type Gateway interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	GetHistory(ctx context.Context, symbol string, lookbackDays int) ([]models.Candle, error)
	GetChain(ctx context.Context, symbol string, expiration time.Time) (*models.OptionChain, error)
	GetAccountEquity(ctx context.Context) (float64, error)

	// PlaceOrder is used in live mode only. A failed placement is a
	// failed operation, never served from cache.
	PlaceOrder(ctx context.Context, order Order) (*Fill, error)
}

// Order describes an order to place with the broker.
type Order struct {
	Symbol     string // contract symbol for options, ticker for equity
	Action     models.TradeAction
	Quantity   int
	LimitPrice float64 // 0 = market
}

// Fill is the broker's confirmation of an executed order.
type Fill struct {
	OrderID   string
	Price     float64
	Quantity  int
	Timestamp time.Time
}
