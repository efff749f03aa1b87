// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"options-trader/internal/models"
)

// DataStore defines the interface for engine persistence.
type DataStore interface {
	// Automations
	SaveAutomation(ctx context.Context, a *models.Automation) error
	GetAutomation(ctx context.Context, id string) (*models.Automation, error)
	GetActiveAutomations(ctx context.Context) ([]models.Automation, error)
	RecordAutomationRun(ctx context.Context, id string, at time.Time, executed bool) error

	// Risk limits
	GetRiskLimits(ctx context.Context, userID string) (*models.RiskLimits, error)
	SaveRiskLimits(ctx context.Context, limits *models.RiskLimits) error

	// Positions
	SavePosition(ctx context.Context, p *models.Position) error
	GetPosition(ctx context.Context, id string) (*models.Position, error)
	GetOpenPositions(ctx context.Context) ([]models.Position, error)
	GetOpenPositionsByUser(ctx context.Context, userID string) ([]models.Position, error)
	CountOpenPositions(ctx context.Context, userID string) (int, error)
	CountOpenPositionsBySymbol(ctx context.Context, userID, symbol string) (int, error)
	HasOpenPosition(ctx context.Context, automationID string) (bool, error)
	OpenNotional(ctx context.Context, userID string) (float64, error)

	// Trades
	SaveTrade(ctx context.Context, t *models.Trade) error
	GetTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)
	RealizedPnLSince(ctx context.Context, userID string, since time.Time) (float64, error)

	// Audit and error logs
	AppendAudit(ctx context.Context, entry *models.AuditLog) error
	AppendError(ctx context.Context, entry *models.ErrorLog) error
	RecentAudit(ctx context.Context, limit int) ([]models.AuditLog, error)

	// IV history
	SaveIVSample(ctx context.Context, sample models.IVSample) error
	GetIVHistory(ctx context.Context, symbol string, days int) ([]models.IVSample, error)

	// Lifecycle
	Close() error
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	UserID    string
	Symbol    string
	StartDate time.Time
	EndDate   time.Time
	IsClose   *bool
	IsPaper   *bool
	Limit     int
}
