// Package notify fans out engine events to notification channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"options-trader/internal/models"
)

// CycleSummary describes one completed engine cycle.
type CycleSummary struct {
	Cycle            uint64              `json:"cycle"`
	MarketStatus     models.MarketStatus `json:"market_status"`
	StartedAt        time.Time           `json:"started_at"`
	Duration         time.Duration       `json:"duration"`
	PositionsChecked int                 `json:"positions_checked"`
	ExitsExecuted    int                 `json:"exits_executed"`
	EntriesExecuted  int                 `json:"entries_executed"`
	RiskRejections   int                 `json:"risk_rejections"`
	Errors           int                 `json:"errors"`
}

// Notifier delivers engine events. Implementations must be best
// effort: a failed notification never fails the cycle.
type Notifier interface {
	CycleCompleted(ctx context.Context, summary CycleSummary)
	TradeExecuted(ctx context.Context, trade models.Trade)
}

// Terminal prints events to stdout with color.
type Terminal struct{}

var _ Notifier = Terminal{}

// CycleCompleted prints a one-line cycle summary.
func (Terminal) CycleCompleted(_ context.Context, s CycleSummary) {
	color.Cyan("cycle %d [%s] checked %d positions, %d exits, %d entries, %d rejections, %d errors (%.1fs)",
		s.Cycle, s.MarketStatus, s.PositionsChecked, s.ExitsExecuted, s.EntriesExecuted,
		s.RiskRejections, s.Errors, s.Duration.Seconds())
}

// TradeExecuted prints a fill, green for buys, red for sells.
func (Terminal) TradeExecuted(_ context.Context, t models.Trade) {
	line := fmt.Sprintf("%s %d x %s @ %.2f", t.Action, t.Quantity, t.Symbol, t.Price)
	if t.IsClose {
		line += fmt.Sprintf(" (pnl %.2f)", t.RealizedPnL)
	}
	if t.Action == models.TradeActionBuy {
		color.Green("%s", line)
	} else {
		color.Red("%s", line)
	}
}

// Webhook posts events as JSON to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

var _ Notifier = (*Webhook)(nil)

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, logger zerolog.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// CycleCompleted posts the cycle summary.
func (w *Webhook) CycleCompleted(ctx context.Context, s CycleSummary) {
	w.post(ctx, "cycle_completed", s)
}

// TradeExecuted posts the trade.
func (w *Webhook) TradeExecuted(ctx context.Context, t models.Trade) {
	w.post(ctx, "trade_executed", t)
}

func (w *Webhook) post(ctx context.Context, event string, payload interface{}) {
	body, err := json.Marshal(map[string]interface{}{
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		w.logger.Error().Err(err).Str("event", event).Msg("payload marshal failed")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error().Err(err).Str("event", event).Msg("webhook request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn().Err(err).Str("event", event).Msg("webhook delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.logger.Warn().Int("status", resp.StatusCode).Str("event", event).Msg("webhook rejected")
	}
}

// Multi fans events out to several notifiers.
type Multi []Notifier

var _ Notifier = Multi{}

// CycleCompleted delivers to every notifier.
func (m Multi) CycleCompleted(ctx context.Context, s CycleSummary) {
	for _, n := range m {
		n.CycleCompleted(ctx, s)
	}
}

// TradeExecuted delivers to every notifier.
func (m Multi) TradeExecuted(ctx context.Context, t models.Trade) {
	for _, n := range m {
		n.TradeExecuted(ctx, t)
	}
}

// Nop discards all events.
type Nop struct{}

var _ Notifier = Nop{}

func (Nop) CycleCompleted(context.Context, CycleSummary) {}
func (Nop) TradeExecuted(context.Context, models.Trade)  {}
