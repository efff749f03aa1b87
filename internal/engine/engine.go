// Package engine runs the trading cycle: monitor open positions, scan
// automations for entries, execute approved trades, notify.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"options-trader/internal/audit"
	apperrors "options-trader/internal/errors"
	"options-trader/internal/executor"
	"options-trader/internal/gateway"
	"options-trader/internal/logging"
	"options-trader/internal/models"
	"options-trader/internal/monitor"
	"options-trader/internal/notify"
	"options-trader/internal/scanner"
	"options-trader/internal/signal"
	"options-trader/internal/store"
	"options-trader/internal/strategy"
	"options-trader/pkg/utils"
)

// Config holds engine cadence and concurrency settings.
type Config struct {
	OpenInterval     time.Duration // cadence during the regular session
	ExtendedInterval time.Duration // cadence during extended hours
	ClosedInterval   time.Duration // cadence while the market is closed
	Workers          int           // concurrent automation evaluations
	LookbackDays     int           // candle history window
	IVHistoryDays    int           // IV rank window
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		OpenInterval:     15 * time.Minute,
		ExtendedInterval: 30 * time.Minute,
		ClosedInterval:   60 * time.Minute,
		Workers:          4,
		LookbackDays:     90,
		IVHistoryDays:    365,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.OpenInterval <= 0 {
		c.OpenInterval = d.OpenInterval
	}
	if c.ExtendedInterval <= 0 {
		c.ExtendedInterval = d.ExtendedInterval
	}
	if c.ClosedInterval <= 0 {
		c.ClosedInterval = d.ClosedInterval
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = d.LookbackDays
	}
	if c.IVHistoryDays <= 0 {
		c.IVHistoryDays = d.IVHistoryDays
	}
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Running       bool
	CycleInFlight bool
	CycleCount    uint64
	LastCycleAt   time.Time
	NextCycleAt   time.Time
	MarketStatus  models.MarketStatus
}

// Engine owns the cycle loop. All state lives on the struct; there are
// no package-level globals, so tests can run engines side by side.
type Engine struct {
	cfg      Config
	store    store.DataStore
	market   *gateway.CachedGateway
	gen      *signal.Generator
	scorer   *scanner.Scorer
	monitor  *monitor.Monitor
	executor *executor.Executor
	sink     audit.Sink
	notifier notify.Notifier
	logger   zerolog.Logger

	// trigger carries at most one queued manual cycle request.
	trigger chan struct{}

	mu          sync.Mutex
	running     bool
	inFlight    bool
	cycleCount  uint64
	lastCycleAt time.Time
	nextCycleAt time.Time
}

// New creates an engine.
func New(cfg Config, st store.DataStore, market *gateway.CachedGateway, gen *signal.Generator, scorer *scanner.Scorer, mon *monitor.Monitor, exec *executor.Executor, sink audit.Sink, notifier notify.Notifier, logger zerolog.Logger) *Engine {
	cfg.applyDefaults()
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{
		cfg:      cfg,
		store:    st,
		market:   market,
		gen:      gen,
		scorer:   scorer,
		monitor:  mon,
		executor: exec,
		sink:     sink,
		notifier: notifier,
		logger:   logger.With().Str("component", "engine").Logger(),
		trigger:  make(chan struct{}, 1),
	}
}

// Run executes cycles until the context is canceled. The cadence
// follows the market session; a queued manual trigger runs the next
// cycle immediately.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return apperrors.ErrCycleInProgress
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.logger.Info().
		Dur("open_interval", e.cfg.OpenInterval).
		Dur("extended_interval", e.cfg.ExtendedInterval).
		Dur("closed_interval", e.cfg.ClosedInterval).
		Msg("engine started")

	// First cycle runs immediately on start.
	e.runCycle(ctx)

	for {
		interval := e.intervalFor(utils.GetMarketStatus())
		e.mu.Lock()
		e.nextCycleAt = time.Now().Add(interval)
		e.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.logger.Info().Msg("engine stopped")
			return ctx.Err()
		case <-e.trigger:
			timer.Stop()
			e.logger.Info().Msg("manual cycle trigger")
			e.runCycle(ctx)
		case <-timer.C:
			e.runCycle(ctx)
		}
	}
}

// intervalFor maps a market session to the cycle cadence.
func (e *Engine) intervalFor(status models.MarketStatus) time.Duration {
	switch status {
	case models.MarketOpen:
		return e.cfg.OpenInterval
	case models.MarketExtended:
		return e.cfg.ExtendedInterval
	default:
		return e.cfg.ClosedInterval
	}
}

// RunOnce executes a single cycle and returns. Used by the one-shot
// CLI command; the scheduler loop is untouched.
func (e *Engine) RunOnce(ctx context.Context) {
	e.runCycle(ctx)
}

// TriggerCycle requests an immediate cycle. While a cycle is running
// exactly one trigger queues behind it; further triggers are rejected.
func (e *Engine) TriggerCycle() error {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		return apperrors.ErrEngineStopped
	}

	select {
	case e.trigger <- struct{}{}:
		return nil
	default:
		return apperrors.ErrTriggerQueued
	}
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Running:       e.running,
		CycleInFlight: e.inFlight,
		CycleCount:    e.cycleCount,
		LastCycleAt:   e.lastCycleAt,
		NextCycleAt:   e.nextCycleAt,
		MarketStatus:  utils.GetMarketStatus(),
	}
}

// RecentActivity returns the newest audit entries.
func (e *Engine) RecentActivity(ctx context.Context, limit int) ([]models.AuditLog, error) {
	return e.store.RecentAudit(ctx, limit)
}

// cycleStats aggregates outcomes across the cycle's goroutines.
type cycleStats struct {
	mu               sync.Mutex
	positionsChecked int
	exitsExecuted    int
	entriesExecuted  int
	riskRejections   int
	errors           int
}

func (s *cycleStats) add(f func(*cycleStats)) {
	s.mu.Lock()
	f(s)
	s.mu.Unlock()
}

// runCycle executes one full cycle. Steps run in strict order: exits
// are evaluated before any new entry is considered.
func (e *Engine) runCycle(ctx context.Context) {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		e.logger.Warn().Msg("cycle already in flight, skipping")
		return
	}
	e.inFlight = true
	e.cycleCount++
	cycle := e.cycleCount
	e.mu.Unlock()

	started := time.Now()
	status := utils.GetMarketStatus()
	logger := logging.WithCycle(e.logger, cycle)
	logger.Info().Str("market_status", string(status)).Msg("cycle started")

	stats := &cycleStats{}
	e.monitorPositions(ctx, logger, stats, started)
	e.scanEntries(ctx, logger, stats, started)

	e.mu.Lock()
	e.inFlight = false
	e.lastCycleAt = started
	e.mu.Unlock()

	summary := notify.CycleSummary{
		Cycle:            cycle,
		MarketStatus:     status,
		StartedAt:        started,
		Duration:         time.Since(started),
		PositionsChecked: stats.positionsChecked,
		ExitsExecuted:    stats.exitsExecuted,
		EntriesExecuted:  stats.entriesExecuted,
		RiskRejections:   stats.riskRejections,
		Errors:           stats.errors,
	}
	e.notifier.CycleCompleted(ctx, summary)
	logger.Info().
		Int("positions_checked", summary.PositionsChecked).
		Int("exits", summary.ExitsExecuted).
		Int("entries", summary.EntriesExecuted).
		Int("rejections", summary.RiskRejections).
		Int("errors", summary.Errors).
		Dur("duration", summary.Duration).
		Msg("cycle finished")
}

// monitorPositions evaluates every open position against its
// automation's exit rules and executes the resulting closes.
func (e *Engine) monitorPositions(ctx context.Context, logger zerolog.Logger, stats *cycleStats, now time.Time) {
	positions, err := e.store.GetOpenPositions(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("open positions load failed")
		stats.add(func(s *cycleStats) { s.errors++ })
		return
	}

	for i := range positions {
		pos := &positions[i]
		e.withRecovery(ctx, stats, pos.AutomationID, pos.Symbol, "monitor", func() {
			e.monitorOne(ctx, logger, stats, pos, now)
		})
	}
}

func (e *Engine) monitorOne(ctx context.Context, logger zerolog.Logger, stats *cycleStats, pos *models.Position, now time.Time) {
	stats.add(func(s *cycleStats) { s.positionsChecked++ })

	auto, err := e.automationFor(ctx, pos)
	if err != nil {
		e.sink.Error(ctx, models.ErrorLog{
			AutomationID: pos.AutomationID,
			Symbol:       pos.Symbol,
			Step:         "monitor_load",
			Message:      err.Error(),
		})
		stats.add(func(s *cycleStats) { s.errors++ })
		return
	}

	decision := e.monitor.Evaluate(ctx, pos, auto, now)

	// The refresh mutates current values; persist them even on hold so
	// status surfaces show the latest marks.
	if err := e.store.SavePosition(ctx, pos); err != nil {
		logger.Error().Err(err).Str("position_id", pos.ID).Msg("position refresh save failed")
	}

	switch decision.Action {
	case monitor.Hold:
		return
	case monitor.Close, monitor.PartialClose:
		trade, err := e.executor.ClosePosition(ctx, pos, decision.Reason, decision.Quantity, now)
		if err != nil {
			stats.add(func(s *cycleStats) { s.errors++ })
			return
		}
		stats.add(func(s *cycleStats) { s.exitsExecuted++ })
		e.notifier.TradeExecuted(ctx, *trade)
	case monitor.Roll:
		e.rollPosition(ctx, logger, stats, pos, auto, now)
	}
}

// rollPosition finds a replacement contract at the next eligible
// expiration and executes the close+open pair. With no candidate the
// profit target falls back to a plain close.
func (e *Engine) rollPosition(ctx context.Context, logger zerolog.Logger, stats *cycleStats, pos *models.Position, auto *models.Automation, now time.Time) {
	strat, err := strategy.ForType(auto.Strategy)
	if err != nil {
		stats.add(func(s *cycleStats) { s.errors++ })
		return
	}

	replacement, ok := e.rollCandidate(ctx, pos, auto, strat, now)
	if !ok {
		logger.Info().Str("position_id", pos.ID).Msg("no roll candidate, closing instead")
		trade, err := e.executor.ClosePosition(ctx, pos, models.ExitProfitTarget, pos.Quantity, now)
		if err != nil {
			stats.add(func(s *cycleStats) { s.errors++ })
			return
		}
		stats.add(func(s *cycleStats) { s.exitsExecuted++ })
		e.notifier.TradeExecuted(ctx, *trade)
		return
	}

	next, err := e.executor.RollPosition(ctx, pos, auto, strat, replacement, now)
	if err != nil {
		stats.add(func(s *cycleStats) { s.errors++ })
		return
	}
	stats.add(func(s *cycleStats) { s.exitsExecuted++ })
	logger.Info().Str("new_position_id", next.ID).Msg("rolled")
}

// rollCandidate scores the chain at the roll's minimum expiration,
// requiring a later expiration than the current contract.
func (e *Engine) rollCandidate(ctx context.Context, pos *models.Position, auto *models.Automation, strat strategy.Strategy, now time.Time) (scanner.ScoredContract, bool) {
	if pos.Contract == nil || auto.Exit.Roll == nil {
		return scanner.ScoredContract{}, false
	}

	entry := auto.Entry
	if auto.Exit.Roll.MinDTE > entry.MinDTE {
		entry.MinDTE = auto.Exit.Roll.MinDTE
	}

	target := now.AddDate(0, 0, preferredDTE(entry))
	if earliest := pos.Contract.Expiration.AddDate(0, 0, 1); target.Before(earliest) {
		target = earliest
	}

	chain, err := e.market.GetChain(ctx, auto.Symbol, target)
	if err != nil && !apperrors.Is(err, apperrors.ErrStaleData) {
		return scanner.ScoredContract{}, false
	}
	if !chain.Expiration.After(pos.Contract.Expiration) {
		return scanner.ScoredContract{}, false
	}

	direction := models.DirectionNeutral
	best, ok := e.scorer.Best(*chain, strat, entry, direction, now)
	if !ok {
		return scanner.ScoredContract{}, false
	}
	return best, true
}

// automationFor loads the owning automation, or a bare exit-rule-free
// automation for manual positions so common predicates like the
// expiration buffer still apply.
func (e *Engine) automationFor(ctx context.Context, pos *models.Position) (*models.Automation, error) {
	if pos.AutomationID == "" {
		return &models.Automation{
			UserID:   pos.UserID,
			Symbol:   pos.Symbol,
			Strategy: models.StrategyCoveredCall,
		}, nil
	}
	auto, err := e.store.GetAutomation(ctx, pos.AutomationID)
	if err != nil {
		return nil, err
	}
	if auto == nil {
		return nil, fmt.Errorf("automation %s not found", pos.AutomationID)
	}
	return auto, nil
}

// scanEntries evaluates every runnable automation for a new entry,
// bounded by the worker pool.
func (e *Engine) scanEntries(ctx context.Context, logger zerolog.Logger, stats *cycleStats, now time.Time) {
	automations, err := e.store.GetActiveAutomations(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("automations load failed")
		stats.add(func(s *cycleStats) { s.errors++ })
		return
	}

	sem := make(chan struct{}, e.cfg.Workers)
	var wg sync.WaitGroup
	for i := range automations {
		auto := automations[i]
		if !auto.Runnable() {
			continue
		}

		// Skip before touching market data when the automation already
		// holds a position and multiples are not allowed.
		if !auto.AllowMultiplePositions {
			has, err := e.store.HasOpenPosition(ctx, auto.ID)
			if err != nil {
				stats.add(func(s *cycleStats) { s.errors++ })
				continue
			}
			if has {
				continue
			}
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			e.withRecovery(ctx, stats, auto.ID, auto.Symbol, "scan", func() {
				e.evaluateAutomation(ctx, logger, stats, &auto, now)
			})
		}()
	}
	wg.Wait()
}

// evaluateAutomation runs the signal -> scan -> execute pipeline for
// one automation.
func (e *Engine) evaluateAutomation(ctx context.Context, logger zerolog.Logger, stats *cycleStats, auto *models.Automation, now time.Time) {
	logger = logging.WithAutomation(logger, auto.ID, auto.Symbol)
	strat, err := strategy.ForType(auto.Strategy)
	if err != nil {
		e.sink.Error(ctx, models.ErrorLog{
			AutomationID: auto.ID, Symbol: auto.Symbol, Step: "strategy", Message: err.Error(),
		})
		stats.add(func(s *cycleStats) { s.errors++ })
		return
	}

	candles, err := e.market.GetHistory(ctx, auto.Symbol, e.cfg.LookbackDays)
	if err != nil && !apperrors.Is(err, apperrors.ErrStaleData) {
		e.sink.Error(ctx, models.ErrorLog{
			AutomationID: auto.ID, Symbol: auto.Symbol, Step: "history", Message: err.Error(),
		})
		stats.add(func(s *cycleStats) { s.errors++ })
		return
	}

	expiration := now.AddDate(0, 0, preferredDTE(auto.Entry))
	chain, err := e.market.GetChain(ctx, auto.Symbol, expiration)
	if err != nil && !apperrors.Is(err, apperrors.ErrStaleData) {
		e.sink.Error(ctx, models.ErrorLog{
			AutomationID: auto.ID, Symbol: auto.Symbol, Step: "chain", Message: err.Error(),
		})
		stats.add(func(s *cycleStats) { s.errors++ })
		return
	}

	// Record today's IV sample and rank against history.
	ivRank := -1.0
	if atmIV := chain.ATMIV(); atmIV > 0 {
		if err := e.store.SaveIVSample(ctx, models.IVSample{
			Symbol: auto.Symbol,
			Day:    utils.TradingDay(now),
			IV:     atmIV,
		}); err != nil {
			logger.Warn().Err(err).Str("symbol", auto.Symbol).Msg("iv sample save failed")
		}
		if history, err := e.store.GetIVHistory(ctx, auto.Symbol, e.cfg.IVHistoryDays); err == nil {
			ivRank = signal.IVRank(history, atmIV)
		}
	}

	sig := e.gen.Generate(auto.Symbol, candles, ivRank)
	if !strat.EvaluateEntry(sig, auto.Entry) {
		logger.Debug().
			Str("direction", string(sig.Direction)).
			Float64("confidence", sig.Confidence).
			Msg("entry gate not met")
		if err := e.store.RecordAutomationRun(ctx, auto.ID, now, false); err != nil {
			logger.Warn().Err(err).Msg("run record failed")
		}
		return
	}

	e.sink.Audit(ctx, models.AuditLog{
		UserID:       auto.UserID,
		AutomationID: auto.ID,
		Symbol:       auto.Symbol,
		Event:        models.AuditTrigger,
		Success:      true,
		Detail: fmt.Sprintf("%s signal, confidence %.2f (iv boost %.2f)",
			sig.Direction, sig.Confidence, sig.IVBoost),
	})

	best, ok := e.scorer.Best(*chain, strat, auto.Entry, sig.Direction, now)
	if !ok {
		e.sink.Audit(ctx, models.AuditLog{
			UserID:       auto.UserID,
			AutomationID: auto.ID,
			Symbol:       auto.Symbol,
			Event:        models.AuditNoOpportunity,
			Success:      true,
			Detail:       "no contract passed the hard filters",
		})
		if err := e.store.RecordAutomationRun(ctx, auto.ID, now, false); err != nil {
			logger.Warn().Err(err).Msg("run record failed")
		}
		return
	}

	pos, violation, err := e.executor.OpenPosition(ctx, auto, strat, best, now)
	if err != nil {
		stats.add(func(s *cycleStats) { s.errors++ })
		return
	}
	if violation != nil {
		stats.add(func(s *cycleStats) { s.riskRejections++ })
		return
	}

	stats.add(func(s *cycleStats) { s.entriesExecuted++ })
	e.notifier.TradeExecuted(ctx, models.Trade{
		PositionID: pos.ID,
		Symbol:     best.Contract.Symbol,
		Action:     entryAction(strat),
		Quantity:   pos.Quantity,
		Price:      pos.EntryPrice,
		IsPaper:    e.executor.IsPaper(),
		Timestamp:  now,
	})
}

// withRecovery isolates one automation's panic so it cannot take down
// the cycle or hide other automations' work.
func (e *Engine) withRecovery(ctx context.Context, stats *cycleStats, automationID, symbol, step string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			stats.add(func(s *cycleStats) { s.errors++ })
			e.sink.Error(ctx, models.ErrorLog{
				AutomationID: automationID,
				Symbol:       symbol,
				Step:         step,
				Message:      fmt.Sprintf("panic: %v", r),
			})
		}
	}()
	f()
}

func preferredDTE(entry models.EntryCriteria) int {
	if entry.PreferredDTE > 0 {
		return entry.PreferredDTE
	}
	return 30
}

func entryAction(strat strategy.Strategy) models.TradeAction {
	if strat.Side() == models.SideShort {
		return models.TradeActionSell
	}
	return models.TradeActionBuy
}
