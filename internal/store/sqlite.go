package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"options-trader/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ DataStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Automations: persisted entry/exit rule sets
	CREATE TABLE IF NOT EXISTS automations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		entry_criteria TEXT NOT NULL,
		exit_criteria TEXT NOT NULL,
		is_active INTEGER DEFAULT 1,
		is_paused INTEGER DEFAULT 0,
		allow_multiple INTEGER DEFAULT 0,
		execution_count INTEGER DEFAULT 0,
		last_run_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Per-user risk ceilings
	CREATE TABLE IF NOT EXISTS risk_limits (
		user_id TEXT PRIMARY KEY,
		max_position_size_pct REAL NOT NULL,
		max_capital_at_risk_pct REAL NOT NULL,
		max_open_positions INTEGER NOT NULL,
		max_positions_per_symbol INTEGER NOT NULL,
		max_daily_loss_pct REAL NOT NULL,
		max_weekly_loss_pct REAL NOT NULL,
		max_monthly_loss_pct REAL NOT NULL,
		min_dte INTEGER NOT NULL,
		max_dte INTEGER NOT NULL
	);

	-- Positions: open and closed
	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		automation_id TEXT,
		user_id TEXT NOT NULL,
		origin TEXT NOT NULL,
		symbol TEXT NOT NULL,
		contract TEXT,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		entry_iv REAL,
		entry_greeks TEXT,
		current_price REAL,
		current_iv REAL,
		current_greeks TEXT,
		high_water_pnl REAL DEFAULT 0,
		partial_exit_taken INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		exit_reason TEXT,
		opened_at DATETIME NOT NULL,
		closed_at DATETIME
	);

	-- Trades: immutable execution records, one row per fill
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		position_id TEXT NOT NULL,
		automation_id TEXT,
		user_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL NOT NULL,
		commission REAL DEFAULT 0,
		realized_pnl REAL DEFAULT 0,
		is_close INTEGER DEFAULT 0,
		source TEXT NOT NULL,
		is_paper INTEGER DEFAULT 0,
		timestamp DATETIME NOT NULL
	);

	-- Audit log: append-only record of engine activity
	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		automation_id TEXT,
		position_id TEXT,
		symbol TEXT,
		event TEXT NOT NULL,
		success INTEGER DEFAULT 1,
		detail TEXT,
		timestamp DATETIME NOT NULL
	);

	-- Error log: unhandled failures during cycle steps
	CREATE TABLE IF NOT EXISTS error_logs (
		id TEXT PRIMARY KEY,
		automation_id TEXT,
		symbol TEXT,
		step TEXT NOT NULL,
		message TEXT NOT NULL,
		timestamp DATETIME NOT NULL
	);

	-- IV history: one sample per symbol per trading day
	CREATE TABLE IF NOT EXISTS iv_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		day DATE NOT NULL,
		iv REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, day)
	);

	-- Create indexes for performance
	CREATE INDEX IF NOT EXISTS idx_automations_user ON automations(user_id);
	CREATE INDEX IF NOT EXISTS idx_automations_active ON automations(is_active);
	CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
	CREATE INDEX IF NOT EXISTS idx_positions_user ON positions(user_id);
	CREATE INDEX IF NOT EXISTS idx_positions_automation ON positions(automation_id);
	CREATE INDEX IF NOT EXISTS idx_trades_user_time ON trades(user_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_trades_position ON trades(position_id);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_errors_timestamp ON error_logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_iv_symbol_day ON iv_history(symbol, day);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Automation Methods
// ============================================================================

// SaveAutomation inserts or replaces an automation.
func (s *SQLiteStore) SaveAutomation(ctx context.Context, a *models.Automation) error {
	entry, _ := json.Marshal(a.Entry)
	exit, _ := json.Marshal(a.Exit)

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO automations (id, user_id, name, symbol, strategy, entry_criteria, exit_criteria, is_active, is_paused, allow_multiple, execution_count, last_run_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.UserID, a.Name, a.Symbol, a.Strategy, string(entry), string(exit),
		boolToInt(a.IsActive), boolToInt(a.IsPaused), boolToInt(a.AllowMultiplePositions),
		a.ExecutionCount, nullableTime(a.LastRunAt), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save automation: %w", err)
	}
	return nil
}

const automationColumns = `id, user_id, name, symbol, strategy, entry_criteria, exit_criteria, is_active, is_paused, allow_multiple, execution_count, last_run_at, created_at`

// GetAutomation retrieves an automation by ID.
func (s *SQLiteStore) GetAutomation(ctx context.Context, id string) (*models.Automation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+automationColumns+` FROM automations WHERE id = ?`, id)
	a, err := scanAutomation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get automation: %w", err)
	}
	return a, nil
}

// GetActiveAutomations retrieves all active automations.
func (s *SQLiteStore) GetActiveAutomations(ctx context.Context) ([]models.Automation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+automationColumns+` FROM automations WHERE is_active = 1 ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}
	defer rows.Close()

	var automations []models.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}
		automations = append(automations, *a)
	}
	return automations, rows.Err()
}

// RecordAutomationRun updates the run timestamp, incrementing the
// execution counter only when a trade was executed.
func (s *SQLiteStore) RecordAutomationRun(ctx context.Context, id string, at time.Time, executed bool) error {
	inc := 0
	if executed {
		inc = 1
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE automations SET last_run_at = ?, execution_count = execution_count + ? WHERE id = ?
	`, at, inc, id)
	if err != nil {
		return fmt.Errorf("failed to record automation run: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("automation not found: %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAutomation(row rowScanner) (*models.Automation, error) {
	var a models.Automation
	var entryJSON, exitJSON string
	var isActive, isPaused, allowMultiple int
	var lastRun sql.NullTime

	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Symbol, &a.Strategy, &entryJSON, &exitJSON,
		&isActive, &isPaused, &allowMultiple, &a.ExecutionCount, &lastRun, &a.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(entryJSON), &a.Entry); err != nil {
		return nil, fmt.Errorf("bad entry criteria for %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(exitJSON), &a.Exit); err != nil {
		return nil, fmt.Errorf("bad exit criteria for %s: %w", a.ID, err)
	}
	a.IsActive = isActive == 1
	a.IsPaused = isPaused == 1
	a.AllowMultiplePositions = allowMultiple == 1
	if lastRun.Valid {
		a.LastRunAt = lastRun.Time
	}
	return &a, nil
}

// ============================================================================
// Risk Limits Methods
// ============================================================================

// GetRiskLimits retrieves risk limits for a user, or nil when none are
// persisted.
func (s *SQLiteStore) GetRiskLimits(ctx context.Context, userID string) (*models.RiskLimits, error) {
	var l models.RiskLimits
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, max_position_size_pct, max_capital_at_risk_pct, max_open_positions, max_positions_per_symbol, max_daily_loss_pct, max_weekly_loss_pct, max_monthly_loss_pct, min_dte, max_dte
		FROM risk_limits WHERE user_id = ?
	`, userID).Scan(&l.UserID, &l.MaxPositionSizePct, &l.MaxCapitalAtRiskPct, &l.MaxOpenPositions,
		&l.MaxPositionsPerSymbol, &l.MaxDailyLossPct, &l.MaxWeeklyLossPct, &l.MaxMonthlyLossPct,
		&l.MinDTE, &l.MaxDTE)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get risk limits: %w", err)
	}
	return &l, nil
}

// SaveRiskLimits inserts or replaces a user's risk limits.
func (s *SQLiteStore) SaveRiskLimits(ctx context.Context, l *models.RiskLimits) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO risk_limits (user_id, max_position_size_pct, max_capital_at_risk_pct, max_open_positions, max_positions_per_symbol, max_daily_loss_pct, max_weekly_loss_pct, max_monthly_loss_pct, min_dte, max_dte)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.UserID, l.MaxPositionSizePct, l.MaxCapitalAtRiskPct, l.MaxOpenPositions,
		l.MaxPositionsPerSymbol, l.MaxDailyLossPct, l.MaxWeeklyLossPct, l.MaxMonthlyLossPct,
		l.MinDTE, l.MaxDTE)
	if err != nil {
		return fmt.Errorf("failed to save risk limits: %w", err)
	}
	return nil
}

// ============================================================================
// Position Methods
// ============================================================================

const positionColumns = `id, automation_id, user_id, origin, symbol, contract, side, quantity, entry_price, entry_iv, entry_greeks, current_price, current_iv, current_greeks, high_water_pnl, partial_exit_taken, status, exit_reason, opened_at, closed_at`

// SavePosition inserts or replaces a position.
func (s *SQLiteStore) SavePosition(ctx context.Context, p *models.Position) error {
	var contractJSON interface{}
	if p.Contract != nil {
		b, _ := json.Marshal(p.Contract)
		contractJSON = string(b)
	}
	entryGreeks, _ := json.Marshal(p.EntryGreeks)
	currentGreeks, _ := json.Marshal(p.CurrentGreeks)

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO positions (`+positionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.AutomationID, p.UserID, p.Origin, p.Symbol, contractJSON, p.Side, p.Quantity,
		p.EntryPrice, p.EntryIV, string(entryGreeks), p.CurrentPrice, p.CurrentIV, string(currentGreeks),
		p.HighWaterPnL, boolToInt(p.PartialExitTaken), p.Status, string(p.ExitReason),
		p.OpenedAt, nullableTime(p.ClosedAt))
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// GetPosition retrieves a position by ID.
func (s *SQLiteStore) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return p, nil
}

// GetOpenPositions retrieves positions not yet closed, oldest first.
func (s *SQLiteStore) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	return s.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions WHERE status != ? ORDER BY opened_at ASC`, models.PositionClosed)
}

// GetOpenPositionsByUser retrieves a user's open positions.
func (s *SQLiteStore) GetOpenPositionsByUser(ctx context.Context, userID string) ([]models.Position, error) {
	return s.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions WHERE status != ? AND user_id = ? ORDER BY opened_at ASC`, models.PositionClosed, userID)
}

func (s *SQLiteStore) queryPositions(ctx context.Context, query string, args ...interface{}) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	var contractJSON sql.NullString
	var entryGreeks, currentGreeks string
	var exitReason sql.NullString
	var partialTaken int
	var closedAt sql.NullTime

	if err := row.Scan(&p.ID, &p.AutomationID, &p.UserID, &p.Origin, &p.Symbol, &contractJSON,
		&p.Side, &p.Quantity, &p.EntryPrice, &p.EntryIV, &entryGreeks, &p.CurrentPrice,
		&p.CurrentIV, &currentGreeks, &p.HighWaterPnL, &partialTaken, &p.Status, &exitReason,
		&p.OpenedAt, &closedAt); err != nil {
		return nil, err
	}

	if contractJSON.Valid && contractJSON.String != "" {
		var c models.OptionContract
		if err := json.Unmarshal([]byte(contractJSON.String), &c); err != nil {
			return nil, fmt.Errorf("bad contract for position %s: %w", p.ID, err)
		}
		p.Contract = &c
	}
	json.Unmarshal([]byte(entryGreeks), &p.EntryGreeks)
	json.Unmarshal([]byte(currentGreeks), &p.CurrentGreeks)
	p.PartialExitTaken = partialTaken == 1
	if exitReason.Valid {
		p.ExitReason = models.ExitReason(exitReason.String)
	}
	if closedAt.Valid {
		p.ClosedAt = closedAt.Time
	}
	return &p, nil
}

// CountOpenPositions counts a user's open positions.
func (s *SQLiteStore) CountOpenPositions(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM positions WHERE status != ? AND user_id = ?
	`, models.PositionClosed, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open positions: %w", err)
	}
	return count, nil
}

// CountOpenPositionsBySymbol counts a user's open positions on one underlying.
func (s *SQLiteStore) CountOpenPositionsBySymbol(ctx context.Context, userID, symbol string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM positions WHERE status != ? AND user_id = ? AND symbol = ?
	`, models.PositionClosed, userID, symbol).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count positions by symbol: %w", err)
	}
	return count, nil
}

// HasOpenPosition reports whether an automation has an open position.
func (s *SQLiteStore) HasOpenPosition(ctx context.Context, automationID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM positions WHERE status != ? AND automation_id = ?
	`, models.PositionClosed, automationID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check open position: %w", err)
	}
	return count > 0, nil
}

// OpenNotional sums the entry notional of a user's open positions.
// Options carry the 100x multiplier.
func (s *SQLiteStore) OpenNotional(ctx context.Context, userID string) (float64, error) {
	var notional sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(entry_price * quantity * CASE WHEN contract IS NULL THEN 1 ELSE 100 END)
		FROM positions WHERE status != ? AND user_id = ?
	`, models.PositionClosed, userID).Scan(&notional)
	if err != nil {
		return 0, fmt.Errorf("failed to sum open notional: %w", err)
	}
	if !notional.Valid {
		return 0, nil
	}
	return notional.Float64, nil
}

// ============================================================================
// Trade Methods
// ============================================================================

// SaveTrade appends an immutable trade record.
func (s *SQLiteStore) SaveTrade(ctx context.Context, t *models.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, position_id, automation_id, user_id, symbol, action, quantity, price, commission, realized_pnl, is_close, source, is_paper, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.PositionID, t.AutomationID, t.UserID, t.Symbol, t.Action, t.Quantity, t.Price,
		t.Commission, t.RealizedPnL, boolToInt(t.IsClose), t.Source, boolToInt(t.IsPaper), t.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// GetTrades retrieves trades matching the filter, newest first.
func (s *SQLiteStore) GetTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := `SELECT id, position_id, automation_id, user_id, symbol, action, quantity, price, commission, realized_pnl, is_close, source, is_paper, timestamp FROM trades WHERE 1=1`
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if !filter.StartDate.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.EndDate)
	}
	if filter.IsClose != nil {
		query += " AND is_close = ?"
		args = append(args, boolToInt(*filter.IsClose))
	}
	if filter.IsPaper != nil {
		query += " AND is_paper = ?"
		args = append(args, boolToInt(*filter.IsPaper))
	}

	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var isClose, isPaper int
		if err := rows.Scan(&t.ID, &t.PositionID, &t.AutomationID, &t.UserID, &t.Symbol, &t.Action,
			&t.Quantity, &t.Price, &t.Commission, &t.RealizedPnL, &isClose, &t.Source, &isPaper,
			&t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.IsClose = isClose == 1
		t.IsPaper = isPaper == 1
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// RealizedPnLSince sums closing-trade P/L for a user from a point in time.
func (s *SQLiteStore) RealizedPnLSince(ctx context.Context, userID string, since time.Time) (float64, error) {
	var pnl sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(realized_pnl) FROM trades WHERE user_id = ? AND is_close = 1 AND timestamp >= ?
	`, userID, since).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("failed to sum realized pnl: %w", err)
	}
	if !pnl.Valid {
		return 0, nil
	}
	return pnl.Float64, nil
}

// ============================================================================
// Audit and Error Log Methods
// ============================================================================

// AppendAudit appends an audit log entry.
func (s *SQLiteStore) AppendAudit(ctx context.Context, entry *models.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, automation_id, position_id, symbol, event, success, detail, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.UserID, entry.AutomationID, entry.PositionID, entry.Symbol, entry.Event,
		boolToInt(entry.Success), entry.Detail, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}

// AppendError appends an error log entry.
func (s *SQLiteStore) AppendError(ctx context.Context, entry *models.ErrorLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO error_logs (id, automation_id, symbol, step, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.AutomationID, entry.Symbol, entry.Step, entry.Message, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append error log: %w", err)
	}
	return nil
}

// RecentAudit retrieves the newest audit log entries.
func (s *SQLiteStore) RecentAudit(ctx context.Context, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, automation_id, position_id, symbol, event, success, detail, timestamp
		FROM audit_logs ORDER BY timestamp DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		var success int
		if err := rows.Scan(&e.ID, &e.UserID, &e.AutomationID, &e.PositionID, &e.Symbol, &e.Event,
			&success, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		e.Success = success == 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ============================================================================
// IV History Methods
// ============================================================================

// SaveIVSample records one IV observation per symbol per day. Repeated
// writes on the same day are ignored, keeping the first observation.
func (s *SQLiteStore) SaveIVSample(ctx context.Context, sample models.IVSample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO iv_history (symbol, day, iv) VALUES (?, ?, ?)
	`, sample.Symbol, sample.Day.Format("2006-01-02"), sample.IV)
	if err != nil {
		return fmt.Errorf("failed to save iv sample: %w", err)
	}
	return nil
}

// GetIVHistory retrieves a symbol's IV samples over the last N days,
// oldest first.
func (s *SQLiteStore) GetIVHistory(ctx context.Context, symbol string, days int) ([]models.IVSample, error) {
	since := time.Now().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, day, iv FROM iv_history WHERE symbol = ? AND day >= ? ORDER BY day ASC
	`, symbol, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query iv history: %w", err)
	}
	defer rows.Close()

	var samples []models.IVSample
	for rows.Next() {
		var s models.IVSample
		var day string
		if err := rows.Scan(&s.Symbol, &day, &s.IV); err != nil {
			return nil, fmt.Errorf("failed to scan iv sample: %w", err)
		}
		s.Day, _ = time.Parse("2006-01-02", day)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// ============================================================================
// Helpers
// ============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
