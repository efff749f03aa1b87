// Package config provides configuration management for the trading engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Engine        EngineConfig       `mapstructure:"engine"`
	Trading       TradingConfig      `mapstructure:"trading"`
	Risk          RiskConfig         `mapstructure:"risk"`
	Gateway       GatewayConfig      `mapstructure:"gateway"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	DatabasePath  string             `mapstructure:"database_path"`
}

// EngineConfig holds cycle cadence and concurrency settings.
type EngineConfig struct {
	OpenInterval     time.Duration `mapstructure:"open_interval"`
	ExtendedInterval time.Duration `mapstructure:"extended_interval"`
	ClosedInterval   time.Duration `mapstructure:"closed_interval"`
	Workers          int           `mapstructure:"workers"`
	LookbackDays     int           `mapstructure:"lookback_days"`
	IVHistoryDays    int           `mapstructure:"iv_history_days"`
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode                 string  `mapstructure:"mode"` // "live", "paper"
	InitialPaperBalance  float64 `mapstructure:"initial_paper_balance"`
	CommissionPerContract float64 `mapstructure:"commission_per_contract"`
}

// RiskConfig holds default risk limits applied to users without
// persisted limits.
type RiskConfig struct {
	MaxPositionSizePct    float64 `mapstructure:"max_position_size_pct"`
	MaxCapitalAtRiskPct   float64 `mapstructure:"max_capital_at_risk_pct"`
	MaxOpenPositions      int     `mapstructure:"max_open_positions"`
	MaxPositionsPerSymbol int     `mapstructure:"max_positions_per_symbol"`
	MaxDailyLossPct       float64 `mapstructure:"max_daily_loss_pct"`
	MaxWeeklyLossPct      float64 `mapstructure:"max_weekly_loss_pct"`
	MaxMonthlyLossPct     float64 `mapstructure:"max_monthly_loss_pct"`
	MinDTE                int     `mapstructure:"min_dte"`
	MaxDTE                int     `mapstructure:"max_dte"`
}

// GatewayConfig holds market data gateway settings. Alpaca credentials
// come from APCA_API_KEY_ID / APCA_API_SECRET_KEY in the environment.
type GatewayConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Console    bool   `mapstructure:"console"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Terminal bool          `mapstructure:"terminal"`
	Webhook  WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/options-trader"
	}
	return filepath.Join(home, ".config", "options-trader")
}

// Load loads configuration from the specified directory. An absent
// config file yields the defaults.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("database_path", filepath.Join(configDir, "trader.db"))

	v.SetDefault("engine.open_interval", 15*time.Minute)
	v.SetDefault("engine.extended_interval", 30*time.Minute)
	v.SetDefault("engine.closed_interval", 60*time.Minute)
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.lookback_days", 90)
	v.SetDefault("engine.iv_history_days", 365)

	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.initial_paper_balance", 100000.0)
	v.SetDefault("trading.commission_per_contract", 0.65)

	v.SetDefault("risk.max_position_size_pct", 10.0)
	v.SetDefault("risk.max_capital_at_risk_pct", 50.0)
	v.SetDefault("risk.max_open_positions", 10)
	v.SetDefault("risk.max_positions_per_symbol", 2)
	v.SetDefault("risk.max_daily_loss_pct", 3.0)
	v.SetDefault("risk.max_weekly_loss_pct", 7.0)
	v.SetDefault("risk.max_monthly_loss_pct", 15.0)
	v.SetDefault("risk.min_dte", 7)
	v.SetDefault("risk.max_dte", 60)

	v.SetDefault("gateway.requests_per_second", 5.0)
	v.SetDefault("gateway.timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", filepath.Join(configDir, "logs", "engine.log"))
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.console", true)

	v.SetDefault("notifications.terminal", true)
	v.SetDefault("notifications.webhook.enabled", false)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("TRADER_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("TRADER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return fmt.Errorf("invalid trading mode: %s (must be 'live' or 'paper')", c.Trading.Mode)
	}
	if c.Trading.InitialPaperBalance <= 0 {
		return fmt.Errorf("initial_paper_balance must be positive")
	}
	if c.Risk.MaxPositionSizePct <= 0 || c.Risk.MaxPositionSizePct > 100 {
		return fmt.Errorf("max_position_size_pct must be in (0, 100]")
	}
	if c.Risk.MaxCapitalAtRiskPct <= 0 || c.Risk.MaxCapitalAtRiskPct > 100 {
		return fmt.Errorf("max_capital_at_risk_pct must be in (0, 100]")
	}
	if c.Risk.MinDTE < 0 || (c.Risk.MaxDTE > 0 && c.Risk.MinDTE > c.Risk.MaxDTE) {
		return fmt.Errorf("dte bounds invalid: min %d, max %d", c.Risk.MinDTE, c.Risk.MaxDTE)
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine workers must be at least 1")
	}
	return nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}
