// Package cli provides the command-line interface for the trading engine.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-trader/internal/audit"
	"options-trader/internal/config"
	"options-trader/internal/engine"
	"options-trader/internal/executor"
	"options-trader/internal/gateway"
	"options-trader/internal/logging"
	"options-trader/internal/models"
	"options-trader/internal/monitor"
	"options-trader/internal/notify"
	"options-trader/internal/risk"
	"options-trader/internal/scanner"
	"options-trader/internal/signal"
	"options-trader/internal/store"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	dataStore, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logger.Warn().Err(err).Msg("store init failed, some commands will be unavailable")
	} else {
		app.Store = dataStore
	}

	rootCmd := &cobra.Command{
		Use:   "optrader",
		Short: "Automated options trading engine",
		Long: `optrader runs rule-based options automations against US markets.

Automations pair a technical signal gate with option chain scoring,
risk limits and exit monitoring. Paper mode simulates fills; live mode
routes orders to Alpaca.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/options-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	addEngineCommands(rootCmd, app)
	addPositionCommands(rootCmd, app)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("optrader v%s\n", Version)
			}
		},
	}
}

// buildEngine wires the full component graph. Called only by commands
// that actually run cycles, so read-only commands work without broker
// credentials.
func (app *App) buildEngine() (*engine.Engine, error) {
	if app.Store == nil {
		return nil, fmt.Errorf("data store is unavailable")
	}
	cfg := app.Config

	alpaca := gateway.NewAlpacaGateway(app.Logger)
	market := gateway.NewCachedGateway(alpaca, cfg.Gateway.RequestsPerSecond, cfg.Gateway.Timeout, app.Logger)

	sink := audit.NewStoreSink(app.Store, app.Logger)

	var paper *executor.PaperAccount
	var balances risk.BalanceSource
	mode := models.TradingMode(cfg.Trading.Mode)
	if cfg.IsPaperMode() {
		paper = executor.NewPaperAccount(app.Store, cfg.Trading.InitialPaperBalance)
		balances = paper
	} else {
		balances = executor.NewLiveBalance(market)
	}

	defaultLimits := models.DefaultRiskLimits("")
	defaultLimits.MaxPositionSizePct = cfg.Risk.MaxPositionSizePct
	defaultLimits.MaxCapitalAtRiskPct = cfg.Risk.MaxCapitalAtRiskPct
	defaultLimits.MaxOpenPositions = cfg.Risk.MaxOpenPositions
	defaultLimits.MaxPositionsPerSymbol = cfg.Risk.MaxPositionsPerSymbol
	defaultLimits.MaxDailyLossPct = cfg.Risk.MaxDailyLossPct
	defaultLimits.MaxWeeklyLossPct = cfg.Risk.MaxWeeklyLossPct
	defaultLimits.MaxMonthlyLossPct = cfg.Risk.MaxMonthlyLossPct
	defaultLimits.MinDTE = cfg.Risk.MinDTE
	defaultLimits.MaxDTE = cfg.Risk.MaxDTE

	riskMgr := risk.NewManager(app.Store, balances, defaultLimits, app.Logger)
	exec := executor.NewExecutor(mode, market, app.Store, riskMgr, sink, paper,
		cfg.Trading.CommissionPerContract, app.Logger)
	mon := monitor.NewMonitor(market, app.Logger)

	var notifiers notify.Multi
	if cfg.Notifications.Terminal {
		notifiers = append(notifiers, notify.Terminal{})
	}
	if cfg.Notifications.Webhook.Enabled && cfg.Notifications.Webhook.URL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.Notifications.Webhook.URL, app.Logger))
	}

	return engine.New(engine.Config{
		OpenInterval:     cfg.Engine.OpenInterval,
		ExtendedInterval: cfg.Engine.ExtendedInterval,
		ClosedInterval:   cfg.Engine.ClosedInterval,
		Workers:          cfg.Engine.Workers,
		LookbackDays:     cfg.Engine.LookbackDays,
		IVHistoryDays:    cfg.Engine.IVHistoryDays,
	}, app.Store, market, signal.NewGenerator(), scanner.NewScorer(), mon, exec, sink, notifiers, app.Logger), nil
}
