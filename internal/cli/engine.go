package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"options-trader/pkg/utils"
)

// addEngineCommands adds engine lifecycle commands.
func addEngineCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newCycleCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newActivityCmd(app))
}

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the engine until interrupted",
		Long: `Runs trading cycles on a market-aware cadence: every 15 minutes
during the regular session, 30 during extended hours, 60 while closed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := app.buildEngine()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			output := NewOutput(cmd)
			output.Info("engine starting in %s mode (ctrl-c to stop)", app.Config.Trading.Mode)

			if err := eng.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			output.Info("engine stopped")
			return nil
		},
	}
}

func newCycleCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run a single trading cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := app.buildEngine()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng.RunOnce(ctx)
			return nil
		},
	}
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show market session and engine configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			status := utils.GetMarketStatus()

			openCount := 0
			if app.Store != nil {
				if positions, err := app.Store.GetOpenPositions(cmd.Context()); err == nil {
					openCount = len(positions)
				}
			}

			if output.IsJSON() {
				out := map[string]interface{}{
					"market_status":  status,
					"mode":           app.Config.Trading.Mode,
					"open_positions": openCount,
				}
				if !utils.IsMarketOpen() {
					out["next_open"] = utils.NextMarketOpen(time.Now())
				}
				return output.JSON(out)
			}

			output.Printf("Market:         %s\n", status)
			if !utils.IsMarketOpen() {
				next := utils.NextMarketOpen(time.Now()).In(utils.EasternLocation)
				output.Printf("Next open:      %s\n", next.Format("Mon Jan 2 15:04 MST"))
			}
			output.Printf("Mode:           %s\n", app.Config.Trading.Mode)
			output.Printf("Open positions: %d\n", openCount)
			return nil
		},
	}
}

func newActivityCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent engine activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return errStoreUnavailable
			}
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := app.Store.RecentAudit(cmd.Context(), limit)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(entries)
			}

			for _, e := range entries {
				line := "%s  %-18s %-8s %s"
				args := []interface{}{e.Timestamp.Format("2006-01-02 15:04:05"), e.Event, e.Symbol, e.Detail}
				if e.Success {
					output.Printf(line+"\n", args...)
				} else {
					output.Warning(line, args...)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 25, "number of entries to show")
	return cmd
}
