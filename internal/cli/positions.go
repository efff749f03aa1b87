package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"options-trader/internal/store"
	"options-trader/pkg/utils"
)

var errStoreUnavailable = errors.New("data store is unavailable")

// addPositionCommands adds position and account commands.
func addPositionCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPositionsCmd(app))
	rootCmd.AddCommand(newSummaryCmd(app))
	rootCmd.AddCommand(newTradesCmd(app))
}

func newPositionsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "List open positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return errStoreUnavailable
			}
			positions, err := app.Store.GetOpenPositions(cmd.Context())
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(positions)
			}
			if len(positions) == 0 {
				output.Println("no open positions")
				return nil
			}

			output.Printf("%-22s %-6s %-5s %10s %10s %12s %s\n",
				"SYMBOL", "SIDE", "QTY", "ENTRY", "MARK", "UNREAL P/L", "OPENED")
			for i := range positions {
				p := &positions[i]
				symbol := p.Symbol
				if p.Contract != nil {
					symbol = p.Contract.Symbol
				}
				pnl := p.UnrealizedPnL()
				output.PnL(pnl, "%-22s %-6s %-5d %10.2f %10.2f %12.2f %s",
					symbol, p.Side, p.Quantity, p.EntryPrice, p.CurrentPrice, pnl,
					p.OpenedAt.Format("2006-01-02"))
			}
			return nil
		},
	}
}

func newSummaryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show realized P/L for the current day, week and month",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return errStoreUnavailable
			}
			userID, _ := cmd.Flags().GetString("user")
			now := time.Now()

			windows := []struct {
				label string
				since time.Time
			}{
				{"Today", utils.TradingDay(now)},
				{"This week", utils.WeekStart(now)},
				{"This month", utils.MonthStart(now)},
			}

			output := NewOutput(cmd)
			result := map[string]float64{}
			for _, w := range windows {
				pnl, err := app.Store.RealizedPnLSince(cmd.Context(), userID, w.since)
				if err != nil {
					return err
				}
				result[w.label] = pnl
			}
			if output.IsJSON() {
				return output.JSON(result)
			}
			for _, w := range windows {
				output.PnL(result[w.label], "%-11s %10.2f", w.label, result[w.label])
			}
			return nil
		},
	}
	cmd.Flags().String("user", "default", "user to summarize")
	return cmd
}

func newTradesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List recent trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return errStoreUnavailable
			}
			limit, _ := cmd.Flags().GetInt("limit")
			symbol, _ := cmd.Flags().GetString("symbol")
			trades, err := app.Store.GetTrades(cmd.Context(), store.TradeFilter{
				Symbol: symbol,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Println("no trades")
				return nil
			}

			output.Printf("%-20s %-5s %-5s %-22s %10s %10s\n",
				"TIME", "SIDE", "QTY", "SYMBOL", "PRICE", "PNL")
			for _, t := range trades {
				pnl := t.RealizedPnL
				output.PnL(pnl, "%-20s %-5s %-5d %-22s %10.2f %10.2f",
					t.Timestamp.Format("2006-01-02 15:04:05"), t.Action, t.Quantity,
					t.Symbol, t.Price, pnl)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 25, "number of trades to show")
	cmd.Flags().String("symbol", "", "filter by contract symbol")
	return cmd
}
