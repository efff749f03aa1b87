package gateway

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "options-trader/internal/errors"
	"options-trader/internal/models"
)

// AlpacaGateway implements Gateway against the Alpaca trading and
// market data APIs. Credentials come from APCA_API_KEY_ID and
// APCA_API_SECRET_KEY, picked up by the SDK clients.
type AlpacaGateway struct {
	mdClient    *marketdata.Client
	tradeClient *alpaca.Client
	logger      zerolog.Logger
}

var _ Gateway = (*AlpacaGateway)(nil)

// NewAlpacaGateway creates a gateway backed by Alpaca.
func NewAlpacaGateway(logger zerolog.Logger) *AlpacaGateway {
	return &AlpacaGateway{
		mdClient:    marketdata.NewClient(marketdata.ClientOpts{}),
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{}),
		logger:      logger.With().Str("component", "gateway").Logger(),
	}
}

// GetQuote fetches the latest NBBO quote for a symbol.
func (g *AlpacaGateway) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q, err := g.mdClient.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	if err != nil {
		return nil, apperrors.NewGatewayError("get_quote", symbol, err)
	}
	if q == nil {
		return nil, apperrors.NewGatewayError("get_quote", symbol, apperrors.ErrSymbolNotFound)
	}
	return &models.Quote{
		Symbol:    symbol,
		Bid:       q.BidPrice,
		Ask:       q.AskPrice,
		Timestamp: q.Timestamp,
	}, nil
}

// GetHistory fetches daily candles covering the lookback window,
// oldest first.
func (g *AlpacaGateway) GetHistory(ctx context.Context, symbol string, lookbackDays int) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Calendar days overshoot trading days, so pad the window.
	start := time.Now().AddDate(0, 0, -lookbackDays*2)
	bars, err := g.mdClient.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
	})
	if err != nil {
		return nil, apperrors.NewGatewayError("get_history", symbol, err)
	}
	if len(bars) == 0 {
		return nil, apperrors.NewGatewayError("get_history", symbol, apperrors.ErrNoMarketData)
	}
	if len(bars) > lookbackDays {
		bars = bars[len(bars)-lookbackDays:]
	}

	candles := make([]models.Candle, 0, len(bars))
	for _, b := range bars {
		candles = append(candles, models.Candle{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    int64(b.Volume),
		})
	}
	return candles, nil
}

// GetChain fetches the option chain for the expiration nearest the
// requested date. Quotes, IV and greeks come from chain snapshots;
// open interest comes from the contract listing.
func (g *AlpacaGateway) GetChain(ctx context.Context, symbol string, expiration time.Time) (*models.OptionChain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshots, err := g.mdClient.GetOptionChain(symbol, marketdata.GetOptionChainRequest{})
	if err != nil {
		return nil, apperrors.NewGatewayError("get_chain", symbol, err)
	}
	if len(snapshots) == 0 {
		return nil, apperrors.NewGatewayError("get_chain", symbol, apperrors.ErrNoMarketData)
	}

	openInterest := g.openInterestBySymbol(symbol)

	byExpiry := map[time.Time][]occContract{}
	for occ := range snapshots {
		exp, right, strike, perr := ParseOCCSymbol(occ, symbol)
		if perr != nil {
			continue
		}
		byExpiry[exp] = append(byExpiry[exp], occContract{occ, exp, right, strike})
	}
	if len(byExpiry) == 0 {
		return nil, apperrors.NewGatewayError("get_chain", symbol, apperrors.ErrNoMarketData)
	}

	chosen := nearestExpiration(byExpiry, expiration)

	var underlying float64
	if trade, terr := g.mdClient.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{}); terr == nil && trade != nil {
		underlying = trade.Price
	}

	chain := &models.OptionChain{
		Underlying: symbol,
		SpotPrice:  underlying,
		Expiration: chosen,
	}
	for _, p := range byExpiry[chosen] {
		snap := snapshots[p.occ]
		c := models.OptionContract{
			Symbol:       p.occ,
			Underlying:   symbol,
			Strike:       p.strike,
			Expiration:   p.expiration,
			Right:        p.right,
			IV:           snap.ImpliedVolatility,
			OpenInterest: openInterest[p.occ],
		}
		if snap.LatestQuote != nil {
			c.Bid = snap.LatestQuote.BidPrice
			c.Ask = snap.LatestQuote.AskPrice
		}
		if snap.LatestTrade != nil {
			c.Last = snap.LatestTrade.Price
			c.Volume = int64(snap.LatestTrade.Size)
		}
		if snap.Greeks != nil {
			c.Greeks = models.Greeks{
				Delta: snap.Greeks.Delta,
				Gamma: snap.Greeks.Gamma,
				Theta: snap.Greeks.Theta,
				Vega:  snap.Greeks.Vega,
			}
		}
		chain.Contracts = append(chain.Contracts, c)
	}

	sort.Slice(chain.Contracts, func(i, j int) bool {
		return chain.Contracts[i].Strike < chain.Contracts[j].Strike
	})
	return chain, nil
}

// openInterestBySymbol fetches open interest from the contract listing.
// Best effort: a listing failure degrades to zero open interest rather
// than failing the chain fetch.
func (g *AlpacaGateway) openInterestBySymbol(symbol string) map[string]int64 {
	out := map[string]int64{}
	contracts, err := g.tradeClient.GetOptionContracts(alpaca.GetOptionContractsRequest{
		UnderlyingSymbols: symbol,
	})
	if err != nil {
		g.logger.Warn().Err(err).Str("symbol", symbol).Msg("option contract listing failed")
		return out
	}
	for _, c := range contracts {
		if c.OpenInterest == nil {
			continue
		}
		oi, _ := c.OpenInterest.Float64()
		out[c.Symbol] = int64(oi)
	}
	return out
}

// GetAccountEquity returns the account's current equity.
func (g *AlpacaGateway) GetAccountEquity(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	acct, err := g.tradeClient.GetAccount()
	if err != nil {
		return 0, apperrors.NewGatewayError("get_account", "", err)
	}
	equity, _ := acct.Equity.Float64()
	return equity, nil
}

// fillPollInterval paces order status polling after placement.
const fillPollInterval = 500 * time.Millisecond

// PlaceOrder submits the order and waits for a fill. Placement is
// attempted exactly once; only the status poll loops.
func (g *AlpacaGateway) PlaceOrder(ctx context.Context, order Order) (*Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qty := decimal.NewFromInt(int64(order.Quantity))
	req := alpaca.PlaceOrderRequest{
		Symbol:      order.Symbol,
		Qty:         &qty,
		Side:        orderSide(order.Action),
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	}
	if order.LimitPrice > 0 {
		limit := decimal.NewFromFloat(order.LimitPrice)
		req.Type = alpaca.Limit
		req.LimitPrice = &limit
	}

	placed, err := g.tradeClient.PlaceOrder(req)
	if err != nil {
		return nil, apperrors.NewGatewayError("place_order", order.Symbol, err)
	}

	for {
		if placed.Status == "filled" && placed.FilledAvgPrice != nil {
			price, _ := placed.FilledAvgPrice.Float64()
			filledQty, _ := placed.FilledQty.Float64()
			return &Fill{
				OrderID:   placed.ID,
				Price:     price,
				Quantity:  int(filledQty),
				Timestamp: time.Now(),
			}, nil
		}
		switch placed.Status {
		case "rejected", "canceled", "expired":
			return nil, apperrors.NewGatewayError("place_order", order.Symbol,
				fmt.Errorf("%w: status %s", apperrors.ErrOrderRejected, placed.Status))
		}

		select {
		case <-ctx.Done():
			// Leave no working order behind when the caller gives up.
			if cerr := g.tradeClient.CancelOrder(placed.ID); cerr != nil {
				g.logger.Error().Err(cerr).Str("order_id", placed.ID).Msg("cancel after timeout failed")
			}
			return nil, apperrors.NewGatewayError("place_order", order.Symbol, apperrors.ErrTimeout)
		case <-time.After(fillPollInterval):
		}

		placed, err = g.tradeClient.GetOrder(placed.ID)
		if err != nil {
			return nil, apperrors.NewGatewayError("place_order", order.Symbol, err)
		}
	}
}

func orderSide(action models.TradeAction) alpaca.Side {
	if action == models.TradeActionSell {
		return alpaca.Sell
	}
	return alpaca.Buy
}

// ParseOCCSymbol splits an OCC option symbol such as AAPL240621C00190000
// into its expiration, right and strike. The underlying root must match.
func ParseOCCSymbol(occ, underlying string) (time.Time, models.OptionRight, float64, error) {
	// root + YYMMDD + C|P + 8 digit strike in thousandths
	if len(occ) != len(underlying)+15 || occ[:len(underlying)] != underlying {
		return time.Time{}, "", 0, fmt.Errorf("symbol %q does not match root %q", occ, underlying)
	}
	rest := occ[len(underlying):]

	exp, err := time.Parse("060102", rest[:6])
	if err != nil {
		return time.Time{}, "", 0, fmt.Errorf("bad expiration in %q: %w", occ, err)
	}

	var right models.OptionRight
	switch rest[6] {
	case 'C':
		right = models.RightCall
	case 'P':
		right = models.RightPut
	default:
		return time.Time{}, "", 0, fmt.Errorf("bad right in %q", occ)
	}

	raw, err := strconv.ParseInt(rest[7:], 10, 64)
	if err != nil {
		return time.Time{}, "", 0, fmt.Errorf("bad strike in %q: %w", occ, err)
	}
	return exp, right, float64(raw) / 1000, nil
}

// occContract is a chain symbol with its parsed OCC fields.
type occContract struct {
	occ        string
	expiration time.Time
	right      models.OptionRight
	strike     float64
}

func nearestExpiration(byExpiry map[time.Time][]occContract, target time.Time) time.Time {
	var chosen time.Time
	var bestDiff time.Duration
	first := true
	for exp := range byExpiry {
		diff := exp.Sub(target)
		if diff < 0 {
			diff = -diff
		}
		if first || diff < bestDiff {
			chosen = exp
			bestDiff = diff
			first = false
		}
	}
	return chosen
}
