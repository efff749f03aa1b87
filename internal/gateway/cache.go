package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "options-trader/internal/errors"
	"options-trader/internal/models"
	"options-trader/pkg/utils"
)

// CachedGateway decorates a Gateway with rate limiting, per-call
// timeouts, read retries and a last-known-value cache. Read calls that
// still fail after retrying are served from cache where a stale value
// is tolerable; order placement is never cached and never retried.
type CachedGateway struct {
	inner   Gateway
	limiter *rate.Limiter
	timeout time.Duration
	retry   utils.RetryConfig
	logger  zerolog.Logger

	mu      sync.RWMutex
	quotes  map[string]*models.Quote
	history map[string][]models.Candle
	chains  map[string]*models.OptionChain
}

var _ Gateway = (*CachedGateway)(nil)

// NewCachedGateway wraps inner with a limiter of rps requests per
// second and the given per-call timeout.
func NewCachedGateway(inner Gateway, rps float64, timeout time.Duration, logger zerolog.Logger) *CachedGateway {
	if rps <= 0 {
		rps = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CachedGateway{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		timeout: timeout,
		retry:   utils.DefaultRetryConfig(),
		logger:  logger.With().Str("component", "gateway_cache").Logger(),
		quotes:  map[string]*models.Quote{},
		history: map[string][]models.Candle{},
		chains:  map[string]*models.OptionChain{},
	}
}

// GetQuote fetches a fresh quote, falling back to the last cached
// quote when the fetch fails. A cache hit after a failure returns the
// stale quote together with ErrStaleData so callers can flag it.
func (c *CachedGateway) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	q, err := c.fetchQuote(ctx, symbol)
	if err == nil {
		c.mu.Lock()
		c.quotes[symbol] = q
		c.mu.Unlock()
		return q, nil
	}

	c.mu.RLock()
	cached := c.quotes[symbol]
	c.mu.RUnlock()
	if cached == nil {
		return nil, err
	}
	c.logger.Warn().Err(err).Str("symbol", symbol).Msg("serving stale quote")
	return cached, apperrors.ErrStaleData
}

// QuoteWithFallback is GetQuote with an explicit freshness flag:
// fresh is false when the returned quote came from cache.
func (c *CachedGateway) QuoteWithFallback(ctx context.Context, symbol string) (*models.Quote, bool, error) {
	q, err := c.GetQuote(ctx, symbol)
	if err == nil {
		return q, true, nil
	}
	if q != nil && apperrors.Is(err, apperrors.ErrStaleData) {
		return q, false, nil
	}
	return nil, false, err
}

func (c *CachedGateway) fetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return utils.RetryWithResult(ctx, c.retry, func() (*models.Quote, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.inner.GetQuote(callCtx, symbol)
	})
}

// GetHistory fetches candle history with a stale-cache fallback.
func (c *CachedGateway) GetHistory(ctx context.Context, symbol string, lookbackDays int) ([]models.Candle, error) {
	candles, err := c.fetchHistory(ctx, symbol, lookbackDays)
	if err == nil {
		c.mu.Lock()
		c.history[symbol] = candles
		c.mu.Unlock()
		return candles, nil
	}

	c.mu.RLock()
	cached := c.history[symbol]
	c.mu.RUnlock()
	if len(cached) == 0 {
		return nil, err
	}
	c.logger.Warn().Err(err).Str("symbol", symbol).Msg("serving stale history")
	return cached, apperrors.ErrStaleData
}

func (c *CachedGateway) fetchHistory(ctx context.Context, symbol string, lookbackDays int) ([]models.Candle, error) {
	return utils.RetryWithResult(ctx, c.retry, func() ([]models.Candle, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.inner.GetHistory(callCtx, symbol, lookbackDays)
	})
}

// GetChain fetches an option chain with a stale-cache fallback keyed
// by underlying.
func (c *CachedGateway) GetChain(ctx context.Context, symbol string, expiration time.Time) (*models.OptionChain, error) {
	chain, err := c.fetchChain(ctx, symbol, expiration)
	if err == nil {
		c.mu.Lock()
		c.chains[symbol] = chain
		c.mu.Unlock()
		return chain, nil
	}

	c.mu.RLock()
	cached := c.chains[symbol]
	c.mu.RUnlock()
	if cached == nil {
		return nil, err
	}
	c.logger.Warn().Err(err).Str("symbol", symbol).Msg("serving stale chain")
	return cached, apperrors.ErrStaleData
}

func (c *CachedGateway) fetchChain(ctx context.Context, symbol string, expiration time.Time) (*models.OptionChain, error) {
	return utils.RetryWithResult(ctx, c.retry, func() (*models.OptionChain, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.inner.GetChain(callCtx, symbol, expiration)
	})
}

// ContractWithFallback returns the current snapshot of one contract
// from its underlying's chain, with an explicit freshness flag: fresh
// is false when the chain came from cache. Greeks and IV ride along
// with the quote, so position refreshes see the whole snapshot.
func (c *CachedGateway) ContractWithFallback(ctx context.Context, underlying, occSymbol string, expiration time.Time) (*models.OptionContract, bool, error) {
	chain, err := c.GetChain(ctx, underlying, expiration)
	if err != nil && !apperrors.Is(err, apperrors.ErrStaleData) {
		return nil, false, err
	}

	for i := range chain.Contracts {
		if chain.Contracts[i].Symbol == occSymbol {
			contract := chain.Contracts[i]
			return &contract, err == nil, nil
		}
	}
	return nil, false, apperrors.NewGatewayError("contract_snapshot", occSymbol, apperrors.ErrSymbolNotFound)
}

// GetAccountEquity passes through with rate limiting, no caching.
func (c *CachedGateway) GetAccountEquity(ctx context.Context) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.inner.GetAccountEquity(ctx)
}

// PlaceOrder passes through with a timeout. A failed placement is a
// failed operation; it is never served from cache or retried.
func (c *CachedGateway) PlaceOrder(ctx context.Context, order Order) (*Fill, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.inner.PlaceOrder(ctx, order)
}
