package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/logging"
	"fairvalue-engine/internal/models"
	"fairvalue-engine/internal/resilience"
	"fairvalue-engine/pkg/utils"
)

// Composite merges a price source with an optional fundamentals source. Every
// upstream call runs behind a per-source circuit breaker and jittered retry.
type Composite struct {
	prices       Provider
	fundamentals Provider
	breakers     *resilience.CircuitBreakerRegistry
	retry        utils.RetryConfig
	logger       zerolog.Logger
}

// NewComposite creates a composite provider. fundamentals may be nil.
func NewComposite(prices, fundamentals Provider, cfg Config, logger zerolog.Logger) *Composite {
	breaker := cfg.Breaker
	breaker.Trips = func(err error) bool {
		return !errors.Is(err, apperrors.ErrSymbolNotFound) && !errors.Is(err, apperrors.ErrInsufficientData)
	}
	// Price-source throttling clears within the retry window. A rate-limited
	// fundamentals source is usually out of daily quota and does trip.
	priceBreaker := breaker
	priceBreaker.Trips = func(err error) bool {
		return breaker.Trips(err) && !errors.Is(err, apperrors.ErrRateLimited)
	}

	retry := cfg.Retry
	retry.RetryableErrors = []error{apperrors.ErrRateLimited, ErrTransient}

	logger = logging.WithComponent(logger, "marketdata")
	retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("Retrying upstream call")
	}

	breakers := resilience.NewCircuitBreakerRegistry(breaker, map[string]resilience.CircuitBreakerConfig{
		prices.Name(): priceBreaker,
	})

	return &Composite{
		prices:       prices,
		fundamentals: fundamentals,
		breakers:     breakers,
		retry:        retry,
		logger:       logger,
	}
}

// Name returns the composite source name.
func (c *Composite) Name() string {
	if c.fundamentals == nil {
		return c.prices.Name()
	}
	return c.fundamentals.Name() + "+" + c.prices.Name()
}

// Breakers returns the circuit breaker registry.
func (c *Composite) Breakers() *resilience.CircuitBreakerRegistry {
	return c.breakers
}

// Profile returns fundamentals from the fundamentals source with the current
// price (and any gaps) filled from the price source.
func (c *Composite) Profile(ctx context.Context, symbol string) (*models.FinancialProfile, error) {
	var fundamentals *models.FinancialProfile
	var fundErr error
	if c.fundamentals != nil {
		fundamentals, fundErr = call(ctx, c, c.fundamentals, symbol, "profile", func(ctx context.Context) (*models.FinancialProfile, error) {
			return c.fundamentals.Profile(ctx, symbol)
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if fundErr != nil {
			c.logger.Warn().Err(fundErr).Str("symbol", symbol).Msg("Fundamentals unavailable, using price source only")
		}
	}

	priced, priceErr := call(ctx, c, c.prices, symbol, "profile", func(ctx context.Context) (*models.FinancialProfile, error) {
		return c.prices.Profile(ctx, symbol)
	})

	switch {
	case fundamentals == nil && priced == nil:
		if priceErr != nil {
			return nil, priceErr
		}
		return nil, fundErr
	case fundamentals == nil:
		return priced, nil
	case priced == nil:
		c.logger.Warn().Err(priceErr).Str("symbol", symbol).Msg("Price source unavailable for profile")
		return fundamentals, nil
	}
	return merge(fundamentals, priced), nil
}

// History returns daily candles from the price source.
func (c *Composite) History(ctx context.Context, symbol string, days int) ([]models.Candle, error) {
	return call(ctx, c, c.prices, symbol, "history", func(ctx context.Context) ([]models.Candle, error) {
		return c.prices.History(ctx, symbol, days)
	})
}

// Quote returns the current price from the price source.
func (c *Composite) Quote(ctx context.Context, symbol string) (float64, error) {
	return call(ctx, c, c.prices, symbol, "quote", func(ctx context.Context) (float64, error) {
		return c.prices.Quote(ctx, symbol)
	})
}

// call runs fn through the source's breaker and the retry policy. Exhausted or
// rejected calls become UpstreamErrors; not-found and context errors pass through.
func call[T any](ctx context.Context, c *Composite, p Provider, symbol, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	cb := c.breakers.Get(p.Name())

	start := time.Now()
	v, err := utils.RetryWithResult(ctx, c.retry, func() (T, error) {
		return resilience.ExecuteWithResult(cb, ctx, fn)
	})
	logging.LogUpstreamCall(c.logger, p.Name(), op, time.Since(start), err)
	if err == nil {
		return v, nil
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return zero, err
	case errors.Is(err, apperrors.ErrSymbolNotFound), errors.Is(err, apperrors.ErrInsufficientData):
		return zero, err
	}

	attempts := 1
	var exhausted *utils.ExhaustedError
	if errors.As(err, &exhausted) {
		attempts = exhausted.Attempts
	}
	return zero, apperrors.NewUpstreamError(p.Name(), symbol, attempts, err)
}

// merge fills the fundamentals profile from the price-side snapshot.
func merge(fundamentals, priced *models.FinancialProfile) *models.FinancialProfile {
	out := *fundamentals
	out.FreeCashFlows = append([]float64(nil), fundamentals.FreeCashFlows...)
	out.EPSHistory = append([]float64(nil), fundamentals.EPSHistory...)

	if priced.CurrentPrice > 0 {
		out.CurrentPrice = priced.CurrentPrice
	}
	if out.SharesOutstanding <= 0 {
		out.SharesOutstanding = priced.SharesOutstanding
	}
	if out.DividendRate <= 0 {
		out.DividendRate = priced.DividendRate
	}
	if len(out.EPSHistory) == 0 {
		out.EPSHistory = append(out.EPSHistory, priced.EPSHistory...)
	}
	if out.Beta == 0 {
		out.Beta = priced.Beta
	}
	out.Source = fundamentals.Source + "+" + priced.Source
	return &out
}
