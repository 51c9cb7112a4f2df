// Package marketdata fetches financial profiles and daily price history from
// upstream sources. Production code never substitutes synthetic data.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"fairvalue-engine/internal/models"
	"fairvalue-engine/internal/performance"
	"fairvalue-engine/internal/resilience"
	"fairvalue-engine/pkg/utils"
)

// ErrTransient marks upstream failures worth retrying (network errors, 5xx).
var ErrTransient = errors.New("transient upstream failure")

// Provider is a source of fundamentals, prices and quotes.
type Provider interface {
	Name() string
	Profile(ctx context.Context, symbol string) (*models.FinancialProfile, error)
	History(ctx context.Context, symbol string, days int) ([]models.Candle, error)
	Quote(ctx context.Context, symbol string) (float64, error)
}

// Config is the [market_data] configuration section.
type Config struct {
	Throttle        time.Duration                   `mapstructure:"throttle"`
	HistoryDays     int                             `mapstructure:"history_days"`
	Timeout         time.Duration                   `mapstructure:"timeout"`
	AlphaVantageURL string                          `mapstructure:"alphavantage_url"`
	Retry           utils.RetryConfig               `mapstructure:"retry"`
	Breaker         resilience.CircuitBreakerConfig `mapstructure:"breaker"`
}

// DefaultConfig returns the default market data configuration.
func DefaultConfig() Config {
	return Config{
		Throttle:        2 * time.Second,
		HistoryDays:     365,
		Timeout:         30 * time.Second,
		AlphaVantageURL: "https://www.alphavantage.co",
		Retry:           utils.DefaultRetryConfig(),
		Breaker:         resilience.DefaultCircuitBreakerConfig(),
	}
}

// New builds the production composite: Yahoo for prices and, when an API key
// is given, Alpha Vantage for fundamentals. Each source has its own throttle.
func New(cfg Config, alphaVantageKey string, logger zerolog.Logger) *Composite {
	prices := NewYahooProvider(performance.NewRateLimiter(cfg.Throttle), logger)

	var fundamentals Provider
	if alphaVantageKey != "" {
		fundamentals = NewAlphaVantageProvider(cfg.AlphaVantageURL, alphaVantageKey, cfg.Timeout,
			performance.NewRateLimiter(cfg.Throttle), logger)
	}
	return NewComposite(prices, fundamentals, cfg, logger)
}
