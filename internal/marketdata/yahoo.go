package marketdata

import (
	"context"
	"strings"
	"time"

	"github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/rs/zerolog"

	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/logging"
	"fairvalue-engine/internal/models"
	"fairvalue-engine/internal/performance"
)

// YahooProvider reads quotes, equity snapshots and daily bars from Yahoo Finance.
type YahooProvider struct {
	limiter *performance.RateLimiter
	logger  zerolog.Logger

	getEquity func(symbol string) (*finance.Equity, error)
	getBars   func(params *chart.Params) ([]*finance.ChartBar, error)
}

// NewYahooProvider creates a Yahoo Finance provider.
func NewYahooProvider(limiter *performance.RateLimiter, logger zerolog.Logger) *YahooProvider {
	return &YahooProvider{
		limiter:   limiter,
		logger:    logging.WithComponent(logger, "yahoo"),
		getEquity: equity.Get,
		getBars:   chartBars,
	}
}

func chartBars(params *chart.Params) ([]*finance.ChartBar, error) {
	iter := chart.Get(params)
	var bars []*finance.ChartBar
	for iter.Next() {
		bars = append(bars, iter.Bar())
	}
	return bars, iter.Err()
}

// Name returns the source name.
func (y *YahooProvider) Name() string {
	return "yahoo"
}

// Profile returns the price-side snapshot: price, shares outstanding, trailing
// dividend rate and trailing EPS.
func (y *YahooProvider) Profile(ctx context.Context, symbol string) (*models.FinancialProfile, error) {
	eq, err := y.equity(ctx, symbol)
	if err != nil {
		return nil, err
	}

	profile := &models.FinancialProfile{
		Symbol:            symbol,
		CurrentPrice:      eq.RegularMarketPrice,
		SharesOutstanding: float64(eq.SharesOutstanding),
		DividendRate:      eq.TrailingAnnualDividendRate,
		Source:            y.Name(),
		FetchedAt:         time.Now().UTC(),
	}
	if eq.EpsTrailingTwelveMonths != 0 {
		profile.EPSHistory = []float64{eq.EpsTrailingTwelveMonths}
	}
	return profile, nil
}

// Quote returns the regular market price.
func (y *YahooProvider) Quote(ctx context.Context, symbol string) (float64, error) {
	eq, err := y.equity(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if eq.RegularMarketPrice <= 0 {
		return 0, apperrors.NewDataError("quote", symbol, "no market price", apperrors.ErrInsufficientData)
	}
	return eq.RegularMarketPrice, nil
}

// History returns daily candles for the trailing number of calendar days, oldest first.
func (y *YahooProvider) History(ctx context.Context, symbol string, days int) ([]models.Candle, error) {
	if err := y.wait(ctx); err != nil {
		return nil, err
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)
	bars, err := y.getBars(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	})
	if err != nil {
		return nil, classify(symbol, err)
	}
	candles := barsToCandles(bars)
	if len(candles) == 0 {
		return nil, apperrors.NewDataError("history", symbol, "no price bars returned", apperrors.ErrSymbolNotFound)
	}
	return candles, nil
}

func (y *YahooProvider) equity(ctx context.Context, symbol string) (*finance.Equity, error) {
	if err := y.wait(ctx); err != nil {
		return nil, err
	}
	eq, err := y.getEquity(symbol)
	if err != nil {
		return nil, classify(symbol, err)
	}
	if eq == nil {
		return nil, apperrors.NewDataError("quote", symbol, "unknown symbol", apperrors.ErrSymbolNotFound)
	}
	return eq, nil
}

func (y *YahooProvider) wait(ctx context.Context) error {
	if y.limiter == nil {
		return ctx.Err()
	}
	return y.limiter.Wait(ctx)
}

// barsToCandles converts chart bars, skipping bars without a positive close.
func barsToCandles(bars []*finance.ChartBar) []models.Candle {
	candles := make([]models.Candle, 0, len(bars))
	for _, b := range bars {
		if b == nil {
			continue
		}
		c := models.Candle{
			Timestamp: time.Unix(int64(b.Timestamp), 0).UTC(),
			Open:      b.Open.InexactFloat64(),
			High:      b.High.InexactFloat64(),
			Low:       b.Low.InexactFloat64(),
			Close:     b.Close.InexactFloat64(),
			Volume:    int64(b.Volume),
		}
		if c.Close <= 0 {
			continue
		}
		candles = append(candles, c)
	}
	return candles
}

// classify maps a raw source error onto the failure taxonomy.
func classify(symbol string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "too many requests"):
		return apperrors.NewDataError("upstream", symbol, err.Error(), apperrors.ErrRateLimited)
	case strings.Contains(msg, "not found") || strings.Contains(msg, "no data"):
		return apperrors.NewDataError("upstream", symbol, err.Error(), apperrors.ErrSymbolNotFound)
	default:
		return apperrors.NewDataError("upstream", symbol, err.Error(), ErrTransient)
	}
}
