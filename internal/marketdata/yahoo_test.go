package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/performance"
)

func newTestLimiter(interval time.Duration) *performance.RateLimiter {
	return performance.NewRateLimiter(interval)
}

func fakeYahoo(eq *finance.Equity, eqErr error, bars []*finance.ChartBar, barsErr error) *YahooProvider {
	y := NewYahooProvider(nil, zerolog.Nop())
	y.getEquity = func(string) (*finance.Equity, error) { return eq, eqErr }
	y.getBars = func(*chart.Params) ([]*finance.ChartBar, error) { return bars, barsErr }
	return y
}

func bar(ts int, close float64) *finance.ChartBar {
	return &finance.ChartBar{
		Open:      decimal.NewFromFloat(close - 1),
		High:      decimal.NewFromFloat(close + 1),
		Low:       decimal.NewFromFloat(close - 2),
		Close:     decimal.NewFromFloat(close),
		AdjClose:  decimal.NewFromFloat(close),
		Volume:    1000,
		Timestamp: ts,
	}
}

func TestYahooProfileAndQuote(t *testing.T) {
	eq := &finance.Equity{
		Quote:                      finance.Quote{Symbol: "ACME", RegularMarketPrice: 50},
		SharesOutstanding:          1000000000,
		TrailingAnnualDividendRate: 2,
		EpsTrailingTwelveMonths:    2.8,
	}
	y := fakeYahoo(eq, nil, nil, nil)

	profile, err := y.Profile(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, 50.0, profile.CurrentPrice)
	assert.Equal(t, 1e9, profile.SharesOutstanding)
	assert.Equal(t, 2.0, profile.DividendRate)
	assert.Equal(t, []float64{2.8}, profile.EPSHistory)

	price, err := y.Quote(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, 50.0, price)
}

func TestYahooUnknownSymbol(t *testing.T) {
	y := fakeYahoo(nil, nil, nil, nil)
	_, err := y.Quote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, apperrors.ErrSymbolNotFound)

	_, err = y.History(context.Background(), "NOPE", 30)
	assert.ErrorIs(t, err, apperrors.ErrSymbolNotFound)
}

func TestYahooErrorClassification(t *testing.T) {
	y := fakeYahoo(nil, errors.New("remote-error: 429 Too Many Requests"), nil, errors.New("connection reset by peer"))
	_, err := y.Quote(context.Background(), "ACME")
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)

	_, err = y.History(context.Background(), "ACME", 30)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestYahooHistoryConvertsBars(t *testing.T) {
	y := fakeYahoo(nil, nil, []*finance.ChartBar{bar(1700000000, 10), nil, bar(1700086400, 0), bar(1700172800, 12.5)}, nil)

	candles, err := y.History(context.Background(), "ACME", 30)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 10.0, candles[0].Close)
	assert.Equal(t, 11.0, candles[0].High)
	assert.Equal(t, int64(1000), candles[0].Volume)
	assert.Equal(t, time.Unix(1700172800, 0).UTC(), candles[1].Timestamp)
}
