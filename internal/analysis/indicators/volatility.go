package indicators

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"fairvalue-engine/internal/models"
)

// Volatility is the rolling population standard deviation of daily returns.
type Volatility struct {
	period int
}

// NewVolatility creates a new rolling volatility indicator.
func NewVolatility(period int) *Volatility {
	return &Volatility{period: period}
}

func (v *Volatility) Name() string {
	return fmt.Sprintf("vol_%d", v.period)
}

func (v *Volatility) Period() int {
	return v.period
}

func (v *Volatility) Calculate(candles []models.Candle) ([]float64, error) {
	if err := checkWindow(v.period, len(candles), 1); err != nil {
		return nil, err
	}

	returns := models.DailyReturns(candles)
	std := talib.StdDev(returns, v.period, 1)

	// std[j] covers returns ending at candle j+1
	result := make([]float64, len(candles))
	result[0] = math.NaN()
	for j := range std {
		result[j+1] = std[j]
	}
	return nanPrefix(result, v.period), nil
}

// Channel is the rolling high/low channel relative to the close.
// Values are "upper" = highest high / close - 1 and "lower" = lowest low / close - 1.
type Channel struct {
	period int
}

// NewChannel creates a new price channel indicator.
func NewChannel(period int) *Channel {
	return &Channel{period: period}
}

func (c *Channel) Name() string {
	return fmt.Sprintf("channel_%d", c.period)
}

func (c *Channel) Period() int {
	return c.period
}

func (c *Channel) Calculate(candles []models.Candle) (map[string][]float64, error) {
	if err := checkWindow(c.period, len(candles), 0); err != nil {
		return nil, err
	}

	highs := talib.Max(highPrices(candles), c.period)
	lows := talib.Min(lowPrices(candles), c.period)

	upper := make([]float64, len(candles))
	lower := make([]float64, len(candles))
	for i, candle := range candles {
		upper[i] = ratioMinusOne(highs[i], candle.Close)
		lower[i] = ratioMinusOne(lows[i], candle.Close)
	}

	return map[string][]float64{
		"upper": nanPrefix(upper, c.period-1),
		"lower": nanPrefix(lower, c.period-1),
	}, nil
}
