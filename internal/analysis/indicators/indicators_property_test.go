package indicators

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairvalue-engine/internal/models"
)

// candleGen generates valid candle data with realistic OHLCV values
func candleGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(models.Candle{}), map[string]gopter.Gen{
		"Timestamp": gen.TimeRange(time.Now().Add(-365*24*time.Hour), time.Hour),
		"Open":      gen.Float64Range(10.0, 500.0),
		"High":      gen.Float64Range(10.0, 500.0),
		"Low":       gen.Float64Range(10.0, 500.0),
		"Close":     gen.Float64Range(10.0, 500.0),
		"Volume":    gen.Int64Range(1000, 10000000),
	}).Map(normalizeCandle)
}

// normalizeCandle enforces Low <= min(Open, Close) <= max(Open, Close) <= High.
func normalizeCandle(c models.Candle) models.Candle {
	c.High = math.Max(c.High, math.Max(c.Open, c.Close))
	c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
	return c
}

// candleSliceGen generates a slice of valid, time-ordered candles
func candleSliceGen(minLen, maxLen int) gopter.Gen {
	return gen.SliceOfN(maxLen, candleGen()).Map(func(candles []models.Candle) []models.Candle {
		for len(candles) < minLen {
			candles = append(candles, models.Candle{Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000})
		}
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := range candles {
			candles[i].Timestamp = start.AddDate(0, 0, i)
			candles[i] = normalizeCandle(candles[i])
		}
		return candles
	})
}

func TestProperty_RSIWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("RSI values are within [0, 100]", prop.ForAll(
		func(candles []models.Candle) bool {
			rsi := NewRSI(14)
			values, err := rsi.Calculate(candles)
			if err != nil {
				return true
			}

			for _, v := range values {
				if v < 0 || v > 100 {
					return false
				}
			}
			return true
		},
		candleSliceGen(20, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_MARatioMatchesMean(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("MA ratio is mean(close)/close - 1 over the period", prop.ForAll(
		func(candles []models.Candle) bool {
			period := 10
			values, err := NewMARatio(period).Calculate(candles)
			if err != nil {
				return false
			}

			closes := closePrices(candles)
			for i := 0; i < period-1; i++ {
				if !math.IsNaN(values[i]) {
					return false
				}
			}
			for i := period - 1; i < len(values); i++ {
				expected := mean(closes[i-period+1:i+1])/closes[i] - 1
				if math.Abs(values[i]-expected) > 1e-9 {
					return false
				}
			}
			return true
		},
		candleSliceGen(15, 50),
	))

	properties.TestingRun(t)
}

func TestProperty_ChannelBracketsClose(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Channel upper >= 0 >= lower after warm-up", prop.ForAll(
		func(candles []models.Candle) bool {
			ch := NewChannel(10)
			values, err := ch.Calculate(candles)
			if err != nil {
				return false
			}
			for i := ch.Period() - 1; i < len(candles); i++ {
				if values["upper"][i] < 0 || values["lower"][i] > 0 {
					return false
				}
			}
			return true
		},
		candleSliceGen(20, 60),
	))

	properties.TestingRun(t)
}

func TestProperty_VolatilityNonNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Rolling volatility is non-negative after warm-up", prop.ForAll(
		func(candles []models.Candle) bool {
			vol := NewVolatility(5)
			values, err := vol.Calculate(candles)
			if err != nil {
				return false
			}
			for i := vol.Period(); i < len(values); i++ {
				if math.IsNaN(values[i]) || values[i] < 0 {
					return false
				}
			}
			return true
		},
		candleSliceGen(10, 40),
	))

	properties.TestingRun(t)
}

func TestTrendAndROC(t *testing.T) {
	candles := make([]models.Candle, 12)
	for i := range candles {
		price := 100 + float64(i)
		candles[i] = models.Candle{Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1000}
	}

	trend, err := NewTrend(5).Calculate(candles)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(trend[4]))
	assert.Equal(t, 1.0, trend[11])

	roc, err := NewROC(10).Calculate(candles)
	require.NoError(t, err)
	assert.InDelta(t, 110.0/100.0-1, roc[10], 1e-9)
	assert.InDelta(t, 111.0/101.0-1, roc[11], 1e-9)
}

func TestFlatSeriesRSIIsNeutral(t *testing.T) {
	candles := make([]models.Candle, 30)
	for i := range candles {
		candles[i] = models.Candle{Open: 50, High: 50, Low: 50, Close: 50, Volume: 10}
	}

	values, err := NewRSI(14).Calculate(candles)
	require.NoError(t, err)
	assert.Equal(t, 50.0, values[29])
}

func TestRSIWarmupRowsAreMissing(t *testing.T) {
	candles := make([]models.Candle, 30)
	for i := range candles {
		price := 100 - float64(i)
		candles[i] = models.Candle{Open: price, High: price, Low: price, Close: price, Volume: 10}
	}

	values, err := NewRSI(14).Calculate(candles)
	require.NoError(t, err)
	for i := 0; i < 14; i++ {
		assert.True(t, math.IsNaN(values[i]), "row %d", i)
	}
	assert.Equal(t, 0.0, values[14])
}

func TestEngineSkipsShortWindows(t *testing.T) {
	engine := NewEngine(2)
	engine.RegisterIndicator(NewMARatio(5))
	engine.RegisterIndicator(NewMARatio(50))
	engine.RegisterMultiIndicator(NewChannel(10))

	candles := make([]models.Candle, 20)
	for i := range candles {
		candles[i] = models.Candle{Open: 10, High: 11, Low: 9, Close: 10, Volume: 100}
	}

	results, err := engine.CalculateAll(context.Background(), candles)
	require.NoError(t, err)

	assert.Contains(t, results.Single, "ma_5")
	assert.Contains(t, results.Multi, "channel_10")
	assert.ErrorIs(t, results.Skipped["ma_50"], ErrInsufficientData)
	assert.Equal(t, []string{"channel_10", "ma_5", "ma_50"}, engine.Names())
}

func TestEngineHonorsCancellation(t *testing.T) {
	engine := NewEngine(1)
	engine.RegisterIndicator(NewMARatio(5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.CalculateAll(ctx, make([]models.Candle, 10))
	assert.ErrorIs(t, err, context.Canceled)
}
