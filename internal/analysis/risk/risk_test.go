package risk

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/models"
)

func candlesFromCloses(closes []float64) []models.Candle {
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return candles
}

func TestProperty_MetricsWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("metrics respect their bounds", prop.ForAll(
		func(closes []float64) bool {
			m, err := Calculate("X", candlesFromCloses(closes))
			if err != nil {
				return false
			}
			return m.Volatility >= 0 && m.Volatility <= 100 &&
				m.MaxDrawdown >= -100 && m.MaxDrawdown <= 0 &&
				m.VaR95 >= -50 && m.VaR95 <= 0 &&
				m.SharpeRatio >= -3 && m.SharpeRatio <= 3 &&
				m.AverageReturn >= -100 && m.AverageReturn <= 100
		},
		gen.SliceOfN(120, gen.Float64Range(1, 200)),
	))

	properties.TestingRun(t)
}

func TestCalculateTrendingSeries(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	closes := make([]float64, 300)
	price := 100.0
	for i := range closes {
		price *= 1 + 0.001 + 0.01*rng.NormFloat64()
		closes[i] = price
	}

	m, err := Calculate("X", candlesFromCloses(closes))
	require.NoError(t, err)

	assert.Equal(t, 252, m.Observations)
	assert.Greater(t, m.Volatility, 10.0)
	assert.Less(t, m.Volatility, 25.0)
	assert.Equal(t, Level(m.Volatility), m.RiskLevel)
	assert.Less(t, m.VaR95, 0.0)
}

func TestCalculateNeedsThirtyReturns(t *testing.T) {
	_, err := Calculate("X", candlesFromCloses(make([]float64, 30)))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)

	closes := make([]float64, 31)
	for i := range closes {
		closes[i] = 10
	}
	m, err := Calculate("X", candlesFromCloses(closes))
	require.NoError(t, err)
	assert.Zero(t, m.Volatility)
	assert.Zero(t, m.SharpeRatio)
	assert.Equal(t, models.RiskLow, m.RiskLevel)
}

func TestMaxDrawdown(t *testing.T) {
	assert.InDelta(t, -50, MaxDrawdown([]float64{100, 120, 60, 90, 130}), 1e-9)
	assert.Zero(t, MaxDrawdown([]float64{1, 2, 3}))
}

func TestLevel(t *testing.T) {
	assert.Equal(t, models.RiskHigh, Level(30.1))
	assert.Equal(t, models.RiskModerate, Level(30))
	assert.Equal(t, models.RiskModerate, Level(15.1))
	assert.Equal(t, models.RiskLow, Level(15))
	assert.False(t, math.IsNaN(clamp(math.NaN(), 0, 1)))
}
