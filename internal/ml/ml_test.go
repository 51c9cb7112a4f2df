package ml

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairvalue-engine/internal/analysis/features"
	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/models"
)

// noisyTrend builds n daily candles drifting upward by drift per day with seeded noise.
func noisyTrend(n int, drift, noise float64, seed int64) []models.Candle {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, n)
	price := 50.0
	for i := range candles {
		price *= 1 + drift + noise*rng.NormFloat64()
		candles[i] = models.Candle{
			Timestamp: start.AddDate(0, 0, i),
			Open:      price * 0.995,
			High:      price * (1.01 + 0.005*rng.Float64()),
			Low:       price * (0.99 - 0.005*rng.Float64()),
			Close:     price,
			Volume:    int64(100000 + rng.Intn(50000)),
		}
	}
	return candles
}

func TestProperty_ConfidenceWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("confidence is within [0, 100] for any finite predictions", prop.ForAll(
		func(mlp, forest float64) bool {
			c := Confidence(mlp, forest, 0.6*mlp+0.4*forest)
			return c >= 0 && c <= 100
		},
		gen.Float64Range(-5, 5),
		gen.Float64Range(-5, 5),
	))

	properties.TestingRun(t)
}

func TestConfidenceAgreement(t *testing.T) {
	assert.InDelta(t, 0.7*100+0.3*2, Confidence(0.02, 0.02, 0.02), 1e-9)
	assert.Equal(t, 70.0, Confidence(0, 0, 0))
	assert.Equal(t, 0.0, Confidence(math.NaN(), 0, 0))
	assert.Less(t, Confidence(0.05, -0.05, 0.01), Confidence(0.01, 0.01, 0.01))
}

func TestScalerHandlesConstantColumns(t *testing.T) {
	rows := [][]float64{{1, 5}, {3, 5}, {5, 5}}
	s := FitScaler(rows)

	assert.Equal(t, []float64{3, 5}, s.Mean)
	assert.Equal(t, 1.0, s.Scale[1])
	scaled := s.Transform(rows)
	assert.InDelta(t, 0, scaled[1][0], 1e-12)
	assert.Equal(t, 0.0, scaled[2][1])

	ys := FitTargetScaler([]float64{2, 2, 2})
	assert.Equal(t, 1.0, ys.Scale)
	assert.Equal(t, 2.0, ys.Inverse(0))
}

func TestForestLearnsStep(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	x := make([][]float64, 200)
	y := make([]float64, 200)
	for i := range x {
		v := rng.Float64()*20 - 10
		x[i] = []float64{v}
		if v > 0 {
			y[i] = 1
		} else {
			y[i] = -1
		}
	}

	forest := NewRandomForest(DefaultForestConfig())
	require.NoError(t, forest.Fit(context.Background(), x, y))

	assert.InDelta(t, 1, forest.Predict([]float64{5}), 0.05)
	assert.InDelta(t, -1, forest.Predict([]float64{-5}), 0.05)
}

func TestForestIsReproducible(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	x := make([][]float64, 80)
	y := make([]float64, 80)
	for i := range x {
		x[i] = []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		y[i] = x[i][0] - 0.5*x[i][2] + 0.1*rng.NormFloat64()
	}

	a := NewRandomForest(DefaultForestConfig())
	b := NewRandomForest(DefaultForestConfig())
	require.NoError(t, a.Fit(context.Background(), x, y))
	require.NoError(t, b.Fit(context.Background(), x, y))

	probe := []float64{0.3, -1, 0.2, 0.7}
	assert.Equal(t, a.Predict(probe), b.Predict(probe))
}

func TestMLPLearnsLinearTarget(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	x := make([][]float64, 200)
	y := make([]float64, 200)
	for i := range x {
		x[i] = []float64{rng.NormFloat64(), rng.NormFloat64()}
		y[i] = 0.8*x[i][0] - 0.4*x[i][1]
	}

	cfg := DefaultMLPConfig()
	cfg.LearningRate = 0.01
	mlp := NewMLP(cfg)
	require.NoError(t, mlp.Fit(context.Background(), x, y))

	var sq float64
	for i, row := range x {
		d := mlp.Predict(row) - y[i]
		sq += d * d
	}
	assert.Less(t, sq/float64(len(x)), 0.1)
}

func TestFitRejectsMismatchedInput(t *testing.T) {
	err := NewMLP(DefaultMLPConfig()).Fit(context.Background(), [][]float64{{1}}, nil)
	assert.ErrorIs(t, err, apperrors.ErrModelTraining)

	err = NewRandomForest(DefaultForestConfig()).Fit(context.Background(), nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrModelTraining)
}

func TestForestPanicBecomesTrainingError(t *testing.T) {
	// Every row but the first is missing its only feature column.
	x := make([][]float64, 20)
	y := make([]float64, 20)
	x[0] = []float64{1}
	for i := 1; i < len(x); i++ {
		x[i] = []float64{}
		y[i] = float64(i)
	}

	var err error
	require.NotPanics(t, func() {
		err = NewRandomForest(DefaultForestConfig()).Fit(context.Background(), x, y)
	})
	assert.ErrorIs(t, err, apperrors.ErrModelTraining)
}

func TestGuardedRecoversPanics(t *testing.T) {
	err := guarded("mlp", func() error { panic("index out of range") })()
	assert.ErrorIs(t, err, apperrors.ErrModelTraining)
	assert.Contains(t, err.Error(), "mlp panicked")

	assert.NoError(t, guarded("mlp", func() error { return nil })())
}

func TestEnsembleNeutralOnShortHistory(t *testing.T) {
	e := NewEnsemble(DefaultConfig(), zerolog.Nop())

	for _, n := range []int{1, 2, 20, 30} {
		result, err := e.Predict(context.Background(), noisyTrend(n, 0.001, 0.01, 1), features.Options{})
		require.NoError(t, err)
		assert.True(t, result.Degraded, "n=%d", n)
		assert.Equal(t, 0.0, result.ExpectedReturn)
		assert.Equal(t, 0.0, result.Confidence)
	}
}

func TestEnsemblePredictsOnTrend(t *testing.T) {
	e := NewEnsemble(DefaultConfig(), zerolog.Nop())
	candles := noisyTrend(250, 0.002, 0.01, 5)

	result, err := e.Predict(context.Background(), candles, features.Options{})
	require.NoError(t, err)

	assert.False(t, result.Degraded, result.Reason)
	assert.Equal(t, int(float64(len(candles)-1)*0.8), result.TrainingRows)
	assert.Positive(t, result.Features)
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 100.0)
	assert.InDelta(t, 0.6*result.MLPPrediction+0.4*result.ForestPrediction, result.ExpectedReturn, 1e-12)

	again, err := e.Predict(context.Background(), candles, features.Options{})
	require.NoError(t, err)
	assert.Equal(t, result, again)
}

func TestEnsembleZeroVarianceSeries(t *testing.T) {
	candles := make([]models.Candle, 120)
	for i := range candles {
		candles[i] = models.Candle{Open: 10, High: 10, Low: 10, Close: 10, Volume: 1000}
	}

	result, err := NewEnsemble(DefaultConfig(), zerolog.Nop()).Predict(context.Background(), candles, features.Options{})
	require.NoError(t, err)

	assert.False(t, math.IsNaN(result.ExpectedReturn))
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 100.0)
}

func TestEnsembleHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEnsemble(DefaultConfig(), zerolog.Nop()).Predict(ctx, noisyTrend(100, 0.001, 0.01, 2), features.Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
