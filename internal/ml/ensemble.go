// Package ml implements the technical prediction ensemble: a multilayer
// perceptron and a random forest trained per call on engineered price features.
package ml

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fairvalue-engine/internal/analysis/features"
	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/logging"
	"fairvalue-engine/internal/models"
)

// Config configures the prediction ensemble.
type Config struct {
	MinRows      int             `mapstructure:"min_rows"`
	TrainSplit   float64         `mapstructure:"train_split"`
	MLPWeight    float64         `mapstructure:"mlp_weight"`
	ForestWeight float64         `mapstructure:"forest_weight"`
	Features     features.Config `mapstructure:"features"`
	MLP          MLPConfig       `mapstructure:"mlp"`
	Forest       ForestConfig    `mapstructure:"forest"`
}

// DefaultConfig returns the default ensemble configuration.
func DefaultConfig() Config {
	return Config{
		MinRows:      30,
		TrainSplit:   0.8,
		MLPWeight:    0.6,
		ForestWeight: 0.4,
		Features:     features.DefaultConfig(),
		MLP:          DefaultMLPConfig(),
		Forest:       DefaultForestConfig(),
	}
}

const confidenceEpsilon = 1e-6

// Ensemble forecasts next-day return. Models and scalers are created per call,
// so one Ensemble may serve concurrent predictions.
type Ensemble struct {
	cfg     Config
	builder *features.Builder
	logger  zerolog.Logger
}

// NewEnsemble creates a prediction ensemble.
func NewEnsemble(cfg Config, logger zerolog.Logger) *Ensemble {
	return &Ensemble{
		cfg:     cfg,
		builder: features.NewBuilder(cfg.Features),
		logger:  logging.WithComponent(logger, "ensemble"),
	}
}

// Predict trains both models on candles and forecasts the return following the
// last candle. Any data or training failure yields a neutral, degraded result;
// only context cancellation is returned as an error.
func (e *Ensemble) Predict(ctx context.Context, candles []models.Candle, opts features.Options) (result models.PredictionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn().Interface("panic", r).Msg("Model training panicked, returning neutral prediction")
			result, err = models.NeutralPrediction(fmt.Sprintf("model training failed: %v", r)), nil
		}
		if err == nil {
			logging.LogPrediction(e.logger, result.ExpectedReturn, result.Confidence, result.TrainingRows, result.Degraded)
		}
	}()

	matrix, buildErr := e.builder.Build(ctx, candles, opts)
	if buildErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.PredictionResult{}, ctxErr
		}
		return models.NeutralPrediction(buildErr.Error()), nil
	}

	targets := features.Targets(candles)
	x := matrix.Rows[:len(targets)]
	minRows := e.cfg.MinRows
	if minRows < 2 {
		minRows = 2
	}
	if len(x) < minRows {
		return models.NeutralPrediction(fmt.Sprintf("insufficient history: %d usable rows, need %d", len(x), minRows)), nil
	}

	split := int(float64(len(x)) * e.cfg.TrainSplit)
	if split < 2 || split > len(x) {
		split = len(x)
	}
	trainX, trainY := x[:split], targets[:split]

	xScaler := FitScaler(trainX)
	yScaler := FitTargetScaler(trainY)
	scaledX := xScaler.Transform(trainX)
	scaledY := yScaler.Transform(trainY)

	mlp := NewMLP(e.cfg.MLP)
	forest := NewRandomForest(e.cfg.Forest)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(guarded("mlp", func() error { return mlp.Fit(gctx, scaledX, scaledY) }))
	g.Go(guarded("forest", func() error { return forest.Fit(gctx, scaledX, scaledY) }))
	if fitErr := g.Wait(); fitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.PredictionResult{}, ctxErr
		}
		e.logger.Warn().Err(fitErr).Msg("Model training failed, returning neutral prediction")
		return models.NeutralPrediction(fitErr.Error()), nil
	}

	if split < len(x) {
		e.logValidation(x[split:], targets[split:], xScaler, yScaler, mlp, forest)
	}

	latest := xScaler.TransformRow(matrix.Latest())
	mlpPred := yScaler.Inverse(mlp.Predict(latest))
	forestPred := yScaler.Inverse(forest.Predict(latest))
	if !finite(mlpPred) || !finite(forestPred) {
		return models.NeutralPrediction("model produced a non-finite prediction"), nil
	}

	blend := e.cfg.MLPWeight*mlpPred + e.cfg.ForestWeight*forestPred

	return models.PredictionResult{
		ExpectedReturn:   blend,
		Confidence:       Confidence(mlpPred, forestPred, blend),
		MLPPrediction:    mlpPred,
		ForestPrediction: forestPred,
		TrainingRows:     split,
		Features:         matrix.Width(),
	}, nil
}

// guarded turns a panic inside a training goroutine into ErrModelTraining.
// errgroup does not carry panics back to the caller's recover.
func guarded(model string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = apperrors.Wrapf(apperrors.ErrModelTraining, "%s panicked: %v", model, r)
			}
		}()
		return fn()
	}
}

// Confidence combines model agreement and prediction magnitude into [0, 100].
func Confidence(mlpPred, forestPred, blend float64) float64 {
	if !finite(mlpPred) || !finite(forestPred) || !finite(blend) {
		return 0
	}
	agreement := 100 * math.Exp(-math.Abs(mlpPred-forestPred)/(math.Abs(blend)+confidenceEpsilon))
	magnitude := math.Min(math.Abs(blend)*100, 100)
	return clamp(0.7*agreement+0.3*magnitude, 0, 100)
}

// logValidation reports out-of-sample error on the held-out tail.
func (e *Ensemble) logValidation(x [][]float64, y []float64, xs *StandardScaler, ys TargetScaler, mlp *MLP, forest *RandomForest) {
	var sq float64
	var hits int
	for i, row := range x {
		scaled := xs.TransformRow(row)
		pred := e.cfg.MLPWeight*ys.Inverse(mlp.Predict(scaled)) + e.cfg.ForestWeight*ys.Inverse(forest.Predict(scaled))
		sq += (pred - y[i]) * (pred - y[i])
		if (pred >= 0) == (y[i] >= 0) {
			hits++
		}
	}
	e.logger.Debug().
		Int("rows", len(x)).
		Float64("rmse", math.Sqrt(sq/float64(len(x)))).
		Float64("direction_accuracy", float64(hits)/float64(len(x))).
		Msg("Validation")
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
