package scoring

import (
	"math"

	"fairvalue-engine/internal/models"
)

// DefaultSmoothingAlpha is the weight given to observed importance on each adaptation.
const DefaultSmoothingAlpha = 0.3

// WeightProfile holds the blend weights per company type.
type WeightProfile struct {
	Value  models.ScoreWeights `json:"value" mapstructure:"value"`
	Growth models.ScoreWeights `json:"growth" mapstructure:"growth"`
}

// Config is the [scoring] configuration section.
type Config struct {
	Value          models.ScoreWeights `mapstructure:"value"`
	Growth         models.ScoreWeights `mapstructure:"growth"`
	SmoothingAlpha float64             `mapstructure:"smoothing_alpha"`
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() Config {
	p := DefaultWeightProfile()
	return Config{
		Value:          p.Value,
		Growth:         p.Growth,
		SmoothingAlpha: DefaultSmoothingAlpha,
	}
}

// Profile returns the configured weight profile.
func (c Config) Profile() WeightProfile {
	return WeightProfile{Value: c.Value, Growth: c.Growth}
}

// DefaultWeightProfile returns 0.6/0.2/0.2 for value companies and
// 0.5/0.3/0.2 for growth companies.
func DefaultWeightProfile() WeightProfile {
	return WeightProfile{
		Value:  models.ScoreWeights{Fundamental: 0.6, Technical: 0.2, Valuation: 0.2},
		Growth: models.ScoreWeights{Fundamental: 0.5, Technical: 0.3, Valuation: 0.2},
	}
}

// For returns the weights for a company type. Unknown types use the value weights.
func (p WeightProfile) For(companyType models.CompanyType) models.ScoreWeights {
	if companyType == models.CompanyGrowth {
		return p.Growth
	}
	return p.Value
}

// Normalized returns a copy where each weight triple sums to 1.
func (p WeightProfile) Normalized() WeightProfile {
	return WeightProfile{
		Value:  normalize(p.Value, DefaultWeightProfile().Value),
		Growth: normalize(p.Growth, DefaultWeightProfile().Growth),
	}
}

// Adapt returns a new profile moved toward the observed component importance
// by exponential smoothing, w = (1-alpha)*w + alpha*importance, then normalized.
// An importance with no positive mass leaves the profile unchanged.
func (p WeightProfile) Adapt(importance models.ScoreWeights, alpha float64) WeightProfile {
	alpha = clamp(alpha, 0, 1)
	if !valid(importance) || importance.Sum() <= 0 {
		return p.Normalized()
	}
	imp := normalize(importance, importance)
	smooth := func(w models.ScoreWeights) models.ScoreWeights {
		return models.ScoreWeights{
			Fundamental: (1-alpha)*w.Fundamental + alpha*imp.Fundamental,
			Technical:   (1-alpha)*w.Technical + alpha*imp.Technical,
			Valuation:   (1-alpha)*w.Valuation + alpha*imp.Valuation,
		}
	}
	n := p.Normalized()
	return WeightProfile{Value: smooth(n.Value), Growth: smooth(n.Growth)}.Normalized()
}

func normalize(w, fallback models.ScoreWeights) models.ScoreWeights {
	if !valid(w) {
		return fallback
	}
	sum := w.Sum()
	if sum <= 0 {
		return fallback
	}
	return models.ScoreWeights{
		Fundamental: w.Fundamental / sum,
		Technical:   w.Technical / sum,
		Valuation:   w.Valuation / sum,
	}
}

func valid(w models.ScoreWeights) bool {
	for _, v := range []float64{w.Fundamental, w.Technical, w.Valuation} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
