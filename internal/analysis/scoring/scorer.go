// Package scoring merges the fundamental, technical and valuation signals into
// one bounded score and a volatility-aware recommendation.
package scoring

import (
	"fmt"
	"math"
	"slices"

	"github.com/rs/zerolog"

	"fairvalue-engine/internal/models"
)

// highVolatility is the annualized volatility (percent) above which the
// recommendation thresholds are raised.
const highVolatility = 30.0

// Inputs are the upstream signals for one symbol.
type Inputs struct {
	Fundamental models.FundamentalScore
	Prediction  models.PredictionResult
	Consensus   models.ConsensusValuation
	Risk        models.RiskMetrics
}

// Scorer computes IntegratedScores from a fixed weight profile.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	profile WeightProfile
	logger  zerolog.Logger
}

// NewScorer creates a scorer bound to the given weight profile.
func NewScorer(profile WeightProfile, logger zerolog.Logger) *Scorer {
	return &Scorer{
		profile: profile.Normalized(),
		logger:  logger,
	}
}

// Profile returns the weight profile the scorer was built with.
func (s *Scorer) Profile() WeightProfile {
	return s.profile
}

// Score calculates the integrated score and recommendation.
func (s *Scorer) Score(in Inputs) models.IntegratedScore {
	companyType := in.Fundamental.CompanyType
	if companyType == "" {
		companyType = models.CompanyValue
	}
	weights := s.profile.For(companyType)

	fundamental := clamp(in.Fundamental.Score, 0, 100)
	technical := TechnicalScore(in.Prediction, in.Risk)
	valuation := ValuationScore(in.Consensus)
	riskFactor := RiskFactor(in.Risk.Volatility)

	raw := fundamental*weights.Fundamental + technical*weights.Technical + valuation*weights.Valuation
	final := clamp(raw*riskFactor, 0, 100)

	rec := Recommend(final, in.Risk.Volatility, in.Consensus)
	if driver := dominantDriver(weights, fundamental, technical, valuation); driver != "" {
		rec.Reasoning = slices.Insert(rec.Reasoning, 1, driver)
	}

	s.logger.Debug().
		Str("company_type", string(companyType)).
		Float64("fundamental", fundamental).
		Float64("technical", technical).
		Float64("valuation", valuation).
		Float64("risk_factor", riskFactor).
		Float64("final", final).
		Msg("Integrated score computed")

	return models.IntegratedScore{
		FundamentalScore: fundamental,
		TechnicalScore:   technical,
		ValuationScore:   valuation,
		RiskFactor:       riskFactor,
		FinalScore:       final,
		CompanyType:      companyType,
		Weights:          weights,
		Recommendation:   rec,
	}
}

// TechnicalScore blends the predicted return and the annualized momentum, both
// relative to annualized volatility, with the ensemble confidence (0.4/0.4/0.2).
// Without a usable volatility the score is neutral.
func TechnicalScore(p models.PredictionResult, r models.RiskMetrics) float64 {
	vol := r.Volatility / 100
	if !(vol > 0) || math.IsInf(vol, 0) {
		return 50
	}

	predictionScore := clamp(50+p.ExpectedReturn/vol*100, 0, 100)
	confidenceScore := clamp(p.Confidence, 0, 100)
	momentumScore := clamp(50+(r.AverageReturn/100)/vol*100, 0, 100)

	score := predictionScore*0.4 + confidenceScore*0.4 + momentumScore*0.2
	if math.IsNaN(score) {
		return 50
	}
	return clamp(score, 0, 100)
}

// ValuationScore maps consensus upside to [0, 100] around a neutral 50 and
// discounts it by the consensus confidence.
func ValuationScore(c models.ConsensusValuation) float64 {
	if !c.Success() || c.CurrentPrice <= 0 || c.ConsensusValue <= 0 {
		return 50
	}
	upside := (c.ConsensusValue/c.CurrentPrice - 1) * 100
	base := clamp(50+upside/2, 0, 100)
	return clamp(base*clamp(c.OverallConfidence, 0, 1), 0, 100)
}

// RiskFactor penalizes volatility above 20% linearly, floored at 0.5.
func RiskFactor(volatilityPct float64) float64 {
	if volatilityPct > 20 {
		return math.Max(1-(volatilityPct-20)/100, 0.5)
	}
	return 1
}

// Recommend maps a final score to an action for the volatility regime and
// builds the reasoning list.
func Recommend(finalScore, volatilityPct float64, c models.ConsensusValuation) models.Recommendation {
	highVol := volatilityPct > highVolatility
	action, base := scoreToRecommendation(finalScore, highVol)

	reasoning := []string{base}
	if c.Success() && c.CurrentPrice > 0 {
		upside := (c.ConsensusValue/c.CurrentPrice - 1) * 100
		if upside > 15 {
			reasoning = append(reasoning, fmt.Sprintf("Significant upside potential of %.1f%%", upside))
		} else if upside < -15 {
			reasoning = append(reasoning, fmt.Sprintf("Significant downside potential of %.1f%%", -upside))
		}
	}
	riskContext := "Normal"
	if highVol {
		reasoning = append(reasoning, "High volatility environment - consider position sizing")
		riskContext = "High"
	}
	if c.Success() {
		reasoning = append(reasoning, "Valuation based on "+string(c.PrimaryMethod))
	}

	return models.Recommendation{
		Action:      action,
		Reasoning:   reasoning,
		RiskContext: riskContext,
	}
}

// scoreToRecommendation converts a final score to an action. The high
// volatility regime raises every threshold by 5.
func scoreToRecommendation(score float64, highVol bool) (models.RecommendationAction, string) {
	shift := 0.0
	if highVol {
		shift = 5
	}
	switch {
	case score >= 80+shift:
		return models.StrongBuy, "Strong fundamentals and technical indicators"
	case score >= 60+shift:
		return models.Buy, "Good overall metrics with positive outlook"
	case score >= 40+shift:
		return models.Hold, "Mixed signals, monitor for changes"
	case score >= 20+shift:
		return models.Reduce, "Weak performance metrics"
	default:
		return models.Sell, "Poor fundamental and technical indicators"
	}
}

// dominantDriver names the component with the largest weighted contribution.
func dominantDriver(w models.ScoreWeights, fundamental, technical, valuation float64) string {
	contributions := []struct {
		name  string
		score float64
		share float64
	}{
		{"fundamental", fundamental, fundamental * w.Fundamental},
		{"technical", technical, technical * w.Technical},
		{"valuation", valuation, valuation * w.Valuation},
	}
	best := -1
	for i, c := range contributions {
		if best < 0 || c.share > contributions[best].share {
			best = i
		}
	}
	if best < 0 || contributions[best].share <= 0 {
		return ""
	}
	return fmt.Sprintf("Driven mainly by the %s score (%.1f)", contributions[best].name, contributions[best].score)
}

// clamp restricts a value to the given range. NaN maps to the lower bound.
func clamp(value, minVal, maxVal float64) float64 {
	if math.IsNaN(value) {
		return minVal
	}
	if value < minVal {
		return minVal
	}
	if value > maxVal {
		return maxVal
	}
	return value
}
