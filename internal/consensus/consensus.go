// Package consensus reconciles per-method valuations into one consensus value,
// a margin of safety and a position-sizing suggestion.
package consensus

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"fairvalue-engine/internal/logging"
	"fairvalue-engine/internal/models"
)

// MethodWeights are the default blend weights before renormalization.
type MethodWeights struct {
	DCF              float64 `mapstructure:"dcf"`
	EarningsMultiple float64 `mapstructure:"earnings_multiple"`
	NAV              float64 `mapstructure:"nav"`
	DDM              float64 `mapstructure:"ddm"`
}

// For returns the configured weight of a method.
func (w MethodWeights) For(method models.ValuationMethod) float64 {
	switch method {
	case models.MethodDCF:
		return w.DCF
	case models.MethodEarningsMultiple:
		return w.EarningsMultiple
	case models.MethodNAV:
		return w.NAV
	case models.MethodDDM:
		return w.DDM
	}
	return 0
}

// Config configures the blender.
type Config struct {
	Weights            MethodWeights `mapstructure:"weights"`
	MaxPositionPercent float64       `mapstructure:"max_position_percent"`
	// MinConfidence below which position sizing warns about conviction.
	MinConfidence float64 `mapstructure:"min_confidence"`
}

// DefaultConfig returns the default blender configuration.
func DefaultConfig() Config {
	return Config{
		Weights: MethodWeights{
			DCF:              0.5,
			EarningsMultiple: 0.25,
			NAV:              0.15,
			DDM:              0.10,
		},
		MaxPositionPercent: 0.05,
		MinConfidence:      0.4,
	}
}

// Blender combines valuation estimates. It is stateless and safe for concurrent use.
type Blender struct {
	cfg    Config
	logger zerolog.Logger
}

// NewBlender creates a blender.
func NewBlender(cfg Config, logger zerolog.Logger) *Blender {
	return &Blender{cfg: cfg, logger: logging.WithComponent(logger, "consensus")}
}

// Blend computes the weighted consensus over usable estimates. Weights are
// renormalized over the methods that succeeded. Without any usable estimate
// the consensus equals the price, with zero confidence and method "none".
func (b *Blender) Blend(symbol string, estimates []models.ValuationEstimate, currentPrice float64) models.ConsensusValuation {
	out := models.ConsensusValuation{
		Symbol:        symbol,
		CurrentPrice:  currentPrice,
		Estimates:     estimates,
		PrimaryMethod: models.MethodNone,
		Weights:       map[models.ValuationMethod]float64{},
	}

	var usable []models.ValuationEstimate
	var raw []float64
	var total float64
	for _, est := range estimates {
		if !est.Usable() {
			continue
		}
		w := b.cfg.Weights.For(est.Method)
		if w < 0 {
			w = 0
		}
		usable = append(usable, est)
		raw = append(raw, w)
		total += w
	}

	if len(usable) == 0 {
		out.ConsensusValue = currentPrice
		out.SafetyLevel = SafetyLevelFor(0)
		out.Agreement = Agreement(nil)
		b.logger.Debug().Str("symbol", symbol).Msg("No usable valuation, consensus falls back to price")
		return out
	}

	// Methods with no configured weight share equally when nothing else is weighted.
	if total == 0 {
		for i := range raw {
			raw[i] = 1
		}
		total = float64(len(raw))
	}

	values := make([]float64, len(usable))
	bestWeight := -1.0
	for i, est := range usable {
		w := raw[i] / total
		out.Weights[est.Method] = w
		out.ConsensusValue += w * est.IntrinsicValue
		out.OverallConfidence += w * est.Confidence
		values[i] = est.IntrinsicValue
		if w > bestWeight {
			bestWeight = w
			out.PrimaryMethod = est.Method
		}
	}

	out.MarginOfSafetyPct = MarginOfSafety(out.ConsensusValue, currentPrice)
	out.UpsidePct = Upside(out.ConsensusValue, currentPrice)
	out.SafetyLevel = SafetyLevelFor(out.MarginOfSafetyPct)
	out.Agreement = Agreement(values)
	return out
}

// Reprice recomputes the price-dependent fields of a consensus for a new price.
func (b *Blender) Reprice(c models.ConsensusValuation, price float64) models.ConsensusValuation {
	return b.Blend(c.Symbol, c.Estimates, price)
}

// MarginOfSafety returns (consensus - price) / consensus * 100 rounded to two
// decimals, or 0 when the consensus is not positive.
func MarginOfSafety(consensusValue, price float64) float64 {
	if consensusValue <= 0 {
		return 0
	}
	c := decimal.NewFromFloat(consensusValue)
	p := decimal.NewFromFloat(price)
	margin, _ := c.Sub(p).Div(c).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return margin
}

// Upside returns (consensus / price - 1) * 100 rounded to two decimals, or 0
// when the price is not positive.
func Upside(consensusValue, price float64) float64 {
	if price <= 0 {
		return 0
	}
	c := decimal.NewFromFloat(consensusValue)
	p := decimal.NewFromFloat(price)
	upside, _ := c.Div(p).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return upside
}

// SafetyLevelFor is the step function of the margin of safety in percent.
func SafetyLevelFor(marginPct float64) models.SafetyLevel {
	switch {
	case marginPct >= 40:
		return models.SafetyExcellent
	case marginPct >= 25:
		return models.SafetyGood
	case marginPct >= 15:
		return models.SafetyAdequate
	case marginPct >= 5:
		return models.SafetyMinimal
	case marginPct >= 0:
		return models.SafetyUnsafe
	default:
		return models.SafetyOvervalued
	}
}

// Agreement classifies how closely method values agree by their coefficient of variation.
func Agreement(values []float64) string {
	switch len(values) {
	case 0:
		return "None"
	case 1:
		return "Single method"
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	cv := 1.0
	if mean > 0 {
		cv = std / mean
	}
	switch {
	case cv < 0.1:
		return "High"
	case cv < 0.2:
		return "Moderate"
	default:
		return "Low"
	}
}

// RequiredMargin is the minimum acceptable margin of safety in percent for a
// quality tier. Unknown tiers are treated as speculative.
func RequiredMargin(tier models.QualityTier) float64 {
	switch tier {
	case models.QualityHigh:
		return 20
	case models.QualityMedium:
		return 30
	case models.QualityLow:
		return 40
	default:
		return 50
	}
}

// ParseQuality parses a quality tier name, case-insensitively.
func ParseQuality(s string) (models.QualityTier, error) {
	for _, tier := range []models.QualityTier{models.QualityHigh, models.QualityMedium, models.QualityLow, models.QualitySpeculative} {
		if strings.EqualFold(s, string(tier)) {
			return tier, nil
		}
	}
	return "", fmt.Errorf("unknown quality tier %q (want High, Medium, Low or Speculative)", s)
}

func qualityScore(tier models.QualityTier) float64 {
	switch tier {
	case models.QualityHigh:
		return 1
	case models.QualityMedium:
		return 2
	case models.QualityLow:
		return 3
	default:
		return 4
	}
}

func marginScore(marginPct float64) float64 {
	switch {
	case marginPct > 30:
		return 1
	case marginPct > 20:
		return 2
	case marginPct > 10:
		return 3
	default:
		return 4
	}
}

// Assess puts a consensus in the context of the company's quality tier.
func (b *Blender) Assess(c models.ConsensusValuation, tier models.QualityTier) models.SafetyAssessment {
	required := RequiredMargin(tier)
	score := (qualityScore(tier) + marginScore(c.MarginOfSafetyPct)) / 2

	var level string
	switch {
	case score <= 1.5:
		level = "Low"
	case score <= 2.5:
		level = "Medium"
	case score <= 3.5:
		level = "High"
	default:
		level = "Very High"
	}

	return models.SafetyAssessment{
		SafetyLevel:      c.SafetyLevel,
		QualityTier:      tier,
		RequiredMargin:   required,
		MeetsRequirement: c.Success() && c.MarginOfSafetyPct >= required,
		RiskScore:        score,
		RiskLevel:        level,
		Recommendation:   safetyRecommendation(c.SafetyLevel, tier, c.MarginOfSafetyPct),
	}
}

func safetyRecommendation(level models.SafetyLevel, tier models.QualityTier, margin float64) string {
	switch level {
	case models.SafetyOvervalued:
		return "AVOID - current price exceeds intrinsic value"
	case models.SafetyUnsafe:
		return fmt.Sprintf("HIGH RISK - margin of safety (%.1f%%) is below safe levels, wait for a better entry point", margin)
	case models.SafetyMinimal:
		if tier == models.QualityHigh {
			return fmt.Sprintf("CAUTIOUS BUY - high quality company with minimal margin (%.1f%%)", margin)
		}
		return fmt.Sprintf("RISKY - minimal margin (%.1f%%) for a %s quality company", margin, strings.ToLower(string(tier)))
	case models.SafetyAdequate:
		return fmt.Sprintf("REASONABLE BUY - adequate margin of safety (%.1f%%)", margin)
	case models.SafetyGood:
		return fmt.Sprintf("STRONG BUY - good margin of safety (%.1f%%) with downside protection", margin)
	default:
		return fmt.Sprintf("EXCELLENT BUY - outstanding margin of safety (%.1f%%)", margin)
	}
}
