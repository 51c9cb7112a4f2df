package consensus

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/models"
)

type sizingKey struct {
	level models.SafetyLevel
	tier  models.QualityTier
}

// basePositions maps safety level and quality tier to a portfolio fraction.
// Unlisted combinations get defaultPosition; overvalued stocks get none.
var basePositions = map[sizingKey]float64{
	{models.SafetyExcellent, models.QualityHigh}:   0.05,
	{models.SafetyExcellent, models.QualityMedium}: 0.04,
	{models.SafetyGood, models.QualityHigh}:        0.04,
	{models.SafetyGood, models.QualityMedium}:      0.03,
	{models.SafetyAdequate, models.QualityHigh}:    0.03,
	{models.SafetyAdequate, models.QualityMedium}:  0.02,
	{models.SafetyMinimal, models.QualityHigh}:     0.02,
}

const defaultPosition = 0.01

// PositionFraction returns the recommended portfolio fraction before the cap.
func PositionFraction(level models.SafetyLevel, tier models.QualityTier) float64 {
	if level == models.SafetyOvervalued {
		return 0
	}
	if pct, ok := basePositions[sizingKey{level, tier}]; ok {
		return pct
	}
	return defaultPosition
}

// PositionSize sizes a position for portfolioValue. The share count is floored
// to whole shares at the consensus's current price. A consensus with no
// successful method sizes to zero.
func (b *Blender) PositionSize(c models.ConsensusValuation, a models.SafetyAssessment, portfolioValue float64) (*models.PositionSize, error) {
	if portfolioValue <= 0 {
		return nil, apperrors.NewValidationError("portfolio_value", portfolioValue, "must be positive")
	}
	if c.CurrentPrice <= 0 {
		return nil, apperrors.NewValidationError("current_price", c.CurrentPrice, "must be positive")
	}

	if !c.Success() {
		return &models.PositionSize{
			Rationale:          "No position without a successful valuation",
			RiskConsiderations: []string{"No valuation method succeeded"},
		}, nil
	}

	fraction := PositionFraction(c.SafetyLevel, a.QualityTier)
	if b.cfg.MaxPositionPercent > 0 && fraction > b.cfg.MaxPositionPercent {
		fraction = b.cfg.MaxPositionPercent
	}

	portfolio := decimal.NewFromFloat(portfolioValue)
	price := decimal.NewFromFloat(c.CurrentPrice)
	value := portfolio.Mul(decimal.NewFromFloat(fraction))
	shares := value.Div(price).Floor()
	actual := shares.Mul(price)
	hundred := decimal.NewFromInt(100)

	out := &models.PositionSize{
		RecommendedPercent: decimal.NewFromFloat(fraction).Mul(hundred).InexactFloat64(),
		PositionValue:      value.Round(2).InexactFloat64(),
		Shares:             shares.IntPart(),
		ActualValue:        actual.Round(2).InexactFloat64(),
		ActualPercent:      actual.Div(portfolio).Mul(hundred).Round(2).InexactFloat64(),
		Rationale:          positionRationale(c.SafetyLevel, a.QualityTier),
		RiskConsiderations: []string{
			fmt.Sprintf("Safety level: %s", c.SafetyLevel),
			fmt.Sprintf("Company quality: %s", a.QualityTier),
			fmt.Sprintf("Margin of safety: %.1f%%", c.MarginOfSafetyPct),
		},
	}

	if !a.MeetsRequirement {
		out.RiskConsiderations = append(out.RiskConsiderations,
			fmt.Sprintf("Margin below the %.0f%% required for %s quality", a.RequiredMargin, strings.ToLower(string(a.QualityTier))))
	}
	if c.Agreement == "Low" {
		out.RiskConsiderations = append(out.RiskConsiderations, "Valuation methods disagree significantly")
	}
	if c.OverallConfidence < b.cfg.MinConfidence {
		out.RiskConsiderations = append(out.RiskConsiderations, fmt.Sprintf("Low valuation confidence (%.2f)", c.OverallConfidence))
	}
	return out, nil
}

func positionRationale(level models.SafetyLevel, tier models.QualityTier) string {
	quality := strings.ToLower(string(tier))
	switch level {
	case models.SafetyExcellent:
		return fmt.Sprintf("Large position justified by excellent margin of safety and %s quality", quality)
	case models.SafetyGood:
		return fmt.Sprintf("Moderate position appropriate for good safety margin and %s quality", quality)
	case models.SafetyAdequate:
		return "Conservative position due to adequate but not exceptional safety margin"
	case models.SafetyOvervalued:
		return "No position while the price exceeds intrinsic value"
	default:
		return "Minimal position due to limited safety margin or quality concerns"
	}
}
