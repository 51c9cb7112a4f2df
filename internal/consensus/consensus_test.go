package consensus

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/models"
)

func newTestBlender() *Blender {
	return NewBlender(DefaultConfig(), zerolog.Nop())
}

func estimate(method models.ValuationMethod, value, confidence float64) models.ValuationEstimate {
	return models.ValuationEstimate{Method: method, Success: true, IntrinsicValue: value, Confidence: confidence}
}

var allMethods = []models.ValuationMethod{
	models.MethodDCF, models.MethodEarningsMultiple, models.MethodNAV, models.MethodDDM,
}

func TestProperty_WeightsRenormalize(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	b := newTestBlender()

	properties.Property("weights sum to 1 over successful methods", prop.ForAll(
		func(mask uint8, values []float64, price float64) bool {
			var estimates []models.ValuationEstimate
			for i, m := range allMethods {
				est := estimate(m, values[i], 0.6)
				est.Success = mask&(1<<i) != 0
				estimates = append(estimates, est)
			}

			c := b.Blend("X", estimates, price)
			if mask&0x0f == 0 {
				return c.PrimaryMethod == models.MethodNone && len(c.Weights) == 0 && c.ConsensusValue == price
			}

			var sum float64
			for _, w := range c.Weights {
				sum += w
			}
			minV, maxV := math.Inf(1), math.Inf(-1)
			for _, est := range estimates {
				if est.Success {
					minV, maxV = math.Min(minV, est.IntrinsicValue), math.Max(maxV, est.IntrinsicValue)
				}
			}
			return math.Abs(sum-1) < 1e-9 &&
				c.ConsensusValue >= minV-1e-9 && c.ConsensusValue <= maxV+1e-9 &&
				math.Abs(c.OverallConfidence-0.6) < 1e-9
		},
		gen.UInt8Range(0, 15),
		gen.SliceOfN(4, gen.Float64Range(1, 500)),
		gen.Float64Range(1, 500),
	))

	properties.Property("margin of safety follows the formula", prop.ForAll(
		func(value, price float64) bool {
			c := b.Blend("X", []models.ValuationEstimate{estimate(models.MethodDCF, value, 0.5)}, price)
			expected := (value - price) / value * 100
			return math.Abs(c.MarginOfSafetyPct-expected) <= 0.005+1e-9 &&
				c.SafetyLevel == SafetyLevelFor(c.MarginOfSafetyPct)
		},
		gen.Float64Range(1, 1000),
		gen.Float64Range(1, 1000),
	))

	properties.TestingRun(t)
}

func TestSingleMethodConsensusIsExact(t *testing.T) {
	for _, m := range allMethods {
		c := newTestBlender().Blend("X", []models.ValuationEstimate{
			estimate(m, 123.456789, 0.7),
			{Method: models.MethodNAV, Reason: "book value not positive"},
		}, 100)
		if m == models.MethodNAV {
			continue
		}
		assert.Equal(t, 123.456789, c.ConsensusValue)
		assert.Equal(t, m, c.PrimaryMethod)
		assert.Equal(t, 1.0, c.Weights[m])
		assert.Equal(t, "Single method", c.Agreement)
	}
}

func TestBlendDefaultWeights(t *testing.T) {
	c := newTestBlender().Blend("X", []models.ValuationEstimate{
		estimate(models.MethodDCF, 100, 0.7),
		estimate(models.MethodEarningsMultiple, 80, 0.6),
		estimate(models.MethodNAV, 60, 0.5),
		estimate(models.MethodDDM, 40, 0.5),
	}, 50)

	assert.InDelta(t, 0.5*100+0.25*80+0.15*60+0.10*40, c.ConsensusValue, 1e-9)
	assert.InDelta(t, 0.5*0.7+0.25*0.6+0.15*0.5+0.10*0.5, c.OverallConfidence, 1e-9)
	assert.Equal(t, models.MethodDCF, c.PrimaryMethod)
	assert.Equal(t, "Low", c.Agreement)
	assert.True(t, c.Success())
}

func TestBlendRenormalizesWithoutDCF(t *testing.T) {
	c := newTestBlender().Blend("X", []models.ValuationEstimate{
		{Method: models.MethodDCF, Reason: "free cash flow not positive"},
		estimate(models.MethodEarningsMultiple, 90, 0.6),
		estimate(models.MethodNAV, 60, 0.5),
	}, 50)

	assert.InDelta(t, 0.25/0.40, c.Weights[models.MethodEarningsMultiple], 1e-12)
	assert.InDelta(t, 0.15/0.40, c.Weights[models.MethodNAV], 1e-12)
	assert.Equal(t, models.MethodEarningsMultiple, c.PrimaryMethod)
}

func TestBlendWithoutUsableEstimates(t *testing.T) {
	c := newTestBlender().Blend("X", []models.ValuationEstimate{
		{Method: models.MethodDCF, Reason: "no free cash flow history"},
		{Method: models.MethodNAV, Success: true, IntrinsicValue: -3},
	}, 42)

	assert.Equal(t, 42.0, c.ConsensusValue)
	assert.Zero(t, c.OverallConfidence)
	assert.Zero(t, c.MarginOfSafetyPct)
	assert.Equal(t, models.MethodNone, c.PrimaryMethod)
	assert.Equal(t, "None", c.Agreement)
	assert.False(t, c.Success())
}

func TestSafetyLevelBoundaries(t *testing.T) {
	tests := []struct {
		margin float64
		want   models.SafetyLevel
	}{
		{60, models.SafetyExcellent},
		{40, models.SafetyExcellent},
		{39.99, models.SafetyGood},
		{25, models.SafetyGood},
		{24.99, models.SafetyAdequate},
		{15, models.SafetyAdequate},
		{14.99, models.SafetyMinimal},
		{5, models.SafetyMinimal},
		{4.99, models.SafetyUnsafe},
		{0, models.SafetyUnsafe},
		{-0.01, models.SafetyOvervalued},
		{-80, models.SafetyOvervalued},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafetyLevelFor(tt.margin), "margin=%v", tt.margin)
	}
}

func TestRoundTripAtFairPrice(t *testing.T) {
	b := newTestBlender()
	c := b.Blend("X", []models.ValuationEstimate{
		estimate(models.MethodDCF, 80, 0.7),
		estimate(models.MethodNAV, 40, 0.5),
	}, 50)

	again := b.Reprice(c, c.ConsensusValue)
	assert.Zero(t, again.MarginOfSafetyPct)
	assert.Zero(t, again.UpsidePct)
	assert.Equal(t, models.SafetyUnsafe, again.SafetyLevel)
	assert.Equal(t, c.ConsensusValue, again.ConsensusValue)
}

func TestMarginAndUpside(t *testing.T) {
	assert.Equal(t, 50.0, MarginOfSafety(100, 50))
	assert.Equal(t, -100.0, MarginOfSafety(50, 100))
	assert.Equal(t, 33.33, MarginOfSafety(75, 50))
	assert.Zero(t, MarginOfSafety(0, 50))
	assert.Equal(t, 50.0, Upside(75, 50))
	assert.Zero(t, Upside(75, 0))
}

func TestAgreement(t *testing.T) {
	assert.Equal(t, "High", Agreement([]float64{100, 101, 99}))
	assert.Equal(t, "Moderate", Agreement([]float64{100, 130}))
	assert.Equal(t, "Low", Agreement([]float64{100, 200}))
}

func TestAssess(t *testing.T) {
	b := newTestBlender()
	tests := []struct {
		name     string
		margin   float64
		tier     models.QualityTier
		score    float64
		level    string
		meets    bool
		required float64
	}{
		{"wide margin high quality", 35, models.QualityHigh, 1, "Low", true, 20},
		{"good margin medium", 25, models.QualityMedium, 2, "Medium", false, 30},
		{"thin margin low", 12, models.QualityLow, 3, "High", false, 40},
		{"speculative no margin", 2, models.QualitySpeculative, 4, "Very High", false, 50},
		{"speculative huge margin", 55, models.QualitySpeculative, 2.5, "Medium", true, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := models.ConsensusValuation{
				PrimaryMethod:     models.MethodDCF,
				MarginOfSafetyPct: tt.margin,
				SafetyLevel:       SafetyLevelFor(tt.margin),
			}
			a := b.Assess(c, tt.tier)
			assert.Equal(t, tt.score, a.RiskScore)
			assert.Equal(t, tt.level, a.RiskLevel)
			assert.Equal(t, tt.meets, a.MeetsRequirement)
			assert.Equal(t, tt.required, a.RequiredMargin)
			assert.NotEmpty(t, a.Recommendation)
		})
	}
}

func TestParseQuality(t *testing.T) {
	tier, err := ParseQuality("high")
	require.NoError(t, err)
	assert.Equal(t, models.QualityHigh, tier)

	_, err = ParseQuality("stellar")
	assert.Error(t, err)
}

func TestPositionFractionTable(t *testing.T) {
	tests := []struct {
		level models.SafetyLevel
		tier  models.QualityTier
		want  float64
	}{
		{models.SafetyExcellent, models.QualityHigh, 0.05},
		{models.SafetyExcellent, models.QualityMedium, 0.04},
		{models.SafetyGood, models.QualityHigh, 0.04},
		{models.SafetyGood, models.QualityMedium, 0.03},
		{models.SafetyAdequate, models.QualityHigh, 0.03},
		{models.SafetyAdequate, models.QualityMedium, 0.02},
		{models.SafetyMinimal, models.QualityHigh, 0.02},
		{models.SafetyMinimal, models.QualityMedium, 0.01},
		{models.SafetyExcellent, models.QualitySpeculative, 0.01},
		{models.SafetyUnsafe, models.QualityHigh, 0.01},
		{models.SafetyOvervalued, models.QualityHigh, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PositionFraction(tt.level, tt.tier), "%s/%s", tt.level, tt.tier)
	}
}

func TestPositionSize(t *testing.T) {
	b := newTestBlender()
	c := models.ConsensusValuation{
		CurrentPrice:      33,
		PrimaryMethod:     models.MethodDCF,
		MarginOfSafetyPct: 45,
		SafetyLevel:       models.SafetyExcellent,
		OverallConfidence: 0.7,
		Agreement:         "High",
	}
	a := b.Assess(c, models.QualityHigh)

	pos, err := b.PositionSize(c, a, 100000)
	require.NoError(t, err)
	assert.Equal(t, 5.0, pos.RecommendedPercent)
	assert.Equal(t, 5000.0, pos.PositionValue)
	assert.Equal(t, int64(151), pos.Shares)
	assert.Equal(t, 4983.0, pos.ActualValue)
	assert.Equal(t, 4.98, pos.ActualPercent)
	assert.Len(t, pos.RiskConsiderations, 3)

	cfg := DefaultConfig()
	cfg.MaxPositionPercent = 0.03
	capped, err := NewBlender(cfg, zerolog.Nop()).PositionSize(c, a, 100000)
	require.NoError(t, err)
	assert.Equal(t, 3.0, capped.RecommendedPercent)
	assert.Equal(t, int64(90), capped.Shares)
}

func TestPositionSizeWarnings(t *testing.T) {
	b := newTestBlender()
	c := models.ConsensusValuation{
		CurrentPrice:      20,
		PrimaryMethod:     models.MethodDCF,
		MarginOfSafetyPct: 10,
		SafetyLevel:       models.SafetyMinimal,
		OverallConfidence: 0.2,
		Agreement:         "Low",
	}
	a := b.Assess(c, models.QualityMedium)

	pos, err := b.PositionSize(c, a, 10000)
	require.NoError(t, err)
	assert.Equal(t, 1.0, pos.RecommendedPercent)
	assert.Equal(t, int64(5), pos.Shares)
	assert.Len(t, pos.RiskConsiderations, 6)
}

func TestPositionSizeOvervaluedAndInvalid(t *testing.T) {
	b := newTestBlender()
	c := models.ConsensusValuation{CurrentPrice: 10, PrimaryMethod: models.MethodDCF, SafetyLevel: models.SafetyOvervalued, MarginOfSafetyPct: -20}

	pos, err := b.PositionSize(c, b.Assess(c, models.QualityHigh), 10000)
	require.NoError(t, err)
	assert.Zero(t, pos.Shares)
	assert.Zero(t, pos.RecommendedPercent)

	_, err = b.PositionSize(c, models.SafetyAssessment{}, 0)
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	c.CurrentPrice = 0
	_, err = b.PositionSize(c, models.SafetyAssessment{}, 1000)
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func TestPositionSizeWithoutValuation(t *testing.T) {
	b := newTestBlender()
	c := b.Blend("ACME", []models.ValuationEstimate{
		{Method: models.MethodDCF, Reason: "negative free cash flow"},
	}, 50)
	require.False(t, c.Success())
	require.Equal(t, models.SafetyUnsafe, c.SafetyLevel)

	pos, err := b.PositionSize(c, b.Assess(c, models.QualityHigh), 100000)
	require.NoError(t, err)
	assert.Zero(t, pos.Shares)
	assert.Zero(t, pos.RecommendedPercent)
	assert.Zero(t, pos.PositionValue)
	assert.Zero(t, pos.ActualValue)
	assert.Contains(t, pos.RiskConsiderations, "No valuation method succeeded")
}
