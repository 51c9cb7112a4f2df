package models

import (
	"time"
)

// PredictionResult is the ensemble forecast of next-day return.
// Confidence 0 means no signal.
type PredictionResult struct {
	ExpectedReturn   float64 `json:"expected_return"`
	Confidence       float64 `json:"confidence"`
	MLPPrediction    float64 `json:"mlp_prediction"`
	ForestPrediction float64 `json:"forest_prediction"`
	TrainingRows     int     `json:"training_rows"`
	Features         int     `json:"features"`
	Degraded         bool    `json:"degraded"`
	Reason           string  `json:"reason,omitempty"`
}

// NeutralPrediction is returned whenever the ensemble cannot produce a signal.
func NeutralPrediction(reason string) PredictionResult {
	return PredictionResult{Degraded: true, Reason: reason}
}

// RecommendationAction is the discrete recommendation state.
type RecommendationAction string

const (
	StrongBuy RecommendationAction = "STRONG_BUY"
	Buy       RecommendationAction = "BUY"
	Hold      RecommendationAction = "HOLD"
	Reduce    RecommendationAction = "REDUCE"
	Sell      RecommendationAction = "SELL"
)

// Recommendation is derived from the final score and the volatility regime.
type Recommendation struct {
	Action      RecommendationAction `json:"action"`
	Reasoning   []string             `json:"reasoning"`
	RiskContext string               `json:"risk_context"`
}

// ScoreWeights are the fundamental/technical/valuation blend weights.
type ScoreWeights struct {
	Fundamental float64 `json:"fundamental" mapstructure:"fundamental"`
	Technical   float64 `json:"technical" mapstructure:"technical"`
	Valuation   float64 `json:"valuation" mapstructure:"valuation"`
}

// Sum returns the total weight.
func (w ScoreWeights) Sum() float64 {
	return w.Fundamental + w.Technical + w.Valuation
}

// IntegratedScore merges all signals into one bounded score.
type IntegratedScore struct {
	FundamentalScore float64        `json:"fundamental_score"`
	TechnicalScore   float64        `json:"technical_score"`
	ValuationScore   float64        `json:"valuation_score"`
	RiskFactor       float64        `json:"risk_factor"`
	FinalScore       float64        `json:"final_score"`
	CompanyType      CompanyType    `json:"company_type"`
	Weights          ScoreWeights   `json:"weights"`
	Recommendation   Recommendation `json:"recommendation"`
}

// Report is the full output of one analysis call.
type Report struct {
	ID          string              `json:"id"`
	Symbol      string              `json:"symbol"`
	Profile     *FinancialProfile   `json:"profile,omitempty"`
	Estimates   []ValuationEstimate `json:"estimates"`
	Consensus   ConsensusValuation  `json:"consensus"`
	Safety      SafetyAssessment    `json:"safety"`
	Position    *PositionSize       `json:"position,omitempty"`
	Prediction  PredictionResult    `json:"prediction"`
	Risk        RiskMetrics         `json:"risk"`
	Fundamental FundamentalScore    `json:"fundamental"`
	Score       IntegratedScore     `json:"score"`
	Degraded    bool                `json:"degraded"`
	Warnings    []string            `json:"warnings,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
	PricedAt    time.Time           `json:"priced_at"`
}
