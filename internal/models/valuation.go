package models

// ValuationMethod identifies an intrinsic value method.
type ValuationMethod string

const (
	MethodDCF              ValuationMethod = "dcf"
	MethodEarningsMultiple ValuationMethod = "earnings_multiple"
	MethodNAV              ValuationMethod = "nav"
	MethodDDM              ValuationMethod = "ddm"
	MethodNone             ValuationMethod = "none"
)

// Assumptions records the inputs a method used. Fields a method does not use stay zero.
type Assumptions struct {
	DiscountRate    float64 `json:"discount_rate,omitempty"`
	CostOfEquity    float64 `json:"cost_of_equity,omitempty"`
	GrowthRate      float64 `json:"growth_rate,omitempty"`
	TerminalGrowth  float64 `json:"terminal_growth,omitempty"`
	AverageEPS      float64 `json:"average_eps,omitempty"`
	Multiple        float64 `json:"multiple,omitempty"`
	PriceToBook     float64 `json:"price_to_book,omitempty"`
	BookValue       float64 `json:"book_value,omitempty"`
	Dividend        float64 `json:"dividend,omitempty"`
	OutliersDropped int     `json:"outliers_dropped,omitempty"`
	Observations    int     `json:"observations,omitempty"`
}

// SensitivityRange summarizes DCF values over a discount-rate x terminal-growth grid.
type SensitivityRange struct {
	DiscountRates []float64   `json:"discount_rates"`
	GrowthRates   []float64   `json:"growth_rates"`
	Grid          [][]float64 `json:"grid"`
	Min           float64     `json:"min"`
	Max           float64     `json:"max"`
	Mean          float64     `json:"mean"`
	StdDev        float64     `json:"std_dev"`
	Lower95       float64     `json:"lower_95"`
	Upper95       float64     `json:"upper_95"`
}

// ValuationEstimate is the result of one method. A failed method carries
// Success=false and a Reason; its value is never used.
type ValuationEstimate struct {
	Method         ValuationMethod   `json:"method"`
	Success        bool              `json:"success"`
	IntrinsicValue float64           `json:"intrinsic_value_per_share"`
	Confidence     float64           `json:"confidence"`
	Reason         string            `json:"reason,omitempty"`
	Assumptions    Assumptions       `json:"assumptions"`
	Sensitivity    *SensitivityRange `json:"sensitivity,omitempty"`
}

// Usable reports whether the estimate may enter a consensus.
func (e ValuationEstimate) Usable() bool {
	return e.Success && e.IntrinsicValue > 0
}

// SafetyLevel is the step function of the margin of safety.
type SafetyLevel string

const (
	SafetyExcellent  SafetyLevel = "Excellent"
	SafetyGood       SafetyLevel = "Good"
	SafetyAdequate   SafetyLevel = "Adequate"
	SafetyMinimal    SafetyLevel = "Minimal"
	SafetyUnsafe     SafetyLevel = "Unsafe"
	SafetyOvervalued SafetyLevel = "Overvalued"
)

// QualityTier is the company-quality bucket supplied by the caller.
type QualityTier string

const (
	QualityHigh        QualityTier = "High"
	QualityMedium      QualityTier = "Medium"
	QualityLow         QualityTier = "Low"
	QualitySpeculative QualityTier = "Speculative"
)

// ConsensusValuation is the weighted blend of usable estimates.
type ConsensusValuation struct {
	Symbol            string                      `json:"symbol"`
	CurrentPrice      float64                     `json:"current_price"`
	ConsensusValue    float64                     `json:"consensus_value"`
	OverallConfidence float64                     `json:"overall_confidence"`
	PrimaryMethod     ValuationMethod             `json:"primary_method"`
	MarginOfSafetyPct float64                     `json:"margin_of_safety_pct"`
	UpsidePct         float64                     `json:"upside_pct"`
	SafetyLevel       SafetyLevel                 `json:"safety_level"`
	Weights           map[ValuationMethod]float64 `json:"weights"`
	Estimates         []ValuationEstimate         `json:"estimates"`
	Agreement         string                      `json:"agreement"`
}

// Success reports whether at least one method contributed.
func (c ConsensusValuation) Success() bool {
	return c.PrimaryMethod != MethodNone && c.PrimaryMethod != ""
}

// SafetyAssessment puts a consensus in the context of a quality tier.
type SafetyAssessment struct {
	SafetyLevel      SafetyLevel `json:"safety_level"`
	QualityTier      QualityTier `json:"quality_tier"`
	RequiredMargin   float64     `json:"required_margin"`
	MeetsRequirement bool        `json:"meets_requirement"`
	RiskScore        float64     `json:"risk_score"`
	RiskLevel        string      `json:"risk_level"`
	Recommendation   string      `json:"recommendation"`
}

// PositionSize is a margin-of-safety driven sizing suggestion.
type PositionSize struct {
	RecommendedPercent float64  `json:"recommended_percent"`
	PositionValue      float64  `json:"position_value"`
	Shares             int64    `json:"shares"`
	ActualValue        float64  `json:"actual_value"`
	ActualPercent      float64  `json:"actual_percent"`
	Rationale          string   `json:"rationale"`
	RiskConsiderations []string `json:"risk_considerations,omitempty"`
}
