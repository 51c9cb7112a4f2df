// Package valuation computes per-share intrinsic value with independent methods:
// discounted cash flow, a Graham earnings multiple, net asset value and dividend discount.
package valuation

import (
	"errors"

	"github.com/rs/zerolog"

	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/logging"
	"fairvalue-engine/internal/models"
)

// Config holds the valuation assumptions. Rates are fractions.
type Config struct {
	RiskFreeRate       float64 `mapstructure:"risk_free_rate"`
	EquityRiskPremium  float64 `mapstructure:"equity_risk_premium"`
	CostOfDebt         float64 `mapstructure:"cost_of_debt"`
	DefaultTaxRate     float64 `mapstructure:"default_tax_rate"`
	TerminalGrowth     float64 `mapstructure:"terminal_growth"`
	DiscountFloor      float64 `mapstructure:"discount_floor"`
	DiscountCap        float64 `mapstructure:"discount_cap"`
	GrowthDecay        float64 `mapstructure:"growth_decay"`
	GrowthFloor        float64 `mapstructure:"growth_floor"`
	FCFGrowthMin       float64 `mapstructure:"fcf_growth_min"`
	FCFGrowthMax       float64 `mapstructure:"fcf_growth_max"`
	DefaultFCFGrowth   float64 `mapstructure:"default_fcf_growth"`
	ProjectionYears    int     `mapstructure:"projection_years"`
	DividendGrowth     float64 `mapstructure:"dividend_growth"`
	DividendSpread     float64 `mapstructure:"dividend_spread"`
	EPSWindow          int     `mapstructure:"eps_window"`
	EPSGrowthMin       float64 `mapstructure:"eps_growth_min"`
	EPSGrowthMax       float64 `mapstructure:"eps_growth_max"`
	DefaultEPSGrowth   float64 `mapstructure:"default_eps_growth"`
	OutlierSigma       float64 `mapstructure:"outlier_sigma"`
	MaxOutlierFraction float64 `mapstructure:"max_outlier_fraction"`
	FullHistoryYears   int     `mapstructure:"full_history_years"`
	SensitivitySteps   int     `mapstructure:"sensitivity_steps"`
}

// DefaultConfig returns the default valuation assumptions.
func DefaultConfig() Config {
	return Config{
		RiskFreeRate:       0.035,
		EquityRiskPremium:  0.05,
		CostOfDebt:         0.05,
		DefaultTaxRate:     0.21,
		TerminalGrowth:     0.025,
		DiscountFloor:      0.07,
		DiscountCap:        0.20,
		GrowthDecay:        0.8,
		GrowthFloor:        0.02,
		FCFGrowthMin:       0.02,
		FCFGrowthMax:       0.25,
		DefaultFCFGrowth:   0.05,
		ProjectionYears:    5,
		DividendGrowth:     0.03,
		DividendSpread:     0.02,
		EPSWindow:          10,
		EPSGrowthMin:       -0.10,
		EPSGrowthMax:       0.20,
		DefaultEPSGrowth:   0.05,
		OutlierSigma:       3,
		MaxOutlierFraction: 0.4,
		FullHistoryYears:   5,
		SensitivitySteps:   5,
	}
}

// Engine runs every valuation method against a profile. It holds no per-call
// state and is safe for concurrent use.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
}

// NewEngine creates a valuation engine.
func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logging.WithComponent(logger, "valuation")}
}

// Estimate returns one estimate per method in the order DCF, earnings multiple,
// NAV, DDM. Methods that cannot run report Success=false with a reason.
func (e *Engine) Estimate(profile *models.FinancialProfile) []models.ValuationEstimate {
	methods := []struct {
		method models.ValuationMethod
		run    func(*models.FinancialProfile) (models.ValuationEstimate, error)
	}{
		{models.MethodDCF, e.DCF},
		{models.MethodEarningsMultiple, e.EarningsMultiple},
		{models.MethodNAV, e.NAV},
		{models.MethodDDM, e.DDM},
	}

	estimates := make([]models.ValuationEstimate, 0, len(methods))
	for _, m := range methods {
		var est models.ValuationEstimate
		var err error
		if profile == nil {
			err = apperrors.NewValuationError(string(m.method), "no financial profile", apperrors.ErrInsufficientData)
		} else {
			est, err = m.run(profile)
		}
		if err != nil {
			est = failed(m.method, err)
		}
		logging.LogValuation(e.logger, string(est.Method), est.Success, est.IntrinsicValue, est.Confidence, est.Reason)
		estimates = append(estimates, est)
	}
	return estimates
}

// Find returns the estimate for method, if present.
func Find(estimates []models.ValuationEstimate, method models.ValuationMethod) (models.ValuationEstimate, bool) {
	for _, est := range estimates {
		if est.Method == method {
			return est, true
		}
	}
	return models.ValuationEstimate{}, false
}

func failed(method models.ValuationMethod, err error) models.ValuationEstimate {
	reason := err.Error()
	var verr *apperrors.ValuationError
	if errors.As(err, &verr) {
		reason = verr.Reason
	}
	return models.ValuationEstimate{Method: method, Reason: reason}
}

// confidenceInputs are the signals the per-method confidence responds to.
// Zero multiples are treated as not applicable.
type confidenceInputs struct {
	hasGrowth   bool
	fullHistory bool
	growth      float64
	earnings    float64
	priceToBook float64
}

// methodConfidence starts at 0.5, rewards data coverage and penalizes extreme
// growth or multiple assumptions. The result is in [0, 1].
func methodConfidence(in confidenceInputs) float64 {
	c := 0.5
	if in.hasGrowth {
		c += 0.1
	}
	if in.fullHistory {
		c += 0.1
	}

	switch {
	case in.growth > 0.30:
		c -= 0.2
	case in.growth > 0.20:
		c -= 0.1
	}

	if in.earnings != 0 && (in.earnings > 40 || in.earnings < 5) {
		c -= 0.1
	}
	if in.priceToBook != 0 && (in.priceToBook > 10 || in.priceToBook < 0.5) {
		c -= 0.1
	}

	return clamp(c, 0, 1)
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
