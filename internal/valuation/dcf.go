package valuation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/models"
)

// DCF values the company with a two-stage discounted cash flow model.
func (e *Engine) DCF(p *models.FinancialProfile) (models.ValuationEstimate, error) {
	const method = string(models.MethodDCF)

	if p.SharesOutstanding <= 0 {
		return models.ValuationEstimate{}, apperrors.NewValuationError(method, "shares outstanding not positive", apperrors.ErrNumericDegenerate)
	}
	if len(p.FreeCashFlows) == 0 {
		return models.ValuationEstimate{}, apperrors.NewValuationError(method, "no free cash flow history", apperrors.ErrInsufficientData)
	}
	fcf := p.LatestFCF()
	if fcf <= 0 {
		return models.ValuationEstimate{}, apperrors.NewValuationError(method, "free cash flow not positive", apperrors.ErrNumericDegenerate)
	}

	rate, costOfEquity := e.WACC(p)
	growth := e.FCFGrowth(p.FreeCashFlows)
	terminal := e.cfg.TerminalGrowth

	perShare, ok := e.perShareValue(p, fcf, growth, rate, terminal)
	if !ok {
		return models.ValuationEstimate{}, apperrors.NewValuationError(method, "equity value not positive", apperrors.ErrNumericDegenerate)
	}

	return models.ValuationEstimate{
		Method:         models.MethodDCF,
		Success:        true,
		IntrinsicValue: perShare,
		Confidence: methodConfidence(confidenceInputs{
			hasGrowth:   true,
			fullHistory: len(p.FreeCashFlows) >= e.cfg.FullHistoryYears,
			growth:      growth,
		}),
		Assumptions: models.Assumptions{
			DiscountRate:   rate,
			CostOfEquity:   costOfEquity,
			GrowthRate:     growth,
			TerminalGrowth: terminal,
			Observations:   len(p.FreeCashFlows),
		},
		Sensitivity: e.Sensitivity(p, fcf, growth, rate, terminal),
	}, nil
}

// WACC returns the discount rate and the CAPM cost of equity. The discount
// rate is bounded by the configured floor and cap.
func (e *Engine) WACC(p *models.FinancialProfile) (float64, float64) {
	beta := p.Beta
	if beta == 0 {
		beta = 1
	}
	costOfEquity := e.cfg.RiskFreeRate + beta*e.cfg.EquityRiskPremium

	tax := p.TaxRate
	if tax <= 0 || tax >= 1 {
		tax = e.cfg.DefaultTaxRate
	}

	equity := math.Max(p.MarketCap(), 0)
	debt := math.Max(p.TotalDebt, 0)
	we, wd := 1.0, 0.0
	if total := equity + debt; total > 0 {
		we, wd = equity/total, debt/total
	}

	wacc := we*costOfEquity + wd*e.cfg.CostOfDebt*(1-tax)
	return clamp(wacc, e.cfg.DiscountFloor, e.cfg.DiscountCap), costOfEquity
}

// FCFGrowth estimates growth as the mean year-over-year change of free cash
// flow, clipped to the configured range. Pairs with a non-positive base are skipped.
func (e *Engine) FCFGrowth(fcf []float64) float64 {
	var rates []float64
	for i := 1; i < len(fcf); i++ {
		if fcf[i-1] > 0 {
			rates = append(rates, fcf[i]/fcf[i-1]-1)
		}
	}
	if len(rates) == 0 {
		return e.cfg.DefaultFCFGrowth
	}
	return clamp(stat.Mean(rates, nil), e.cfg.FCFGrowthMin, e.cfg.FCFGrowthMax)
}

// EnterpriseValue discounts the projected cash flows and the Gordon terminal
// value. Growth holds for two years, then decays toward the growth floor.
// ok is false when the discount rate does not exceed terminal growth.
func (e *Engine) EnterpriseValue(fcf, growth, rate, terminal float64) (float64, bool) {
	if rate <= terminal || rate <= -1 {
		return 0, false
	}
	years := e.cfg.ProjectionYears
	if years <= 0 {
		years = 5
	}

	var pv float64
	cf := fcf
	g := growth
	for t := 1; t <= years; t++ {
		if t > 2 {
			g = math.Max(g*e.cfg.GrowthDecay, e.cfg.GrowthFloor)
		}
		cf *= 1 + g
		pv += cf / math.Pow(1+rate, float64(t))
	}

	terminalValue := cf * (1 + terminal) / (rate - terminal)
	pv += terminalValue / math.Pow(1+rate, float64(years))
	return pv, true
}

func (e *Engine) perShareValue(p *models.FinancialProfile, fcf, growth, rate, terminal float64) (float64, bool) {
	ev, ok := e.EnterpriseValue(fcf, growth, rate, terminal)
	if !ok {
		return 0, false
	}
	perShare := (ev + p.Cash - p.TotalDebt) / p.SharesOutstanding
	if perShare <= 0 || math.IsNaN(perShare) || math.IsInf(perShare, 0) {
		return 0, false
	}
	return perShare, true
}

// Sensitivity recomputes the per-share value over a discount-rate x
// terminal-growth grid (rate +/-20%, terminal growth +/-50%). Grid cells where
// the model is undefined are 0 and excluded from the summary statistics.
func (e *Engine) Sensitivity(p *models.FinancialProfile, fcf, growth, rate, terminal float64) *models.SensitivityRange {
	steps := e.cfg.SensitivitySteps
	if steps < 2 {
		steps = 5
	}

	rates := floats.Span(make([]float64, steps), rate*0.8, rate*1.2)
	terminals := floats.Span(make([]float64, steps), terminal*0.5, terminal*1.5)

	grid := make([][]float64, steps)
	var values []float64
	for i, r := range rates {
		grid[i] = make([]float64, steps)
		for j, tg := range terminals {
			if v, ok := e.perShareValue(p, fcf, growth, r, tg); ok {
				grid[i][j] = v
				values = append(values, v)
			}
		}
	}

	out := &models.SensitivityRange{DiscountRates: rates, GrowthRates: terminals, Grid: grid}
	if len(values) == 0 {
		return out
	}

	sort.Float64s(values)
	out.Min = values[0]
	out.Max = values[len(values)-1]
	out.Mean, out.StdDev = stat.PopMeanStdDev(values, nil)
	out.Lower95 = stat.Quantile(0.025, stat.Empirical, values, nil)
	out.Upper95 = stat.Quantile(0.975, stat.Empirical, values, nil)
	return out
}
