package valuation

import (
	"math"

	"gonum.org/v1/gonum/stat"

	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/models"
)

// grahamBaseMultiple is the P/E Graham assigned to a no-growth company.
const grahamBaseMultiple = 8.5

// EarningsMultiple values the company as average EPS times 8.5 + 2g, with g the
// annual EPS growth in percentage points.
func (e *Engine) EarningsMultiple(p *models.FinancialProfile) (models.ValuationEstimate, error) {
	const method = string(models.MethodEarningsMultiple)

	eps := p.EPSHistory
	if e.cfg.EPSWindow > 0 && len(eps) > e.cfg.EPSWindow {
		eps = eps[len(eps)-e.cfg.EPSWindow:]
	}
	if len(eps) == 0 {
		return models.ValuationEstimate{}, apperrors.NewValuationError(method, "no EPS history", apperrors.ErrInsufficientData)
	}

	avgEPS, dropped := e.TrimmedMeanEPS(eps)
	if avgEPS <= 0 {
		return models.ValuationEstimate{}, apperrors.NewValuationError(method, "average EPS not positive", apperrors.ErrNumericDegenerate)
	}

	growth := e.EPSGrowth(eps)
	multiple := grahamBaseMultiple + 2*growth*100
	if multiple <= 0 {
		return models.ValuationEstimate{}, apperrors.NewValuationError(method, "implied multiple not positive", apperrors.ErrNumericDegenerate)
	}

	return models.ValuationEstimate{
		Method:         models.MethodEarningsMultiple,
		Success:        true,
		IntrinsicValue: avgEPS * multiple,
		Confidence: methodConfidence(confidenceInputs{
			hasGrowth:   len(eps) >= 2,
			fullHistory: len(eps) >= e.cfg.FullHistoryYears,
			growth:      growth,
			earnings:    multiple,
		}),
		Assumptions: models.Assumptions{
			GrowthRate:      growth,
			AverageEPS:      avgEPS,
			Multiple:        multiple,
			OutliersDropped: dropped,
			Observations:    len(eps),
		},
	}, nil
}

// TrimmedMeanEPS averages eps after discarding observations more than
// OutlierSigma standard deviations from the mean. When trimming would remove
// more than MaxOutlierFraction of the observations the raw mean is used.
func (e *Engine) TrimmedMeanEPS(eps []float64) (float64, int) {
	mean, std := stat.PopMeanStdDev(eps, nil)
	if len(eps) < 3 || std == 0 || math.IsNaN(std) {
		return mean, 0
	}

	var kept []float64
	for _, v := range eps {
		if math.Abs(v-mean) <= e.cfg.OutlierSigma*std {
			kept = append(kept, v)
		}
	}
	dropped := len(eps) - len(kept)
	if len(kept) == 0 || float64(dropped) > e.cfg.MaxOutlierFraction*float64(len(eps)) {
		return mean, 0
	}
	return stat.Mean(kept, nil), dropped
}

// EPSGrowth is the compound annual growth from the first to the last EPS,
// bounded by the configured range. Without two positive endpoints the default is used.
func (e *Engine) EPSGrowth(eps []float64) float64 {
	if len(eps) < 2 {
		return e.cfg.DefaultEPSGrowth
	}
	first, last := eps[0], eps[len(eps)-1]
	if first <= 0 || last <= 0 {
		return e.cfg.DefaultEPSGrowth
	}
	cagr := math.Pow(last/first, 1/float64(len(eps)-1)) - 1
	return clamp(cagr, e.cfg.EPSGrowthMin, e.cfg.EPSGrowthMax)
}

// NAV values the company at tangible book value per share.
func (e *Engine) NAV(p *models.FinancialProfile) (models.ValuationEstimate, error) {
	const method = string(models.MethodNAV)

	if p.SharesOutstanding <= 0 {
		return models.ValuationEstimate{}, apperrors.NewValuationError(method, "shares outstanding not positive", apperrors.ErrNumericDegenerate)
	}
	if p.TotalAssets <= 0 {
		return models.ValuationEstimate{}, apperrors.NewValuationError(method, "no balance sheet", apperrors.ErrInsufficientData)
	}
	book := p.BookValue()
	if book <= 0 {
		return models.ValuationEstimate{}, apperrors.NewValuationError(method, "book value not positive", apperrors.ErrNumericDegenerate)
	}

	nav := book / p.SharesOutstanding
	var pb float64
	if p.CurrentPrice > 0 {
		pb = p.CurrentPrice / nav
	}

	return models.ValuationEstimate{
		Method:         models.MethodNAV,
		Success:        true,
		IntrinsicValue: nav,
		Confidence:     methodConfidence(confidenceInputs{priceToBook: pb}),
		Assumptions: models.Assumptions{
			BookValue:   book,
			PriceToBook: pb,
		},
	}, nil
}

// DDM values the dividend stream with the Gordon growth model. The required
// return is the cost of equity, floored at the discount floor and kept above
// the dividend growth rate.
func (e *Engine) DDM(p *models.FinancialProfile) (models.ValuationEstimate, error) {
	const method = string(models.MethodDDM)

	if p.DividendRate <= 0 {
		return models.ValuationEstimate{}, apperrors.NewValuationError(method, "no dividend paid", apperrors.ErrInsufficientData)
	}

	_, costOfEquity := e.WACC(p)
	r := math.Max(costOfEquity, e.cfg.DiscountFloor)
	g := e.cfg.DividendGrowth
	if r <= g {
		r = g + e.cfg.DividendSpread
	}

	return models.ValuationEstimate{
		Method:         models.MethodDDM,
		Success:        true,
		IntrinsicValue: p.DividendRate * (1 + g) / (r - g),
		Confidence:     methodConfidence(confidenceInputs{growth: g}),
		Assumptions: models.Assumptions{
			CostOfEquity: r,
			GrowthRate:   g,
			Dividend:     p.DividendRate,
		},
	}, nil
}
