// Package fundamental derives the fundamental sub-score and company type.
package fundamental

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"fairvalue-engine/internal/models"
)

const (
	// excellentROTC is the return on tangible capital (percent) that scores full marks.
	excellentROTC = 15.0
	// excellentGrowth is the revenue growth (percent) that scores full marks.
	excellentGrowth = 30.0
)

// Score classifies the company and scores it in [0, 100]. A positive latest
// return on tangible capital marks a value company scored on ROTC; otherwise
// the company is scored as a growth company on revenue growth and cash flow.
// Without inputs the result is a neutral value score of 50.
func Score(in *models.FundamentalInputs) models.FundamentalScore {
	if in == nil || (len(in.ROTC) == 0 && len(in.RevenueGrowth) == 0) {
		return models.FundamentalScore{Score: 50, CompanyType: models.CompanyValue, Basis: "neutral (no fundamental inputs)"}
	}

	if n := len(in.ROTC); n > 0 && in.ROTC[n-1] > 0 {
		latest := in.ROTC[n-1]
		improving := n > 1 && latest-in.ROTC[0] > 0
		rotcScore := clamp01(latest / excellentROTC)
		return models.FundamentalScore{
			Score:       (rotcScore*0.7 + trendScore(improving)*0.3) * 100,
			CompanyType: models.CompanyValue,
			Improving:   improving,
			Basis:       "return on tangible capital",
		}
	}

	var avgGrowth float64
	improving := false
	if n := len(in.RevenueGrowth); n > 0 {
		avgGrowth = stat.Mean(in.RevenueGrowth, nil)
		improving = n > 1 && in.RevenueGrowth[n-1]-in.RevenueGrowth[0] > 0
	}
	cashFlow := 0.0
	if in.OperatingCashFlow > 0 {
		cashFlow = 1
	}

	return models.FundamentalScore{
		Score:       (clamp01(avgGrowth/excellentGrowth)*0.5 + cashFlow*0.3 + trendScore(improving)*0.2) * 100,
		CompanyType: models.CompanyGrowth,
		Improving:   improving,
		Basis:       "revenue growth",
	}
}

func trendScore(improving bool) float64 {
	if improving {
		return 1
	}
	return 0.5
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(v, 1))
}
