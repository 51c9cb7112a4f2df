package valuation

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

	"fairvalue-engine/internal/models"
)

func newTestEngine() *Engine {
	return NewEngine(DefaultConfig(), zerolog.Nop())
}

// growingProfile has five years of free cash flow growing 8% a year.
func growingProfile() *models.FinancialProfile {
	fcf := make([]float64, 5)
	for i := range fcf {
		fcf[i] = 2e9 * math.Pow(1.08, float64(i))
	}
	return &models.FinancialProfile{
		Symbol:            "ACME",
		CurrentPrice:      50,
		SharesOutstanding: 1e9,
		Beta:              1.1,
		TotalDebt:         5e9,
		Cash:              2e9,
		TaxRate:           0.21,
		FreeCashFlows:     fcf,
		EPSHistory:        []float64{2.0, 2.2, 2.4, 2.6, 2.8},
		TotalAssets:       100e9,
		IntangibleAssets:  10e9,
		TotalLiabilities:  40e9,
		DividendRate:      2,
	}
}

func TestProperty_DCFMonotonicInGrowth(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	e := newTestEngine()

	properties.Property("enterprise value is non-decreasing in growth", prop.ForAll(
		func(fcf, g1, g2, rate float64) bool {
			lo, hi := math.Min(g1, g2), math.Max(g1, g2)
			vLo, ok1 := e.EnterpriseValue(fcf, lo, rate, 0.025)
			vHi, ok2 := e.EnterpriseValue(fcf, hi, rate, 0.025)
			return ok1 && ok2 && vHi >= vLo
		},
		gen.Float64Range(1e6, 1e10),
		gen.Float64Range(-0.10, 0.25),
		gen.Float64Range(-0.10, 0.25),
		gen.Float64Range(0.07, 0.20),
	))

	properties.Property("enterprise value is non-increasing in discount rate", prop.ForAll(
		func(fcf, growth, r1, r2 float64) bool {
			lo, hi := math.Min(r1, r2), math.Max(r1, r2)
			vLo, ok1 := e.EnterpriseValue(fcf, growth, lo, 0.025)
			vHi, ok2 := e.EnterpriseValue(fcf, growth, hi, 0.025)
			return ok1 && ok2 && vHi <= vLo
		},
		gen.Float64Range(1e6, 1e10),
		gen.Float64Range(-0.10, 0.25),
		gen.Float64Range(0.07, 0.20),
		gen.Float64Range(0.07, 0.20),
	))

	properties.TestingRun(t)
}

func TestDCFMonotonicGrid(t *testing.T) {
	e := newTestEngine()
	growths := []float64{-0.05, 0, 0.02, 0.05, 0.08, 0.12, 0.20, 0.25}
	rates := []float64{0.07, 0.08, 0.10, 0.12, 0.15, 0.20}

	for _, r := range rates {
		prev := math.Inf(-1)
		for _, g := range growths {
			v, ok := e.EnterpriseValue(1e9, g, r, 0.025)
			require.True(t, ok)
			assert.GreaterOrEqual(t, v, prev, "rate=%v growth=%v", r, g)
			prev = v
		}
	}
	for _, g := range growths {
		prev := math.Inf(1)
		for _, r := range rates {
			v, _ := e.EnterpriseValue(1e9, g, r, 0.025)
			assert.LessOrEqual(t, v, prev, "rate=%v growth=%v", r, g)
			prev = v
		}
	}
}

func TestDCFEndToEndProfile(t *testing.T) {
	est, err := newTestEngine().DCF(growingProfile())
	require.NoError(t, err)

	assert.True(t, est.Success)
	assert.Positive(t, est.IntrinsicValue)
	assert.InDelta(t, 0.7, est.Confidence, 1e-9)
	assert.InDelta(t, 0.08, est.Assumptions.GrowthRate, 1e-9)
	assert.GreaterOrEqual(t, est.Assumptions.DiscountRate, 0.07)
	assert.LessOrEqual(t, est.Assumptions.DiscountRate, 0.20)
	assert.InDelta(t, 0.09, est.Assumptions.CostOfEquity, 1e-12)

	s := est.Sensitivity
	require.NotNil(t, s)
	assert.Len(t, s.Grid, 5)
	assert.Less(t, s.Min, est.IntrinsicValue)
	assert.Greater(t, s.Max, est.IntrinsicValue)
	assert.GreaterOrEqual(t, s.Lower95, s.Min)
	assert.LessOrEqual(t, s.Upper95, s.Max)
	assert.InDelta(t, est.Assumptions.DiscountRate*0.8, s.DiscountRates[0], 1e-12)
	assert.InDelta(t, 0.025*1.5, s.GrowthRates[4], 1e-12)
}

func TestDCFFailures(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		name   string
		mutate func(p *models.FinancialProfile)
		reason string
	}{
		{"no shares", func(p *models.FinancialProfile) { p.SharesOutstanding = 0 }, "shares outstanding not positive"},
		{"negative fcf", func(p *models.FinancialProfile) { p.FreeCashFlows = []float64{1e9, -2e8} }, "free cash flow not positive"},
		{"no fcf", func(p *models.FinancialProfile) { p.FreeCashFlows = nil }, "no free cash flow history"},
		{"debt swamps value", func(p *models.FinancialProfile) { p.TotalDebt = 1e13 }, "equity value not positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := growingProfile()
			tt.mutate(p)
			_, err := e.DCF(p)
			require.Error(t, err)

			est, ok := Find(e.Estimate(p), models.MethodDCF)
			require.True(t, ok)
			assert.False(t, est.Success)
			assert.Equal(t, tt.reason, est.Reason)
		})
	}
}

func TestWACCBounds(t *testing.T) {
	e := newTestEngine()

	low := &models.FinancialProfile{CurrentPrice: 1, SharesOutstanding: 1, Beta: 0.1, TotalDebt: 100}
	rate, _ := e.WACC(low)
	assert.Equal(t, 0.07, rate)

	high := &models.FinancialProfile{CurrentPrice: 1, SharesOutstanding: 1, Beta: 5}
	rate, coe := e.WACC(high)
	assert.Equal(t, 0.20, rate)
	assert.InDelta(t, 0.285, coe, 1e-12)
}

func TestFCFGrowth(t *testing.T) {
	e := newTestEngine()
	assert.Equal(t, 0.05, e.FCFGrowth([]float64{1e9}))
	assert.Equal(t, 0.05, e.FCFGrowth([]float64{-1, -2}))
	assert.Equal(t, 0.25, e.FCFGrowth([]float64{1, 2, 4}))
	assert.Equal(t, 0.02, e.FCFGrowth([]float64{10, 9, 8}))
	assert.InDelta(t, 0.10, e.FCFGrowth([]float64{100, 110, 121}), 1e-12)
}

func TestEarningsMultiple(t *testing.T) {
	est, err := newTestEngine().EarningsMultiple(growingProfile())
	require.NoError(t, err)

	g := math.Pow(2.8/2.0, 0.25) - 1
	multiple := 8.5 + 2*g*100
	assert.InDelta(t, g, est.Assumptions.GrowthRate, 1e-12)
	assert.InDelta(t, multiple, est.Assumptions.Multiple, 1e-9)
	assert.InDelta(t, 2.4*multiple, est.IntrinsicValue, 1e-9)
	assert.InDelta(t, 0.7, est.Confidence, 1e-9)
}

func TestEarningsMultipleDecliningEarningsFails(t *testing.T) {
	p := growingProfile()
	p.EPSHistory = []float64{4, 3, 2}

	_, err := newTestEngine().EarningsMultiple(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "implied multiple not positive")
}

func TestEPSGrowthBounds(t *testing.T) {
	e := newTestEngine()
	assert.Equal(t, 0.20, e.EPSGrowth([]float64{1, 10}))
	assert.Equal(t, -0.10, e.EPSGrowth([]float64{10, 1}))
	assert.Equal(t, 0.05, e.EPSGrowth([]float64{-1, 2}))
	assert.Equal(t, 0.05, e.EPSGrowth([]float64{3}))
}

func TestTrimmedMeanEPS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutlierSigma = 2
	e := NewEngine(cfg, zerolog.Nop())

	mean, dropped := e.TrimmedMeanEPS([]float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 50})
	assert.Equal(t, 1.0, mean)
	assert.Equal(t, 1, dropped)

	cfg.OutlierSigma = 0.9
	e = NewEngine(cfg, zerolog.Nop())
	mean, dropped = e.TrimmedMeanEPS([]float64{1, 1, 1, 1, 1, 20, 20, 20, 20, 20})
	assert.InDelta(t, 10.5, mean, 1e-12)
	assert.Zero(t, dropped)
}

func TestNAV(t *testing.T) {
	est, err := newTestEngine().NAV(growingProfile())
	require.NoError(t, err)
	assert.InDelta(t, 50, est.IntrinsicValue, 1e-9)
	assert.InDelta(t, 1, est.Assumptions.PriceToBook, 1e-12)
	assert.InDelta(t, 0.5, est.Confidence, 1e-12)

	p := growingProfile()
	p.TotalLiabilities = 95e9
	_, err = newTestEngine().NAV(p)
	assert.Error(t, err)
}

func TestDDM(t *testing.T) {
	e := newTestEngine()
	est, err := e.DDM(growingProfile())
	require.NoError(t, err)
	assert.InDelta(t, 2*1.03/(0.09-0.03), est.IntrinsicValue, 1e-9)

	cfg := DefaultConfig()
	cfg.DividendGrowth = 0.12
	est, err = NewEngine(cfg, zerolog.Nop()).DDM(growingProfile())
	require.NoError(t, err)
	assert.InDelta(t, 0.14, est.Assumptions.CostOfEquity, 1e-12)
	assert.InDelta(t, 2*1.12/0.02, est.IntrinsicValue, 1e-6)

	p := growingProfile()
	p.DividendRate = 0
	_, err = e.DDM(p)
	assert.Error(t, err)
}

func TestMethodConfidence(t *testing.T) {
	tests := []struct {
		name string
		in   confidenceInputs
		want float64
	}{
		{"baseline", confidenceInputs{}, 0.5},
		{"full data", confidenceInputs{hasGrowth: true, fullHistory: true}, 0.7},
		{"aggressive growth", confidenceInputs{hasGrowth: true, growth: 0.25}, 0.5},
		{"extreme growth", confidenceInputs{growth: 0.35}, 0.3},
		{"rich multiple", confidenceInputs{earnings: 45}, 0.4},
		{"thin multiple", confidenceInputs{earnings: 4}, 0.4},
		{"book premium", confidenceInputs{priceToBook: 12}, 0.4},
		{"deep discount", confidenceInputs{priceToBook: 0.3}, 0.4},
		{"everything wrong", confidenceInputs{growth: 0.4, earnings: 50, priceToBook: 20}, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, methodConfidence(tt.in), 1e-12)
		})
	}
}

func TestEstimateNilProfile(t *testing.T) {
	estimates := newTestEngine().Estimate(nil)
	require.Len(t, estimates, 4)
	for _, est := range estimates {
		assert.False(t, est.Success)
		assert.Equal(t, "no financial profile", est.Reason)
	}
	assert.Equal(t, models.MethodDCF, estimates[0].Method)
	assert.Equal(t, models.MethodDDM, estimates[3].Method)
}
