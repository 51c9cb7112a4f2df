// Package models provides domain models for the valuation and scoring pipeline.
package models

import (
	"time"
)

// Candle represents OHLCV data for one trading day.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// Closes extracts close prices from candles.
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

// DailyReturns returns simple close-to-close returns. The result has one
// element less than candles; non-positive previous closes yield 0.
func DailyReturns(candles []Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	returns := make([]float64, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev > 0 {
			returns[i-1] = candles[i].Close/prev - 1
		}
	}
	return returns
}

// FinancialProfile is an immutable fundamentals snapshot for one symbol.
// Histories are ordered oldest first.
type FinancialProfile struct {
	Symbol            string    `json:"symbol"`
	CurrentPrice      float64   `json:"current_price"`
	SharesOutstanding float64   `json:"shares_outstanding"`
	Beta              float64   `json:"beta"`
	TotalDebt         float64   `json:"total_debt"`
	Cash              float64   `json:"cash"`
	TaxRate           float64   `json:"tax_rate"`
	FreeCashFlows     []float64 `json:"free_cash_flows"`
	EPSHistory        []float64 `json:"eps_history"`
	TotalAssets       float64   `json:"total_assets"`
	IntangibleAssets  float64   `json:"intangible_assets"`
	TotalLiabilities  float64   `json:"total_liabilities"`
	DividendRate      float64   `json:"dividend_rate"`

	// Inputs for the fundamental collaborator, when the source provides them.
	Fundamentals *FundamentalInputs `json:"fundamentals,omitempty"`

	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

// NetDebt returns total debt minus cash.
func (p *FinancialProfile) NetDebt() float64 {
	return p.TotalDebt - p.Cash
}

// MarketCap returns price times shares outstanding.
func (p *FinancialProfile) MarketCap() float64 {
	return p.CurrentPrice * p.SharesOutstanding
}

// BookValue returns tangible book value (assets less intangibles less liabilities).
func (p *FinancialProfile) BookValue() float64 {
	return p.TotalAssets - p.IntangibleAssets - p.TotalLiabilities
}

// LatestEPS returns the most recent EPS observation, or 0.
func (p *FinancialProfile) LatestEPS() float64 {
	if len(p.EPSHistory) == 0 {
		return 0
	}
	return p.EPSHistory[len(p.EPSHistory)-1]
}

// LatestFCF returns the most recent free cash flow, or 0.
func (p *FinancialProfile) LatestFCF() float64 {
	if len(p.FreeCashFlows) == 0 {
		return 0
	}
	return p.FreeCashFlows[len(p.FreeCashFlows)-1]
}

// CompanyType selects the adaptive score weights.
type CompanyType string

const (
	CompanyValue  CompanyType = "value"
	CompanyGrowth CompanyType = "growth"
)

// FundamentalInputs feeds the fundamental sub-score. Percent values, oldest first.
type FundamentalInputs struct {
	ROTC              []float64 `json:"rotc"`
	RevenueGrowth     []float64 `json:"revenue_growth"`
	OperatingCashFlow float64   `json:"operating_cash_flow"`
}

// FundamentalScore is the upstream fundamental signal consumed by scoring.
type FundamentalScore struct {
	Score       float64     `json:"score"`
	CompanyType CompanyType `json:"company_type"`
	Improving   bool        `json:"improving"`
	Basis       string      `json:"basis"`
}

// RiskLevel is a coarse volatility bucket.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
)

// RiskMetrics are trailing one-year risk statistics. Percent units except Sharpe.
type RiskMetrics struct {
	Volatility    float64   `json:"volatility"`
	MaxDrawdown   float64   `json:"max_drawdown"`
	VaR95         float64   `json:"var_95"`
	SharpeRatio   float64   `json:"sharpe_ratio"`
	AverageReturn float64   `json:"avg_return"`
	RiskLevel     RiskLevel `json:"risk_level"`
	Observations  int       `json:"observations"`
}
