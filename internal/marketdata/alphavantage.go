package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/logging"
	"fairvalue-engine/internal/models"
	"fairvalue-engine/internal/performance"
	"fairvalue-engine/internal/security"
)

// AlphaVantageProvider reads company fundamentals from the Alpha Vantage API.
type AlphaVantageProvider struct {
	client  *resty.Client
	apiKey  string
	limiter *performance.RateLimiter
	logger  zerolog.Logger
}

// NewAlphaVantageProvider creates an Alpha Vantage provider rooted at baseURL.
func NewAlphaVantageProvider(baseURL, apiKey string, timeout time.Duration, limiter *performance.RateLimiter, logger zerolog.Logger) *AlphaVantageProvider {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)

	return &AlphaVantageProvider{
		client:  client,
		apiKey:  apiKey,
		limiter: limiter,
		logger:  logging.WithComponent(logger, "alphavantage"),
	}
}

// Name returns the source name.
func (a *AlphaVantageProvider) Name() string {
	return "alphavantage"
}

type avOverview struct {
	Symbol            string `json:"Symbol"`
	Beta              string `json:"Beta"`
	SharesOutstanding string `json:"SharesOutstanding"`
	DividendPerShare  string `json:"DividendPerShare"`
}

type avCashFlowReport struct {
	FiscalDateEnding    string `json:"fiscalDateEnding"`
	OperatingCashflow   string `json:"operatingCashflow"`
	CapitalExpenditures string `json:"capitalExpenditures"`
}

type avBalanceReport struct {
	FiscalDateEnding                  string `json:"fiscalDateEnding"`
	TotalAssets                       string `json:"totalAssets"`
	IntangibleAssets                  string `json:"intangibleAssets"`
	IntangibleAssetsExcludingGoodwill string `json:"intangibleAssetsExcludingGoodwill"`
	Goodwill                          string `json:"goodwill"`
	TotalLiabilities                  string `json:"totalLiabilities"`
	TotalCurrentLiabilities           string `json:"totalCurrentLiabilities"`
	Cash                              string `json:"cashAndCashEquivalentsAtCarryingValue"`
	ShortLongTermDebtTotal            string `json:"shortLongTermDebtTotal"`
	LongTermDebt                      string `json:"longTermDebt"`
	ShortTermDebt                     string `json:"shortTermDebt"`
}

type avIncomeReport struct {
	FiscalDateEnding string `json:"fiscalDateEnding"`
	TotalRevenue     string `json:"totalRevenue"`
	IncomeBeforeTax  string `json:"incomeBeforeTax"`
	IncomeTaxExpense string `json:"incomeTaxExpense"`
	EBIT             string `json:"ebit"`
}

type avEarning struct {
	FiscalDateEnding string `json:"fiscalDateEnding"`
	ReportedEPS      string `json:"reportedEPS"`
}

// Profile assembles fundamentals from the overview, cash flow, balance sheet,
// earnings and income statement endpoints. The current price is left to the
// price source.
func (a *AlphaVantageProvider) Profile(ctx context.Context, symbol string) (*models.FinancialProfile, error) {
	var overview avOverview
	if err := a.query(ctx, "OVERVIEW", symbol, &overview); err != nil {
		return nil, err
	}
	if overview.Symbol == "" {
		return nil, apperrors.NewDataError("overview", symbol, "unknown symbol", apperrors.ErrSymbolNotFound)
	}

	var cashFlow struct {
		AnnualReports []avCashFlowReport `json:"annualReports"`
	}
	if err := a.query(ctx, "CASH_FLOW", symbol, &cashFlow); err != nil {
		return nil, err
	}
	var balance struct {
		AnnualReports []avBalanceReport `json:"annualReports"`
	}
	if err := a.query(ctx, "BALANCE_SHEET", symbol, &balance); err != nil {
		return nil, err
	}
	var earnings struct {
		AnnualEarnings []avEarning `json:"annualEarnings"`
	}
	if err := a.query(ctx, "EARNINGS", symbol, &earnings); err != nil {
		return nil, err
	}
	var income struct {
		AnnualReports []avIncomeReport `json:"annualReports"`
	}
	if err := a.query(ctx, "INCOME_STATEMENT", symbol, &income); err != nil {
		return nil, err
	}

	profile := &models.FinancialProfile{
		Symbol:            symbol,
		Beta:              parseNumber(overview.Beta),
		SharesOutstanding: parseNumber(overview.SharesOutstanding),
		DividendRate:      parseNumber(overview.DividendPerShare),
		Source:            a.Name(),
		FetchedAt:         time.Now().UTC(),
	}

	cf := cashFlow.AnnualReports
	sortOldestFirst(cf, func(r avCashFlowReport) string { return r.FiscalDateEnding })
	for _, r := range cf {
		capex := parseNumber(r.CapitalExpenditures)
		if capex < 0 {
			capex = -capex
		}
		profile.FreeCashFlows = append(profile.FreeCashFlows, parseNumber(r.OperatingCashflow)-capex)
	}

	bs := balance.AnnualReports
	sortOldestFirst(bs, func(r avBalanceReport) string { return r.FiscalDateEnding })
	if n := len(bs); n > 0 {
		latest := bs[n-1]
		profile.TotalAssets = parseNumber(latest.TotalAssets)
		profile.IntangibleAssets = intangibles(latest)
		profile.TotalLiabilities = parseNumber(latest.TotalLiabilities)
		profile.Cash = parseNumber(latest.Cash)
		profile.TotalDebt = debt(latest)
	}

	ea := earnings.AnnualEarnings
	sortOldestFirst(ea, func(r avEarning) string { return r.FiscalDateEnding })
	for _, e := range ea {
		if e.ReportedEPS == "" || e.ReportedEPS == "None" {
			continue
		}
		profile.EPSHistory = append(profile.EPSHistory, parseNumber(e.ReportedEPS))
	}

	is := income.AnnualReports
	sortOldestFirst(is, func(r avIncomeReport) string { return r.FiscalDateEnding })
	if n := len(is); n > 0 {
		if pretax := parseNumber(is[n-1].IncomeBeforeTax); pretax > 0 {
			profile.TaxRate = parseNumber(is[n-1].IncomeTaxExpense) / pretax
		}
	}
	profile.Fundamentals = fundamentalInputs(is, bs, cf)

	return profile, nil
}

// History is not served by this provider.
func (a *AlphaVantageProvider) History(_ context.Context, symbol string, _ int) ([]models.Candle, error) {
	return nil, apperrors.NewDataError("history", symbol, "alphavantage serves fundamentals only", apperrors.ErrInsufficientData)
}

// Quote is not served by this provider.
func (a *AlphaVantageProvider) Quote(_ context.Context, symbol string) (float64, error) {
	return 0, apperrors.NewDataError("quote", symbol, "alphavantage serves fundamentals only", apperrors.ErrInsufficientData)
}

func (a *AlphaVantageProvider) query(ctx context.Context, function, symbol string, out interface{}) error {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function": function,
			"symbol":   symbol,
			"apikey":   a.apiKey,
		}).
		Get("/query")
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.NewDataError(function, symbol, security.MaskSecrets(err.Error()), ErrTransient)
	}
	a.logger.Debug().
		Str("function", function).
		Str("symbol", symbol).
		Int("status", resp.StatusCode()).
		Dur("duration", time.Since(start)).
		Msg("Alpha Vantage response")

	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests:
		return apperrors.NewDataError(function, symbol, "HTTP 429", apperrors.ErrRateLimited)
	case code >= 500:
		return apperrors.NewDataError(function, symbol, fmt.Sprintf("HTTP %d", code), ErrTransient)
	case code != http.StatusOK:
		return apperrors.NewDataError(function, symbol, fmt.Sprintf("HTTP %d: %s", code, resp.String()), apperrors.ErrUpstreamUnavailable)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return apperrors.NewDataError(function, symbol, "malformed response: "+err.Error(), ErrTransient)
	}
	for _, key := range []string{"Note", "Information"} {
		if msg, ok := envelope[key]; ok {
			return apperrors.NewDataError(function, symbol, string(msg), apperrors.ErrRateLimited)
		}
	}
	if msg, ok := envelope["Error Message"]; ok {
		return apperrors.NewDataError(function, symbol, string(msg), apperrors.ErrSymbolNotFound)
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return apperrors.NewDataError(function, symbol, "malformed response: "+err.Error(), ErrTransient)
	}
	return nil
}

// fundamentalInputs derives revenue growth and return on tangible capital
// (EBIT over total assets less intangibles and current liabilities), oldest first.
func fundamentalInputs(income []avIncomeReport, balance []avBalanceReport, cashFlow []avCashFlowReport) *models.FundamentalInputs {
	in := &models.FundamentalInputs{}

	for i := 1; i < len(income); i++ {
		prev := parseNumber(income[i-1].TotalRevenue)
		cur := parseNumber(income[i].TotalRevenue)
		if prev > 0 {
			in.RevenueGrowth = append(in.RevenueGrowth, (cur/prev-1)*100)
		}
	}

	byDate := make(map[string]avBalanceReport, len(balance))
	for _, b := range balance {
		byDate[b.FiscalDateEnding] = b
	}
	for _, r := range income {
		b, ok := byDate[r.FiscalDateEnding]
		if !ok {
			continue
		}
		capital := parseNumber(b.TotalAssets) - intangibles(b) - parseNumber(b.TotalCurrentLiabilities)
		if capital > 0 {
			in.ROTC = append(in.ROTC, parseNumber(r.EBIT)/capital*100)
		}
	}

	if n := len(cashFlow); n > 0 {
		in.OperatingCashFlow = parseNumber(cashFlow[n-1].OperatingCashflow)
	}

	if len(in.ROTC) == 0 && len(in.RevenueGrowth) == 0 {
		return nil
	}
	return in
}

func intangibles(b avBalanceReport) float64 {
	v := parseNumber(b.IntangibleAssetsExcludingGoodwill) + parseNumber(b.Goodwill)
	if v == 0 {
		v = parseNumber(b.IntangibleAssets)
	}
	return v
}

func debt(b avBalanceReport) float64 {
	if total := parseNumber(b.ShortLongTermDebtTotal); total > 0 {
		return total
	}
	return parseNumber(b.LongTermDebt) + parseNumber(b.ShortTermDebt)
}

// parseNumber reads an Alpha Vantage numeric string. "None", "-" and empty
// strings read as zero.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "", "None", "-", "null":
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// sortOldestFirst orders reports by fiscal date (YYYY-MM-DD sorts lexically).
func sortOldestFirst[T any](reports []T, date func(T) string) {
	sort.SliceStable(reports, func(i, j int) bool {
		return date(reports[i]) < date(reports[j])
	})
}
