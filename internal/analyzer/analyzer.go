// Package analyzer runs the full valuation pipeline for a symbol: fetch,
// value, predict, blend, score and cache.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fairvalue-engine/internal/analysis/features"
	"fairvalue-engine/internal/analysis/fundamental"
	"fairvalue-engine/internal/analysis/risk"
	"fairvalue-engine/internal/analysis/scoring"
	"fairvalue-engine/internal/consensus"
	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/logging"
	"fairvalue-engine/internal/marketdata"
	"fairvalue-engine/internal/ml"
	"fairvalue-engine/internal/models"
	"fairvalue-engine/internal/security"
	"fairvalue-engine/internal/store"
	"fairvalue-engine/internal/valuation"
)

// Config is the [analysis] configuration section.
type Config struct {
	Workers        int    `mapstructure:"workers"`
	HistoryDays    int    `mapstructure:"history_days"`
	DefaultQuality string `mapstructure:"default_quality"`
}

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		HistoryDays:    365,
		DefaultQuality: string(models.QualityMedium),
	}
}

// Request describes one analysis.
type Request struct {
	Symbol  string
	Quality models.QualityTier
	// CompanyType and FundamentalScore override the fundamental collaborator when set.
	CompanyType      models.CompanyType
	FundamentalScore *float64
	// PortfolioValue enables position sizing when positive.
	PortfolioValue float64
	// Refresh bypasses the report cache.
	Refresh bool
}

// Dependencies are the collaborators an Analyzer runs.
type Dependencies struct {
	Provider  marketdata.Provider
	Cache     store.DataStore
	CacheTTL  store.Config
	Valuation *valuation.Engine
	Blender   *consensus.Blender
	Ensemble  *ml.Ensemble
	Scorer    *scoring.Scorer
}

// Analyzer orchestrates the pipeline. It is safe for concurrent use.
type Analyzer struct {
	cfg  Config
	deps Dependencies
	log  zerolog.Logger
	now  func() time.Time
}

// New creates an analyzer. Cache may be nil.
func New(cfg Config, deps Dependencies, logger zerolog.Logger) *Analyzer {
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = DefaultConfig().HistoryDays
	}
	return &Analyzer{
		cfg:  cfg,
		deps: deps,
		log:  logging.WithComponent(logger, "analyzer"),
		now:  time.Now,
	}
}

// Analyze returns the report for one symbol. Component failures degrade the
// report; only a total absence of data, upstream failures on both inputs, or
// cancellation surface as errors.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*models.Report, error) {
	symbol, err := security.ValidateSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	req.Symbol = symbol
	if req.Quality == "" {
		req.Quality = a.defaultQuality()
	}
	logger := logging.WithSymbol(a.log, req.Symbol)

	if report, ok := a.fromCache(ctx, req, logger); ok {
		return report, nil
	}

	report, err := a.compute(ctx, req, logger)
	if err != nil {
		return nil, err
	}

	if a.deps.Cache != nil {
		if err := a.deps.Cache.PutReport(ctx, report); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache report")
		}
	}
	return report, nil
}

func (a *Analyzer) defaultQuality() models.QualityTier {
	if tier, err := consensus.ParseQuality(a.cfg.DefaultQuality); err == nil {
		return tier
	}
	return models.QualityMedium
}

// fromCache serves a fresh cached report, or reprices one whose price is stale.
func (a *Analyzer) fromCache(ctx context.Context, req Request, logger zerolog.Logger) (*models.Report, bool) {
	if a.deps.Cache == nil || req.Refresh {
		return nil, false
	}
	cached, err := a.deps.Cache.GetReport(ctx, req.Symbol)
	if err != nil {
		if !errors.Is(err, apperrors.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("Report cache unavailable")
		}
		return nil, false
	}

	now := a.now()
	switch cached.Freshness(now, a.deps.CacheTTL) {
	case store.Fresh:
		logger.Debug().Msg("Serving cached report")
		report := cached.Report
		a.finish(report, req, report.Consensus.CurrentPrice)
		return report, true

	case store.StalePrice:
		price, err := a.deps.Provider.Quote(ctx, req.Symbol)
		if err != nil {
			logger.Warn().Err(err).Msg("Price refresh failed, recomputing report")
			return nil, false
		}
		report := cached.Report
		report.PricedAt = now
		a.finish(report, req, price)
		logger.Debug().Float64("price", price).Msg("Repriced cached report")
		if err := a.deps.Cache.PutReport(ctx, report); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache repriced report")
		}
		return report, true
	}
	return nil, false
}

// compute runs the whole pipeline from upstream data.
func (a *Analyzer) compute(ctx context.Context, req Request, logger zerolog.Logger) (*models.Report, error) {
	var (
		profile    *models.FinancialProfile
		history    []models.Candle
		profileErr error
		historyErr error
	)

	fetch, fetchCtx := errgroup.WithContext(ctx)
	fetch.Go(func() error {
		profile, profileErr = a.deps.Provider.Profile(fetchCtx, req.Symbol)
		return nil
	})
	fetch.Go(func() error {
		history, historyErr = a.deps.Provider.History(fetchCtx, req.Symbol, a.cfg.HistoryDays)
		return nil
	})
	_ = fetch.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if profile == nil && len(history) == 0 {
		if cause := errors.Join(profileErr, historyErr); cause != nil {
			return nil, fmt.Errorf("%w for %s: %w", apperrors.ErrNoUsableData, req.Symbol, cause)
		}
		return nil, apperrors.Wrapf(apperrors.ErrNoUsableData, "no profile or price history for %s", req.Symbol)
	}

	report := &models.Report{
		ID:          uuid.New().String(),
		Symbol:      req.Symbol,
		GeneratedAt: a.now(),
	}
	report.PricedAt = report.GeneratedAt

	if profileErr != nil || profile == nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("fundamental profile unavailable: %v", profileErr))
	}
	if historyErr != nil || len(history) == 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("price history unavailable: %v", historyErr))
	}

	price := currentPrice(profile, history)
	if profile != nil && profile.CurrentPrice != price {
		p := *profile
		p.CurrentPrice = price
		profile = &p
	}
	report.Profile = profile

	// Valuation and prediction are independent.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report.Estimates = a.deps.Valuation.Estimate(profile)
		return nil
	})
	g.Go(func() error {
		if len(history) == 0 {
			report.Prediction = models.NeutralPrediction("no price history")
			return nil
		}
		pred, err := a.deps.Ensemble.Predict(gctx, history, features.Options{})
		report.Prediction = pred
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Consensus = a.deps.Blender.Blend(req.Symbol, report.Estimates, price)
	if !report.Consensus.Success() {
		report.Warnings = append(report.Warnings, "no valuation method succeeded")
	}
	if report.Prediction.Degraded {
		report.Warnings = append(report.Warnings, "prediction degraded: "+report.Prediction.Reason)
	}

	metrics, err := risk.Calculate(req.Symbol, history)
	if err != nil {
		report.Warnings = append(report.Warnings, "risk metrics unavailable: "+err.Error())
	}
	report.Risk = metrics

	var inputs *models.FundamentalInputs
	if profile != nil {
		inputs = profile.Fundamentals
	}
	report.Fundamental = fundamental.Score(inputs)

	report.Degraded = len(report.Warnings) > 0
	a.finish(report, req, price)
	return report, nil
}

// finish derives every price- and request-dependent part of the report:
// consensus margins, safety assessment, position size and integrated score.
func (a *Analyzer) finish(report *models.Report, req Request, price float64) {
	logger := logging.WithSymbol(a.log, report.Symbol)

	if price > 0 && price != report.Consensus.CurrentPrice {
		report.Consensus = a.deps.Blender.Reprice(report.Consensus, price)
	}
	report.Safety = a.deps.Blender.Assess(report.Consensus, req.Quality)

	report.Position = nil
	if req.PortfolioValue > 0 {
		pos, err := a.deps.Blender.PositionSize(report.Consensus, report.Safety, req.PortfolioValue)
		if err != nil {
			logger.Debug().Err(err).Msg("Position sizing skipped")
		} else {
			report.Position = pos
		}
	}

	fund := report.Fundamental
	if req.FundamentalScore != nil {
		fund.Score = *req.FundamentalScore
		fund.Basis = "caller supplied"
	}
	if req.CompanyType != "" {
		fund.CompanyType = req.CompanyType
	}

	report.Score = a.deps.Scorer.Score(scoring.Inputs{
		Fundamental: fund,
		Prediction:  report.Prediction,
		Consensus:   report.Consensus,
		Risk:        report.Risk,
	})

	logging.LogRecommendation(logger, report.Symbol, string(report.Score.Recommendation.Action),
		report.Score.FinalScore, string(report.Consensus.PrimaryMethod))
}

// currentPrice prefers the profile price and falls back to the last close.
func currentPrice(profile *models.FinancialProfile, history []models.Candle) float64 {
	if profile != nil && profile.CurrentPrice > 0 {
		return profile.CurrentPrice
	}
	if n := len(history); n > 0 {
		return history[n-1].Close
	}
	return 0
}
