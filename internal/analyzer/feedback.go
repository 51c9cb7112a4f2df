package analyzer

import (
	"context"

	"fairvalue-engine/internal/analysis/scoring"
	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/security"
	"fairvalue-engine/internal/store"
)

// RecordFeedback stores whether the user acted on the latest cached
// recommendation for symbol.
func (a *Analyzer) RecordFeedback(ctx context.Context, symbol string, acted bool) (store.Feedback, error) {
	if a.deps.Cache == nil {
		return store.Feedback{}, apperrors.Wrap(apperrors.ErrDatabaseError, "feedback requires the report store")
	}
	symbol, err := security.ValidateSymbol(symbol)
	if err != nil {
		return store.Feedback{}, err
	}
	cached, err := a.deps.Cache.GetReport(ctx, symbol)
	if err != nil {
		return store.Feedback{}, apperrors.Wrapf(err, "no analyzed recommendation for %s", symbol)
	}
	return a.deps.Cache.RecordFeedback(ctx, store.FeedbackFromScore(symbol, cached.Report.Score, acted))
}

// AdaptWeights moves the current weight profile toward the component scores
// of acted-on recommendations and stores the result.
func (a *Analyzer) AdaptWeights(ctx context.Context, alpha float64) (*store.StoredProfile, error) {
	if a.deps.Cache == nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabaseError, "weight adaptation requires the report store")
	}
	importance, n, err := a.deps.Cache.FeedbackImportance(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInsufficientData, "no acted-on feedback recorded")
	}

	current := a.deps.Scorer.Profile()
	if latest, err := a.deps.Cache.LatestWeightProfile(ctx); err != nil {
		return nil, err
	} else if latest != nil {
		current = latest.Profile
	}

	adapted := current.Adapt(importance, alpha)
	a.log.Info().
		Int("samples", n).
		Float64("alpha", alpha).
		Interface("weights", adapted).
		Msg("Adapted score weights")
	return a.deps.Cache.SaveWeightProfile(ctx, adapted, n)
}

// CurrentWeights returns the stored profile when one exists, else the scorer's.
func (a *Analyzer) CurrentWeights(ctx context.Context) (scoring.WeightProfile, error) {
	if a.deps.Cache != nil {
		latest, err := a.deps.Cache.LatestWeightProfile(ctx)
		if err != nil {
			return scoring.WeightProfile{}, err
		}
		if latest != nil {
			return latest.Profile, nil
		}
	}
	return a.deps.Scorer.Profile(), nil
}
