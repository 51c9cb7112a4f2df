package analyzer

import (
	"context"

	"fairvalue-engine/internal/models"
	"fairvalue-engine/internal/performance"
)

// BatchResult is the outcome for one symbol of a batch.
type BatchResult struct {
	Symbol string
	Report *models.Report
	Err    error
}

// AnalyzeBatch runs independent analyses on the worker pool. A failing symbol
// does not abort the batch; results keep the request order.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, reqs []Request) ([]BatchResult, error) {
	workers := a.cfg.Workers
	if workers <= 0 {
		workers = DefaultConfig().Workers
	}

	results, err := performance.Map(ctx, workers, reqs, func(ctx context.Context, req Request) BatchResult {
		report, err := a.Analyze(ctx, req)
		if err != nil {
			a.log.Warn().Err(err).Str("symbol", req.Symbol).Msg("Batch analysis failed for symbol")
		}
		return BatchResult{Symbol: req.Symbol, Report: report, Err: err}
	})
	for i := range results {
		if results[i].Symbol == "" {
			results[i].Symbol = reqs[i].Symbol
			if results[i].Report == nil && results[i].Err == nil {
				results[i].Err = ctx.Err()
			}
		}
	}
	return results, err
}
