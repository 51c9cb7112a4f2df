// Package risk computes trailing risk statistics from a price history.
package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/models"
)

const tradingDays = 252

// MinReturns is the fewest daily returns the metrics are computed from.
const MinReturns = 30

// Calculate returns volatility, drawdown, VaR, Sharpe ratio and average return
// over at most the trailing year of candles. All values except Sharpe are percentages.
func Calculate(symbol string, candles []models.Candle) (models.RiskMetrics, error) {
	if len(candles) > tradingDays+1 {
		candles = candles[len(candles)-tradingDays-1:]
	}

	returns := models.DailyReturns(candles)
	if len(returns) < MinReturns {
		return models.RiskMetrics{}, apperrors.NewDataError("risk", symbol,
			"need at least 30 daily returns", apperrors.ErrInsufficientData)
	}

	mean, std := stat.MeanStdDev(returns, nil)
	annualVol := std * math.Sqrt(tradingDays) * 100

	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	var95 := stat.Quantile(0.05, stat.Empirical, sorted, nil) * 100

	var sharpe float64
	if std != 0 {
		sharpe = mean * math.Sqrt(tradingDays) / std
	}

	return models.RiskMetrics{
		Volatility:    clamp(annualVol, 0, 100),
		MaxDrawdown:   clamp(MaxDrawdown(models.Closes(candles)), -100, 0),
		VaR95:         clamp(var95, -50, 0),
		SharpeRatio:   clamp(sharpe, -3, 3),
		AverageReturn: clamp(mean*tradingDays*100, -100, 100),
		RiskLevel:     Level(annualVol),
		Observations:  len(returns),
	}, nil
}

// MaxDrawdown returns the largest peak-to-trough decline in percent (<= 0).
func MaxDrawdown(closes []float64) float64 {
	var peak, worst float64
	for _, c := range closes {
		if c > peak {
			peak = c
		}
		if peak > 0 {
			if dd := (c - peak) / peak; dd < worst {
				worst = dd
			}
		}
	}
	return worst * 100
}

// Level buckets annualized volatility in percent.
func Level(volatilityPct float64) models.RiskLevel {
	switch {
	case volatilityPct > 30:
		return models.RiskHigh
	case volatilityPct > 15:
		return models.RiskModerate
	default:
		return models.RiskLow
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
