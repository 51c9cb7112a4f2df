package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"fairvalue-engine/internal/models"
)

// RSI calculates the Relative Strength Index with Wilder smoothing.
// Values before the first full window are NaN.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("rsi_%d", r.period)
}

func (r *RSI) Period() int {
	return r.period
}

func (r *RSI) Calculate(candles []models.Candle) ([]float64, error) {
	if err := checkWindow(r.period, len(candles), 1); err != nil {
		return nil, err
	}

	n := len(candles)
	result := make([]float64, n)
	closes := closePrices(candles)

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	// First average using SMA
	avgGain := mean(gains[1 : r.period+1])
	avgLoss := mean(losses[1 : r.period+1])
	result[r.period] = rsiValue(avgGain, avgLoss)

	for i := r.period + 1; i < n; i++ {
		avgGain = (avgGain*float64(r.period-1) + gains[i]) / float64(r.period)
		avgLoss = (avgLoss*float64(r.period-1) + losses[i]) / float64(r.period)
		result[i] = rsiValue(avgGain, avgLoss)
	}

	return nanPrefix(result, r.period), nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ROC calculates the rate of change over a period as a fraction.
type ROC struct {
	period int
}

// NewROC creates a new rate-of-change indicator.
func NewROC(period int) *ROC {
	return &ROC{period: period}
}

func (r *ROC) Name() string {
	return fmt.Sprintf("roc_%d", r.period)
}

func (r *ROC) Period() int {
	return r.period
}

func (r *ROC) Calculate(candles []models.Candle) ([]float64, error) {
	if err := checkWindow(r.period, len(candles), 1); err != nil {
		return nil, err
	}

	roc := talib.Roc(closePrices(candles), r.period)
	for i := range roc {
		roc[i] /= 100
	}
	return nanPrefix(roc, r.period), nil
}
