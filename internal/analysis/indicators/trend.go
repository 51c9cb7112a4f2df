package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"fairvalue-engine/internal/models"
)

// MARatio is the simple moving average relative to the close, minus one.
type MARatio struct {
	period int
}

// NewMARatio creates a new moving-average ratio indicator.
func NewMARatio(period int) *MARatio {
	return &MARatio{period: period}
}

func (m *MARatio) Name() string {
	return fmt.Sprintf("ma_%d", m.period)
}

func (m *MARatio) Period() int {
	return m.period
}

func (m *MARatio) Calculate(candles []models.Candle) ([]float64, error) {
	if err := checkWindow(m.period, len(candles), 0); err != nil {
		return nil, err
	}

	closes := closePrices(candles)
	sma := talib.Sma(closes, m.period)
	result := make([]float64, len(closes))
	for i := range closes {
		result[i] = ratioMinusOne(sma[i], closes[i])
	}
	return nanPrefix(result, m.period-1), nil
}

// Trend is 1 when the close is above the close period days earlier, else 0.
type Trend struct {
	period int
}

// NewTrend creates a new trend indicator.
func NewTrend(period int) *Trend {
	return &Trend{period: period}
}

func (t *Trend) Name() string {
	return fmt.Sprintf("trend_%d", t.period)
}

func (t *Trend) Period() int {
	return t.period
}

func (t *Trend) Calculate(candles []models.Candle) ([]float64, error) {
	if err := checkWindow(t.period, len(candles), 1); err != nil {
		return nil, err
	}

	result := make([]float64, len(candles))
	for i := t.period; i < len(candles); i++ {
		if candles[i].Close > candles[i-t.period].Close {
			result[i] = 1
		}
	}
	return nanPrefix(result, t.period), nil
}
