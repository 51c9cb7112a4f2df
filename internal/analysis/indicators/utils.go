package indicators

import (
	"errors"
	"math"

	"fairvalue-engine/internal/models"
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
)

// checkWindow validates a period against the available candles.
func checkWindow(period, n, extra int) error {
	if period <= 0 {
		return ErrInvalidPeriod
	}
	if n < period+extra {
		return ErrInsufficientData
	}
	return nil
}

// mean calculates the arithmetic mean of a slice of float64.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// nanPrefix overwrites the first n values with NaN.
func nanPrefix(values []float64, n int) []float64 {
	for i := 0; i < n && i < len(values); i++ {
		values[i] = math.NaN()
	}
	return values
}

// ratioMinusOne returns num/den - 1, or NaN when den is not positive.
func ratioMinusOne(num, den float64) float64 {
	if den <= 0 || math.IsNaN(num) {
		return math.NaN()
	}
	return num/den - 1
}

// closePrices extracts close prices from candles.
func closePrices(candles []models.Candle) []float64 {
	return models.Closes(candles)
}

// highPrices extracts high prices from candles.
func highPrices(candles []models.Candle) []float64 {
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.High
	}
	return prices
}

// lowPrices extracts low prices from candles.
func lowPrices(candles []models.Candle) []float64 {
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.Low
	}
	return prices
}

// volumes extracts volumes from candles as floats.
func volumes(candles []models.Candle) []float64 {
	vols := make([]float64, len(candles))
	for i, c := range candles {
		vols[i] = float64(c.Volume)
	}
	return vols
}
