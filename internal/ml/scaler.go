package ml

import (
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers columns to zero mean and unit variance.
// Zero-variance columns are left centered with scale 1.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler computes column means and population standard deviations.
func FitScaler(rows [][]float64) *StandardScaler {
	if len(rows) == 0 {
		return &StandardScaler{}
	}
	width := len(rows[0])
	s := &StandardScaler{Mean: make([]float64, width), Scale: make([]float64, width)}
	col := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, row := range rows {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		s.Scale[j] = nonZeroScale(std)
	}
	return s
}

// Transform returns a scaled copy of rows.
func (s *StandardScaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = s.TransformRow(row)
	}
	return out
}

// TransformRow returns a scaled copy of one row.
func (s *StandardScaler) TransformRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// TargetScaler is the one-dimensional scaler used for regression targets.
type TargetScaler struct {
	Mean  float64
	Scale float64
}

// FitTargetScaler computes the mean and population standard deviation of y.
func FitTargetScaler(y []float64) TargetScaler {
	if len(y) == 0 {
		return TargetScaler{Scale: 1}
	}
	mean, std := stat.PopMeanStdDev(y, nil)
	return TargetScaler{Mean: mean, Scale: nonZeroScale(std)}
}

// Transform returns a scaled copy of y.
func (t TargetScaler) Transform(y []float64) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = (v - t.Mean) / t.Scale
	}
	return out
}

// Inverse maps a scaled value back to target units.
func (t TargetScaler) Inverse(v float64) float64 {
	return v*t.Scale + t.Mean
}

func nonZeroScale(std float64) float64 {
	if std == 0 || std != std {
		return 1
	}
	return std
}
