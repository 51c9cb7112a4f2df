// Package features builds the feature matrix used by the prediction ensemble.
package features

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"fairvalue-engine/internal/analysis/indicators"
	apperrors "fairvalue-engine/internal/errors"
	"fairvalue-engine/internal/models"
)

// Config controls which features are built.
type Config struct {
	MAWindows         []int   `mapstructure:"ma_windows"`
	ChannelWindows    []int   `mapstructure:"channel_windows"`
	VolumeWindows     []int   `mapstructure:"volume_windows"`
	RSIPeriod         int     `mapstructure:"rsi_period"`
	ROCPeriod         int     `mapstructure:"roc_period"`
	VarianceThreshold float64 `mapstructure:"variance_threshold"`
	Workers           int     `mapstructure:"workers"`
}

// DefaultConfig returns the default feature configuration.
func DefaultConfig() Config {
	return Config{
		MAWindows:         []int{5, 10, 20, 50},
		ChannelWindows:    []int{10, 20},
		VolumeWindows:     []int{5, 20},
		RSIPeriod:         14,
		ROCPeriod:         10,
		VarianceThreshold: 1e-4,
		Workers:           4,
	}
}

// Matrix is a time-indexed feature matrix. Every value is finite.
type Matrix struct {
	Names      []string
	Rows       [][]float64
	Timestamps []time.Time
	// Dropped lists columns removed by the variance filter.
	Dropped []string
	// FilterSkipped is set when the variance filter would have removed the majority.
	FilterSkipped bool
}

// Len returns the number of rows.
func (m *Matrix) Len() int {
	return len(m.Rows)
}

// Width returns the number of columns.
func (m *Matrix) Width() int {
	return len(m.Names)
}

// Latest returns the most recent row.
func (m *Matrix) Latest() []float64 {
	if len(m.Rows) == 0 {
		return nil
	}
	return m.Rows[len(m.Rows)-1]
}

// Column returns a copy of the named column, or nil.
func (m *Matrix) Column(name string) []float64 {
	for j, n := range m.Names {
		if n == name {
			col := make([]float64, len(m.Rows))
			for i, row := range m.Rows {
				col[i] = row[j]
			}
			return col
		}
	}
	return nil
}

// Options carries optional inputs for Build.
type Options struct {
	// Sentiment is an external score per candle. Ignored unless its length matches.
	Sentiment []float64
}

// Builder turns a price/volume history into a feature matrix.
type Builder struct {
	cfg    Config
	engine *indicators.Engine
}

// NewBuilder creates a builder and registers its indicators.
func NewBuilder(cfg Config) *Builder {
	engine := indicators.NewEngine(cfg.Workers)
	for _, w := range cfg.MAWindows {
		engine.RegisterIndicator(indicators.NewMARatio(w))
		engine.RegisterIndicator(indicators.NewVolatility(w))
		engine.RegisterIndicator(indicators.NewTrend(w))
	}
	for _, w := range cfg.ChannelWindows {
		engine.RegisterMultiIndicator(indicators.NewChannel(w))
	}
	for _, w := range cfg.VolumeWindows {
		engine.RegisterIndicator(indicators.NewVolumeRatio(w))
	}
	if cfg.RSIPeriod > 0 {
		engine.RegisterIndicator(indicators.NewRSI(cfg.RSIPeriod))
	}
	if cfg.ROCPeriod > 0 {
		engine.RegisterIndicator(indicators.NewROC(cfg.ROCPeriod))
	}
	return &Builder{cfg: cfg, engine: engine}
}

// Build computes the feature matrix for candles. Indicators whose window exceeds
// the history are omitted rather than failing the build.
func (b *Builder) Build(ctx context.Context, candles []models.Candle, opts Options) (*Matrix, error) {
	if len(candles) == 0 {
		return nil, apperrors.NewDataError("candles", "", "empty price series", apperrors.ErrInsufficientData)
	}

	results, err := b.engine.CalculateAll(ctx, candles)
	if err != nil {
		return nil, err
	}

	var names []string
	var columns [][]float64
	add := func(name string, values []float64) {
		names = append(names, name)
		columns = append(columns, values)
	}

	for _, col := range orderedPriceColumns(candles) {
		add(col.name, col.values)
	}

	for _, name := range b.engine.Names() {
		if values, ok := results.Single[name]; ok {
			add(name, values)
			continue
		}
		if multi, ok := results.Multi[name]; ok {
			keys := make([]string, 0, len(multi))
			for k := range multi {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				add(fmt.Sprintf("%s_%s", name, k), multi[k])
			}
		}
	}

	if len(opts.Sentiment) == len(candles) {
		add("sentiment", append([]float64(nil), opts.Sentiment...))
	}

	for _, col := range columns {
		fillColumn(col)
	}

	matrix := &Matrix{Timestamps: make([]time.Time, len(candles))}
	for i, c := range candles {
		matrix.Timestamps[i] = c.Timestamp
	}

	keep := varianceFilter(columns, b.cfg.VarianceThreshold)
	if len(keep) == 0 || len(keep)*2 < len(columns) {
		keep = make([]int, len(columns))
		for j := range columns {
			keep[j] = j
		}
		matrix.FilterSkipped = len(columns) > 2
	}

	kept := make(map[int]bool, len(keep))
	for _, j := range keep {
		kept[j] = true
		matrix.Names = append(matrix.Names, names[j])
	}
	for j, name := range names {
		if !kept[j] {
			matrix.Dropped = append(matrix.Dropped, name)
		}
	}

	matrix.Rows = make([][]float64, len(candles))
	for i := range candles {
		row := make([]float64, len(keep))
		for k, j := range keep {
			row[k] = columns[j][i]
		}
		matrix.Rows[i] = row
	}

	return matrix, nil
}

type column struct {
	name   string
	values []float64
}

// orderedPriceColumns builds the features derived directly from OHLCV.
func orderedPriceColumns(candles []models.Candle) []column {
	n := len(candles)
	returns := make([]float64, n)
	logReturns := make([]float64, n)
	volumeReturns := make([]float64, n)
	highLow := make([]float64, n)
	closeToHigh := make([]float64, n)

	returns[0], logReturns[0], volumeReturns[0] = math.NaN(), math.NaN(), math.NaN()
	for i, c := range candles {
		if i > 0 {
			prev := candles[i-1]
			returns[i] = safeRatio(c.Close, prev.Close) - 1
			logReturns[i] = math.Log(safeRatio(c.Close, prev.Close))
			volumeReturns[i] = safeRatio(float64(c.Volume), float64(prev.Volume)) - 1
		}
		highLow[i] = safeRatio(c.High, c.Low) - 1
		closeToHigh[i] = safeRatio(c.Close, c.High) - 1
	}

	return []column{
		{"returns", returns},
		{"log_returns", logReturns},
		{"volume_returns", volumeReturns},
		{"high_low_ratio", highLow},
		{"close_to_high", closeToHigh},
	}
}

// safeRatio returns a/b, or NaN when either side is not positive.
func safeRatio(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return math.NaN()
	}
	return a / b
}

// fillColumn forward-fills then backward-fills non-finite values in place.
// A column with no finite value becomes all zeros.
func fillColumn(values []float64) {
	last := math.NaN()
	for i, v := range values {
		if isFinite(v) {
			last = v
		} else {
			values[i] = last
		}
	}

	next := math.NaN()
	for i := len(values) - 1; i >= 0; i-- {
		if isFinite(values[i]) {
			next = values[i]
		} else {
			values[i] = next
		}
	}

	for i, v := range values {
		if !isFinite(v) {
			values[i] = 0
		}
	}
}

// varianceFilter returns indexes of columns whose variance exceeds threshold.
// With two or fewer columns every column is kept.
func varianceFilter(columns [][]float64, threshold float64) []int {
	keep := make([]int, 0, len(columns))
	for j, col := range columns {
		if len(columns) <= 2 || (len(col) > 1 && stat.Variance(col, nil) > threshold) {
			keep = append(keep, j)
		}
	}
	return keep
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Targets returns next-day percentage returns aligned with candles[:len-1].
func Targets(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	targets := make([]float64, len(candles)-1)
	for i := range targets {
		r := safeRatio(candles[i+1].Close, candles[i].Close) - 1
		if !isFinite(r) {
			r = 0
		}
		targets[i] = r
	}
	return targets
}
