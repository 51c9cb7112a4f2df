// Package indicators provides rolling technical indicators with parallel calculation.
package indicators

import (
	"context"
	"sort"
	"sync"

	"fairvalue-engine/internal/models"
)

// Indicator defines the interface for single-value indicators.
// Calculate returns one value per candle; warm-up positions are NaN or 0.
type Indicator interface {
	Name() string
	Calculate(candles []models.Candle) ([]float64, error)
	Period() int
}

// MultiValueIndicator defines the interface for indicators that return several series.
type MultiValueIndicator interface {
	Name() string
	Calculate(candles []models.Candle) (map[string][]float64, error)
	Period() int
}

// Results holds the output of one CalculateAll run.
type Results struct {
	Single map[string][]float64
	Multi  map[string]map[string][]float64
	// Skipped maps indicator names to the error that excluded them.
	Skipped map[string]error
}

// Engine provides parallel indicator calculation using a worker pool.
type Engine struct {
	workers     int
	indicators  map[string]Indicator
	multiIndics map[string]MultiValueIndicator
	mu          sync.RWMutex
}

// NewEngine creates a new indicator engine with the specified number of workers.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		workers:     workers,
		indicators:  make(map[string]Indicator),
		multiIndics: make(map[string]MultiValueIndicator),
	}
}

// RegisterIndicator registers a single-value indicator.
func (e *Engine) RegisterIndicator(ind Indicator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indicators[ind.Name()] = ind
}

// RegisterMultiIndicator registers a multi-value indicator.
func (e *Engine) RegisterMultiIndicator(ind MultiValueIndicator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.multiIndics[ind.Name()] = ind
}

// Names returns the sorted names of all registered indicators.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.indicators)+len(e.multiIndics))
	for name := range e.indicators {
		names = append(names, name)
	}
	for name := range e.multiIndics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CalculateAll calculates all registered indicators in parallel.
// Indicators that fail (usually for lack of data) are reported in Skipped.
func (e *Engine) CalculateAll(ctx context.Context, candles []models.Candle) (*Results, error) {
	e.mu.RLock()
	jobs := make([]func() (string, []float64, map[string][]float64, error), 0, len(e.indicators)+len(e.multiIndics))
	for _, ind := range e.indicators {
		ind := ind
		jobs = append(jobs, func() (string, []float64, map[string][]float64, error) {
			values, err := ind.Calculate(candles)
			return ind.Name(), values, nil, err
		})
	}
	for _, ind := range e.multiIndics {
		ind := ind
		jobs = append(jobs, func() (string, []float64, map[string][]float64, error) {
			values, err := ind.Calculate(candles)
			return ind.Name(), nil, values, err
		})
	}
	e.mu.RUnlock()

	results := &Results{
		Single:  make(map[string][]float64),
		Multi:   make(map[string]map[string][]float64),
		Skipped: make(map[string]error),
	}
	var mu sync.Mutex
	var wg sync.WaitGroup

	work := make(chan func() (string, []float64, map[string][]float64, error), len(jobs))

	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range work {
				select {
				case <-ctx.Done():
					return
				default:
				}
				name, single, multi, err := job()
				mu.Lock()
				switch {
				case err != nil:
					results.Skipped[name] = err
				case multi != nil:
					results.Multi[name] = multi
				default:
					results.Single[name] = single
				}
				mu.Unlock()
			}
		}()
	}

	for _, job := range jobs {
		work <- job
	}
	close(work)

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
