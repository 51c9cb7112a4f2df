package resilience

import "sync"

// CircuitBreakerRegistry hands out one circuit breaker per upstream source.
// A source listed in the per-source configs gets its own settings; every
// other source uses the defaults.
type CircuitBreakerRegistry struct {
	defaults CircuitBreakerConfig
	sources  map[string]CircuitBreakerConfig
	breakers sync.Map // source name -> *CircuitBreaker
}

// NewCircuitBreakerRegistry creates a registry. sources may be nil and is not
// modified afterwards.
func NewCircuitBreakerRegistry(defaults CircuitBreakerConfig, sources map[string]CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{defaults: defaults, sources: sources}
}

// Get returns the breaker for a source, creating it on first use.
func (r *CircuitBreakerRegistry) Get(source string) *CircuitBreaker {
	if cb, ok := r.breakers.Load(source); ok {
		return cb.(*CircuitBreaker)
	}
	cb, _ := r.breakers.LoadOrStore(source, NewCircuitBreaker(source, r.configFor(source)))
	return cb.(*CircuitBreaker)
}

func (r *CircuitBreakerRegistry) configFor(source string) CircuitBreakerConfig {
	if cfg, ok := r.sources[source]; ok {
		return cfg
	}
	return r.defaults
}
