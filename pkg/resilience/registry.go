package resilience

import "sync"

// CircuitBreakerRegistry hands out one circuit breaker per operation key.
// Breakers are created lazily from the registry defaults; individual keys
// can be pinned to their own configuration with Configure.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	defaults CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewCircuitBreakerRegistry creates a registry that builds breakers from
// the given default configuration
func NewCircuitBreakerRegistry(defaults CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		defaults: defaults,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// ForOperation returns the breaker guarding the given operation key,
// creating it on first use
func (r *CircuitBreakerRegistry) ForOperation(key string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[key]; ok {
		return cb
	}

	config := r.defaults
	config.Name = key
	cb := NewCircuitBreaker(config)
	r.breakers[key] = cb
	return cb
}

// Configure replaces the breaker for an operation key with one built from
// the given configuration. The registry default OnStateChange is kept when
// the override does not set its own.
func (r *CircuitBreakerRegistry) Configure(key string, config CircuitBreakerConfig) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	config.Name = key
	if config.OnStateChange == nil {
		config.OnStateChange = r.defaults.OnStateChange
	}
	cb := NewCircuitBreaker(config)
	r.breakers[key] = cb
	return cb
}

// States returns the current state of every known breaker
func (r *CircuitBreakerRegistry) States() map[string]CircuitState {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]CircuitState, len(r.breakers))
	for key, cb := range r.breakers {
		states[key] = cb.State()
	}
	return states
}

// Reset closes the breaker for the given key if one exists
func (r *CircuitBreakerRegistry) Reset(key string) {
	r.mu.Lock()
	cb, ok := r.breakers[key]
	r.mu.Unlock()

	if ok {
		cb.Reset()
	}
}

// ResetAll closes every breaker in the registry
func (r *CircuitBreakerRegistry) ResetAll() {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	for _, cb := range breakers {
		cb.Reset()
	}
}
