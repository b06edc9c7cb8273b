// Package recovery classifies service errors into resolutions and drives
// prioritized recovery strategies until one succeeds.
package recovery

import (
	"sync"
	"time"

	appErrors "github.com/tooldock/resilience-core/pkg/errors"
)

// DefaultHealthWindow is how far back errors count toward service health
const DefaultHealthWindow = 5 * time.Minute

// historyLimit bounds per-service error history independent of the time
// window
const historyLimit = 100

// Health is the windowed three-level error-count classification
type Health string

const (
	HealthHealthy     Health = "healthy"
	HealthDegraded    Health = "degraded"
	HealthUnavailable Health = "unavailable"
)

// Status is the user-facing service state, folding retry progress into
// the health classification
type Status string

const (
	StatusHealthy    Status = "healthy"
	StatusDegraded   Status = "degraded"
	StatusRecovering Status = "recovering"
	StatusFailed     Status = "failed"
)

// HealthValue maps a status to its metric gauge value
func HealthValue(s Status) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusRecovering:
		return 2
	}
	return 3
}

type errorRecord struct {
	kind appErrors.ErrorKind
	at   time.Time
}

// ServiceContext tracks one service's recent errors and retry progress.
// All methods are safe for concurrent use.
type ServiceContext struct {
	mutex         sync.Mutex
	serviceID     string
	window        time.Duration
	history       []errorRecord
	retryAttempts int
	lastSuccess   time.Time
}

// ServiceID returns the service this context tracks
func (c *ServiceContext) ServiceID() string {
	return c.serviceID
}

// RecordError files an error into the windowed history
func (c *ServiceContext) RecordError(serr *appErrors.ServiceError) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.prune(time.Now())
	c.history = append(c.history, errorRecord{kind: serr.Kind, at: time.Now()})
	if len(c.history) > historyLimit {
		c.history = c.history[len(c.history)-historyLimit:]
	}
}

// IncrementRetry bumps the retry counter and returns the new value
func (c *ServiceContext) IncrementRetry() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.retryAttempts++
	return c.retryAttempts
}

// MarkSuccess resets retry progress and stamps the last successful
// operation
func (c *ServiceContext) MarkSuccess() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.retryAttempts = 0
	c.lastSuccess = time.Now()
}

// RetryAttempts returns the current retry counter
func (c *ServiceContext) RetryAttempts() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.retryAttempts
}

// LastSuccess returns when the service last completed an operation, zero
// if never
func (c *ServiceContext) LastSuccess() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lastSuccess
}

// RecentErrors counts errors inside the health window
func (c *ServiceContext) RecentErrors() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.prune(time.Now())
	return len(c.history)
}

// Health classifies the service by windowed error count: zero errors is
// healthy, one or two degraded, three or more unavailable
func (c *ServiceContext) Health() Health {
	switch n := c.RecentErrors(); {
	case n == 0:
		return HealthHealthy
	case n <= 2:
		return HealthDegraded
	default:
		return HealthUnavailable
	}
}

// Status folds retry progress into the health classification. A service
// that exhausted its retries is failed even if its errors have aged out.
func (c *ServiceContext) Status(maxRetries int) Status {
	errs := c.RecentErrors()
	attempts := c.RetryAttempts()

	switch {
	case errs == 0 && attempts == 0:
		return StatusHealthy
	case maxRetries > 0 && attempts >= maxRetries:
		return StatusFailed
	case errs >= 3:
		return StatusFailed
	case attempts > 0:
		return StatusRecovering
	default:
		return StatusDegraded
	}
}

// reset clears history and retry progress
func (c *ServiceContext) reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.history = nil
	c.retryAttempts = 0
}

func (c *ServiceContext) prune(now time.Time) {
	cutoff := now.Add(-c.window)
	kept := c.history[:0]
	for _, rec := range c.history {
		if rec.at.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	c.history = kept
}

// Contexts is the registry of per-service recovery contexts, created
// lazily on first error
type Contexts struct {
	mutex    sync.RWMutex
	window   time.Duration
	contexts map[string]*ServiceContext
}

// NewContexts creates a context registry. A non-positive window falls
// back to DefaultHealthWindow.
func NewContexts(window time.Duration) *Contexts {
	if window <= 0 {
		window = DefaultHealthWindow
	}
	return &Contexts{
		window:   window,
		contexts: make(map[string]*ServiceContext),
	}
}

// Get returns the context for serviceID, creating it if needed. An empty
// serviceID is tracked under "unknown".
func (r *Contexts) Get(serviceID string) *ServiceContext {
	if serviceID == "" {
		serviceID = "unknown"
	}

	r.mutex.RLock()
	c, ok := r.contexts[serviceID]
	r.mutex.RUnlock()
	if ok {
		return c
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if c, ok = r.contexts[serviceID]; ok {
		return c
	}
	c = &ServiceContext{serviceID: serviceID, window: r.window}
	r.contexts[serviceID] = c
	return c
}

// Reset clears the context for serviceID. Unknown services are a no-op.
func (r *Contexts) Reset(serviceID string) {
	r.mutex.RLock()
	c, ok := r.contexts[serviceID]
	r.mutex.RUnlock()
	if ok {
		c.reset()
	}
}

// ServiceIDs lists every tracked service
func (r *Contexts) ServiceIDs() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ids := make([]string, 0, len(r.contexts))
	for id := range r.contexts {
		ids = append(ids, id)
	}
	return ids
}
