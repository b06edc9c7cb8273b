package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/tooldock/resilience-core/pkg/logging"
	"github.com/tooldock/resilience-core/pkg/metrics"
)

// Monitor polls a probe on an interval, caches the last result, and tells
// listeners when connectivity flips. Its cached answer makes it usable as
// a Probe that never blocks.
type Monitor struct {
	probe    Probe
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *logging.Logger

	mu        sync.RWMutex
	online    bool
	listeners []func(online bool)

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a monitor around the given probe. The initial state
// is online; the first poll corrects it.
func NewMonitor(probe Probe, interval time.Duration, m *metrics.Metrics) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &Monitor{
		probe:    probe,
		interval: interval,
		metrics:  m,
		logger:   logging.GetLogger(),
		online:   true,
		stopCh:   make(chan struct{}),
	}
}

// OnChange registers a listener invoked whenever connectivity flips.
// Listeners must be registered before Start.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Start polls immediately, then on every interval tick, until the context
// is done or Stop is called. It blocks; run it in its own goroutine.
func (m *Monitor) Start(ctx context.Context) {
	m.check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// Stop ends polling. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}

// Name identifies the monitor as a probe
func (m *Monitor) Name() string {
	return "monitor(" + m.probe.Name() + ")"
}

// Online returns the cached connectivity state without blocking
func (m *Monitor) Online(ctx context.Context) bool {
	return m.IsOnline()
}

// IsOnline returns the cached connectivity state
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

func (m *Monitor) check(ctx context.Context) {
	online := m.probe.Online(ctx)

	if m.metrics != nil {
		m.metrics.RecordConnectivityProbe(online)
	}

	m.mu.Lock()
	changed := online != m.online
	m.online = online
	listeners := m.listeners
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		m.logger.Info("Connectivity restored", "probe", m.probe.Name())
	} else {
		m.logger.Warn("Connectivity lost", "probe", m.probe.Name())
	}

	for _, fn := range listeners {
		fn(online)
	}
}
