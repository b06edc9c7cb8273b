// Package notifications delivers user-facing messages about recovery
// events to pluggable sinks, with per-source rate limiting and an
// optional non-blocking queue.
package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tooldock/resilience-core/pkg/logging"
	"github.com/tooldock/resilience-core/pkg/metrics"
)

// Type classifies a notification for presentation
type Type string

const (
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
)

// Action is a button offered alongside a notification
type Action struct {
	Label   string `json:"label"`
	Action  string `json:"action"`
	Primary bool   `json:"primary,omitempty"`
}

// Notification is one user-facing message
type Notification struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	Source     string                 `json:"source"`
	Timestamp  time.Time              `json:"timestamp"`
	Duration   time.Duration          `json:"duration,omitempty"`
	Persistent bool                   `json:"persistent,omitempty"`
	Actions    []Action               `json:"actions,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Sink receives notifications for delivery
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
	Name() string
}

// Dispatcher fans notifications out to all registered sinks. Each source
// is limited to MaxPerSourcePerHour sends; excess notifications are
// dropped, not queued, so a flapping service cannot flood the user.
type Dispatcher struct {
	mutex   sync.RWMutex
	sinks   []Sink
	logger  *logging.Logger
	metrics *metrics.Metrics

	rlMutex      sync.Mutex
	counts       map[string]int
	lastReset    time.Time
	maxPerSource int

	queue    chan Notification
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Config bounds dispatcher behavior
type Config struct {
	MaxPerSourcePerHour int
	QueueSize           int
}

// DefaultConfig returns the standard dispatcher limits
func DefaultConfig() Config {
	return Config{
		MaxPerSourcePerHour: 100,
		QueueSize:           256,
	}
}

// NewDispatcher creates a dispatcher. Metrics may be nil.
func NewDispatcher(cfg Config, m *metrics.Metrics) *Dispatcher {
	if cfg.MaxPerSourcePerHour <= 0 {
		cfg.MaxPerSourcePerHour = 100
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	return &Dispatcher{
		sinks:        make([]Sink, 0),
		logger:       logging.GetLogger(),
		metrics:      m,
		counts:       make(map[string]int),
		lastReset:    time.Now(),
		maxPerSource: cfg.MaxPerSourcePerHour,
		queue:        make(chan Notification, cfg.QueueSize),
		stopCh:       make(chan struct{}),
	}
}

// AddSink registers a delivery sink
func (d *Dispatcher) AddSink(sink Sink) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.sinks = append(d.sinks, sink)
	d.logger.Info("Notification sink added", "sink", sink.Name())
}

// Send delivers a notification to every sink synchronously
func (d *Dispatcher) Send(ctx context.Context, n Notification) error {
	if !d.allow(n.Source) {
		d.logger.Warn("Notification rate limit exceeded",
			"source", n.Source,
			"title", n.Title,
		)
		if d.metrics != nil {
			d.metrics.RecordNotificationDropped("rate_limited")
		}
		return fmt.Errorf("notification rate limit exceeded for source: %s", n.Source)
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	d.mutex.RLock()
	sinks := d.sinks
	d.mutex.RUnlock()

	var lastErr error
	delivered := 0
	for _, sink := range sinks {
		if err := sink.Deliver(ctx, n); err != nil {
			d.logger.Error("Notification sink failed",
				"sink", sink.Name(),
				"notification_id", n.ID,
				"error", err,
			)
			lastErr = err
		} else {
			delivered++
		}
	}

	if d.metrics != nil {
		d.metrics.RecordNotification(string(n.Type))
	}

	if delivered == 0 && lastErr != nil {
		return fmt.Errorf("all notification sinks failed: %w", lastErr)
	}
	return nil
}

// Post enqueues a notification without blocking. When the queue is full
// the notification is dropped. Start must be running for posts to drain.
func (d *Dispatcher) Post(n Notification) {
	select {
	case d.queue <- n:
	default:
		d.logger.Warn("Notification queue full, dropping",
			"source", n.Source,
			"title", n.Title,
		)
		if d.metrics != nil {
			d.metrics.RecordNotificationDropped("queue_full")
		}
	}
}

// Start drains the queue until the context is done or Stop is called
func (d *Dispatcher) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case n := <-d.queue:
			// Delivery errors are already logged per sink.
			_ = d.Send(ctx, n)
		}
	}
}

// Stop ends queue draining. Safe to call more than once.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
}

// Error sends an error notification
func (d *Dispatcher) Error(ctx context.Context, source, title, message string, actions ...Action) error {
	return d.Send(ctx, Notification{Type: TypeError, Source: source, Title: title, Message: message, Actions: actions})
}

// Warning sends a warning notification
func (d *Dispatcher) Warning(ctx context.Context, source, title, message string, actions ...Action) error {
	return d.Send(ctx, Notification{Type: TypeWarning, Source: source, Title: title, Message: message, Actions: actions})
}

// Info sends an informational notification
func (d *Dispatcher) Info(ctx context.Context, source, title, message string, actions ...Action) error {
	return d.Send(ctx, Notification{Type: TypeInfo, Source: source, Title: title, Message: message, Actions: actions})
}

// Success sends a success notification
func (d *Dispatcher) Success(ctx context.Context, source, title, message string, actions ...Action) error {
	return d.Send(ctx, Notification{Type: TypeSuccess, Source: source, Title: title, Message: message, Actions: actions})
}

// allow consumes one rate-limit slot for source, resetting counters once
// per hour
func (d *Dispatcher) allow(source string) bool {
	d.rlMutex.Lock()
	defer d.rlMutex.Unlock()

	now := time.Now()
	if now.Sub(d.lastReset) >= time.Hour {
		d.counts = make(map[string]int)
		d.lastReset = now
	}

	if d.counts[source] >= d.maxPerSource {
		return false
	}
	d.counts[source]++
	return true
}
