package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Retry metrics
	RetryAttemptsTotal  *prometheus.CounterVec
	RetryExhaustedTotal *prometheus.CounterVec
	RetryDuration       *prometheus.HistogramVec

	// Circuit breaker metrics
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
	BreakerRejections  *prometheus.CounterVec

	// Recovery metrics
	RecoveryOperations *prometheus.CounterVec
	RecoveryDuration   *prometheus.HistogramVec
	ServiceHealth      *prometheus.GaugeVec
	ErrorsHandled      *prometheus.CounterVec

	// Checkpoint metrics
	CheckpointOperations *prometheus.CounterVec
	CheckpointSizeBytes  *prometheus.HistogramVec

	// Validation metrics
	ValidationChecks *prometheus.CounterVec
	ValidationIssues *prometheus.CounterVec

	// Notification metrics
	NotificationsSent    *prometheus.CounterVec
	NotificationsDropped *prometheus.CounterVec

	// Connectivity metrics
	ConnectivityProbes *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Subsystem string `json:"subsystem"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "resilience",
		Subsystem: "",
		Enabled:   true,
	}
}

// NewMetrics creates and registers all Prometheus metrics.
// With Enabled false it returns an empty Metrics whose Record methods are
// all no-ops, so callers never need to branch on whether metrics are on.
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Metrics{}
	}

	m := &Metrics{
		// Retry metrics
		RetryAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "retry_attempts_total",
				Help:      "Total number of operation attempts made by the retry engine",
			},
			[]string{"operation", "outcome"},
		),
		RetryExhaustedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "retry_exhausted_total",
				Help:      "Total number of operations that failed after all retry attempts",
			},
			[]string{"operation"},
		),
		RetryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "retry_duration_seconds",
				Help:      "Total time spent in retried operations including backoff",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),

		// Circuit breaker metrics
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "breaker_state",
				Help:      "Circuit breaker state per operation (0=closed, 1=open, 2=half-open)",
			},
			[]string{"operation"},
		),
		BreakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "breaker_transitions_total",
				Help:      "Total number of circuit breaker state transitions",
			},
			[]string{"operation", "from", "to"},
		),
		BreakerRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "breaker_rejections_total",
				Help:      "Total number of calls rejected by an open circuit breaker",
			},
			[]string{"operation"},
		),

		// Recovery metrics
		RecoveryOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "recovery_operations_total",
				Help:      "Total number of recovery attempts by strategy and outcome",
			},
			[]string{"service", "strategy", "outcome"},
		),
		RecoveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "recovery_duration_seconds",
				Help:      "Time spent executing recovery strategies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "strategy"},
		),
		ServiceHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "service_health",
				Help:      "Service health level (0=healthy, 1=degraded, 2=recovering, 3=failed)",
			},
			[]string{"service"},
		),
		ErrorsHandled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "errors_handled_total",
				Help:      "Total number of classified service errors handled",
			},
			[]string{"service", "kind"},
		),

		// Checkpoint metrics
		CheckpointOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "checkpoint_operations_total",
				Help:      "Total number of checkpoint operations by status",
			},
			[]string{"operation", "status"},
		),
		CheckpointSizeBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "checkpoint_size_bytes",
				Help:      "Serialized size of workspace checkpoints",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
			},
			[]string{"operation"},
		),

		// Validation metrics
		ValidationChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "validation_checks_total",
				Help:      "Total number of workspace validation runs",
			},
			[]string{"status"},
		),
		ValidationIssues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "validation_issues_total",
				Help:      "Total number of validation issues by severity and code",
			},
			[]string{"severity", "code"},
		),

		// Notification metrics
		NotificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "notifications_sent_total",
				Help:      "Total number of user notifications emitted",
			},
			[]string{"type"},
		),
		NotificationsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "notifications_dropped_total",
				Help:      "Total number of notifications dropped before delivery",
			},
			[]string{"reason"},
		),

		// Connectivity metrics
		ConnectivityProbes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "connectivity_probes_total",
				Help:      "Total number of connectivity probe results",
			},
			[]string{"result"},
		),

		// Error metrics
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "errors_total",
				Help:      "Total number of errors by component and type",
			},
			[]string{"component", "error_type"},
		),
		PanicsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "panics_total",
				Help:      "Total number of panics recovered",
			},
			[]string{"component"},
		),
	}

	prometheus.MustRegister(
		m.RetryAttemptsTotal,
		m.RetryExhaustedTotal,
		m.RetryDuration,
		m.BreakerState,
		m.BreakerTransitions,
		m.BreakerRejections,
		m.RecoveryOperations,
		m.RecoveryDuration,
		m.ServiceHealth,
		m.ErrorsHandled,
		m.CheckpointOperations,
		m.CheckpointSizeBytes,
		m.ValidationChecks,
		m.ValidationIssues,
		m.NotificationsSent,
		m.NotificationsDropped,
		m.ConnectivityProbes,
		m.ErrorsTotal,
		m.PanicsTotal,
	)

	return m
}

// RecordRetryRun records the outcome of a full retry loop
func (m *Metrics) RecordRetryRun(operation string, success bool, attempts int, duration time.Duration) {
	if m.RetryAttemptsTotal == nil {
		return
	}

	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.RetryAttemptsTotal.WithLabelValues(operation, outcome).Add(float64(attempts))
	m.RetryDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

// RecordRetryExhausted records an operation that failed after all attempts
func (m *Metrics) RecordRetryExhausted(operation string) {
	if m.RetryExhaustedTotal == nil {
		return
	}

	m.RetryExhaustedTotal.WithLabelValues(operation).Inc()
}

// RecordBreakerTransition records a circuit breaker state change and
// updates the state gauge
func (m *Metrics) RecordBreakerTransition(operation, from, to string, stateValue int) {
	if m.BreakerTransitions == nil {
		return
	}

	m.BreakerTransitions.WithLabelValues(operation, from, to).Inc()
	m.BreakerState.WithLabelValues(operation).Set(float64(stateValue))
}

// RecordBreakerRejection records a call rejected by an open circuit
func (m *Metrics) RecordBreakerRejection(operation string) {
	if m.BreakerRejections == nil {
		return
	}

	m.BreakerRejections.WithLabelValues(operation).Inc()
}

// UpdateBreakerState sets the state gauge for an operation
func (m *Metrics) UpdateBreakerState(operation string, stateValue int) {
	if m.BreakerState == nil {
		return
	}

	m.BreakerState.WithLabelValues(operation).Set(float64(stateValue))
}

// RecordRecovery records a recovery strategy execution
func (m *Metrics) RecordRecovery(service, strategy, outcome string, duration time.Duration) {
	if m.RecoveryOperations == nil {
		return
	}

	m.RecoveryOperations.WithLabelValues(service, strategy, outcome).Inc()
	m.RecoveryDuration.WithLabelValues(service, strategy).Observe(duration.Seconds())
}

// UpdateServiceHealth sets the health gauge for a service
func (m *Metrics) UpdateServiceHealth(service string, healthValue int) {
	if m.ServiceHealth == nil {
		return
	}

	m.ServiceHealth.WithLabelValues(service).Set(float64(healthValue))
}

// RecordErrorHandled records a classified error entering the recovery pipeline
func (m *Metrics) RecordErrorHandled(service, kind string) {
	if m.ErrorsHandled == nil {
		return
	}

	m.ErrorsHandled.WithLabelValues(service, kind).Inc()
}

// RecordCheckpointOperation records a checkpoint create/restore/delete.
// A non-positive size leaves the size histogram untouched.
func (m *Metrics) RecordCheckpointOperation(operation, status string, sizeBytes int) {
	if m.CheckpointOperations == nil {
		return
	}

	m.CheckpointOperations.WithLabelValues(operation, status).Inc()
	if sizeBytes > 0 {
		m.CheckpointSizeBytes.WithLabelValues(operation).Observe(float64(sizeBytes))
	}
}

// RecordValidation records a workspace validation run and its issues
func (m *Metrics) RecordValidation(valid bool, errorCodes, warningCodes []string) {
	if m.ValidationChecks == nil {
		return
	}

	status := "invalid"
	if valid {
		status = "valid"
	}
	m.ValidationChecks.WithLabelValues(status).Inc()
	for _, code := range errorCodes {
		m.ValidationIssues.WithLabelValues("error", code).Inc()
	}
	for _, code := range warningCodes {
		m.ValidationIssues.WithLabelValues("warning", code).Inc()
	}
}

// RecordNotification records an emitted user notification
func (m *Metrics) RecordNotification(notificationType string) {
	if m.NotificationsSent == nil {
		return
	}

	m.NotificationsSent.WithLabelValues(notificationType).Inc()
}

// RecordNotificationDropped records a notification dropped before delivery
func (m *Metrics) RecordNotificationDropped(reason string) {
	if m.NotificationsDropped == nil {
		return
	}

	m.NotificationsDropped.WithLabelValues(reason).Inc()
}

// RecordConnectivityProbe records the result of a connectivity probe
func (m *Metrics) RecordConnectivityProbe(online bool) {
	if m.ConnectivityProbes == nil {
		return
	}

	result := "offline"
	if online {
		result = "online"
	}
	m.ConnectivityProbes.WithLabelValues(result).Inc()
}

// RecordError records error metrics
func (m *Metrics) RecordError(component, errorType string) {
	if m.ErrorsTotal == nil {
		return
	}

	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordPanic records a recovered panic
func (m *Metrics) RecordPanic(component string) {
	if m.PanicsTotal == nil {
		return
	}

	m.PanicsTotal.WithLabelValues(component).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// BreakerStateCollector periodically refreshes the breaker state gauges
// from a snapshot source, so breakers that never transition still show up.
type BreakerStateCollector struct {
	metrics  *Metrics
	interval time.Duration
	source   func() map[string]int
	stopCh   chan struct{}
}

// NewBreakerStateCollector creates a collector that polls the given source
func NewBreakerStateCollector(metrics *Metrics, interval time.Duration, source func() map[string]int) *BreakerStateCollector {
	return &BreakerStateCollector{
		metrics:  metrics,
		interval: interval,
		source:   source,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collection and blocks until the context or collector is stopped
func (bc *BreakerStateCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(bc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-bc.stopCh:
			return
		case <-ticker.C:
			bc.collect()
		}
	}
}

// Stop stops collection
func (bc *BreakerStateCollector) Stop() {
	close(bc.stopCh)
}

func (bc *BreakerStateCollector) collect() {
	for operation, state := range bc.source() {
		bc.metrics.UpdateBreakerState(operation, state)
	}
}
