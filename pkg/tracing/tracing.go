package tracing

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/tooldock/resilience-core/pkg/logging"
)

// Config holds tracing configuration
type Config struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	JaegerEndpoint string  `json:"jaeger_endpoint"`
	SamplingRate   float64 `json:"sampling_rate"`
	Enabled        bool    `json:"enabled"`
}

// DefaultConfig returns default tracing configuration
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "resilience-core",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		JaegerEndpoint: "http://localhost:14268/api/traces",
		SamplingRate:   1.0,
		Enabled:        true,
	}
}

// TracingService manages distributed tracing
type TracingService struct {
	tracer   oteltrace.Tracer
	config   *Config
	provider *trace.TracerProvider
}

// NewTracingService creates a new tracing service
func NewTracingService(config *Config) (*TracingService, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &TracingService{
			tracer: otel.Tracer("noop"),
			config: config,
		}, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.JaegerEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(config.SamplingRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer := tp.Tracer(config.ServiceName)

	return &TracingService{
		tracer:   tracer,
		config:   config,
		provider: tp,
	}, nil
}

// Shutdown shuts down the tracing service
func (ts *TracingService) Shutdown(ctx context.Context) error {
	if ts.provider != nil {
		return ts.provider.Shutdown(ctx)
	}
	return nil
}

// StartSpan starts a new span
func (ts *TracingService) StartSpan(ctx context.Context, name string, opts ...oteltrace.SpanStartOption) (context.Context, oteltrace.Span) {
	return ts.tracer.Start(ctx, name, opts...)
}

// StartRecoverySpan starts a span covering one pass through the recovery pipeline
func (ts *TracingService) StartRecoverySpan(ctx context.Context, serviceID, errorKind string) (context.Context, oteltrace.Span) {
	return ts.tracer.Start(ctx, "recovery.handle",
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(
			attribute.String("recovery.service_id", serviceID),
			attribute.String("recovery.error_kind", errorKind),
		),
	)
}

// StartStrategySpan starts a span for a single recovery strategy attempt
func (ts *TracingService) StartStrategySpan(ctx context.Context, strategy, serviceID string) (context.Context, oteltrace.Span) {
	return ts.tracer.Start(ctx, fmt.Sprintf("strategy.%s", strategy),
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(
			attribute.String("strategy.name", strategy),
			attribute.String("strategy.service_id", serviceID),
		),
	)
}

// StartCheckpointSpan starts a span for checkpoint operations
func (ts *TracingService) StartCheckpointSpan(ctx context.Context, operation, workspaceID string) (context.Context, oteltrace.Span) {
	return ts.tracer.Start(ctx, fmt.Sprintf("checkpoint.%s", operation),
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(
			attribute.String("checkpoint.operation", operation),
			attribute.String("checkpoint.workspace_id", workspaceID),
		),
	)
}

// StartStoreSpan starts a span for key-value store operations
func (ts *TracingService) StartStoreSpan(ctx context.Context, operation, key string) (context.Context, oteltrace.Span) {
	return ts.tracer.Start(ctx, fmt.Sprintf("store.%s", operation),
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			semconv.DBSystemRedis,
			semconv.DBOperationKey.String(operation),
			attribute.String("store.key", key),
		),
	)
}

// StartValidationSpan starts a span for workspace validation
func (ts *TracingService) StartValidationSpan(ctx context.Context, workspaceID string) (context.Context, oteltrace.Span) {
	return ts.tracer.Start(ctx, "validation.workspace",
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(
			attribute.String("validation.workspace_id", workspaceID),
		),
	)
}

// StartHTTPSpan starts a span for outbound HTTP requests such as
// connectivity probes
func (ts *TracingService) StartHTTPSpan(ctx context.Context, method, url string) (context.Context, oteltrace.Span) {
	return ts.tracer.Start(ctx, fmt.Sprintf("HTTP %s", method),
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			semconv.HTTPMethodKey.String(method),
			semconv.HTTPURLKey.String(url),
		),
	)
}

// AddSpanAttributes adds attributes to the given span
func (ts *TracingService) AddSpanAttributes(span oteltrace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// AddSpanEvent adds an event to the given span
func (ts *TracingService) AddSpanEvent(span oteltrace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, oteltrace.WithAttributes(attrs...))
}

// RecordError records an error in the given span
func (ts *TracingService) RecordError(span oteltrace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanStatus sets the status of the given span
func (ts *TracingService) SetSpanStatus(span oteltrace.Span, code codes.Code, description string) {
	span.SetStatus(code, description)
}

// InstrumentHTTPClient instruments an HTTP client for tracing
func (ts *TracingService) InstrumentHTTPClient(client *http.Client) *http.Client {
	if !ts.config.Enabled {
		return client
	}

	if client.Transport == nil {
		client.Transport = http.DefaultTransport
	}

	client.Transport = &tracingTransport{
		base:    client.Transport,
		service: ts,
	}

	return client
}

// tracingTransport wraps http.RoundTripper for tracing
type tracingTransport struct {
	base    http.RoundTripper
	service *TracingService
}

// RoundTrip implements http.RoundTripper
func (tt *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := tt.service.StartHTTPSpan(req.Context(), req.Method, req.URL.String())
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	req = req.WithContext(ctx)

	resp, err := tt.base.RoundTrip(req)
	if err != nil {
		tt.service.RecordError(span, err)
		return resp, err
	}

	span.SetAttributes(
		semconv.HTTPStatusCodeKey.Int(resp.StatusCode),
	)
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return resp, nil
}

// TraceableFunction wraps a function with tracing
func (ts *TracingService) TraceableFunction(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := ts.StartSpan(ctx, name)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		ts.RecordError(span, err)
		return err
	}

	ts.SetSpanStatus(span, codes.Ok, "")
	return nil
}

// TraceableFunctionWithResult wraps a result-producing function with tracing
func TraceableFunctionWithResult[T any](ctx context.Context, ts *TracingService, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := ts.StartSpan(ctx, name)
	defer span.End()

	result, err := fn(ctx)
	if err != nil {
		ts.RecordError(span, err)
		return result, err
	}

	ts.SetSpanStatus(span, codes.Ok, "")
	return result, nil
}

// GetTraceID returns the trace ID from the context
func GetTraceID(ctx context.Context) string {
	span := oteltrace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID from the context
func GetSpanID(ctx context.Context) string {
	span := oteltrace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}

// WithTraceContext copies the active trace and span IDs into the logging
// context keys so log lines can be correlated with traces
func WithTraceContext(ctx context.Context) context.Context {
	if traceID := GetTraceID(ctx); traceID != "" {
		ctx = context.WithValue(ctx, logging.TraceIDKey, traceID)
	}
	if spanID := GetSpanID(ctx); spanID != "" {
		ctx = context.WithValue(ctx, logging.SpanIDKey, spanID)
	}
	return ctx
}
