// Package internal contains the telemetry plumbing shared
// by every component of the library.
package internal

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const scopePrefix = "staffetta"

// Telemetry bundles the logger, meter, and tracer of a single component.
// Each component creates its own telemetry with a scope (the kind of
// component) and a name (the specific instance).
type Telemetry struct {
	logger *logger
	meter  metric.Meter
	tracer trace.Tracer
}

// NewTelemetry returns a new telemetry for the component
// with the given scope and name.
func NewTelemetry(scope, name string) *Telemetry {
	scopedName := scopePrefix + "." + scope + "." + name

	return &Telemetry{
		logger: newLogger(scope, name),
		meter:  otel.Meter(scopedName),
		tracer: otel.Tracer(scopedName),
	}
}

// LogInfo logs an info message.
func (t *Telemetry) LogInfo(msg string, args ...any) {
	t.logger.info(msg, args...)
}

// LogWarn logs a warning message.
func (t *Telemetry) LogWarn(msg string, args ...any) {
	t.logger.warn(msg, args...)
}

// LogError logs an error message.
func (t *Telemetry) LogError(msg string, err error, args ...any) {
	t.logger.error(msg, err, args...)
}

// NewCounter registers an observable counter backed by the given callback.
// The callback is polled by the meter provider on every collection cycle.
func (t *Telemetry) NewCounter(name string, callback func() int64) {
	counter, err := t.meter.Int64ObservableCounter(name)
	if err != nil {
		t.LogError("failed to create counter", err, "counter_name", name)
		return
	}

	_, err = t.meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			observer.ObserveInt64(counter, callback())
			return nil
		}, counter,
	)

	if err != nil {
		t.LogError("failed to register counter callback", err, "counter_name", name)
	}
}

// NewUpDownCounter registers an observable up-down counter backed by
// the given callback.
func (t *Telemetry) NewUpDownCounter(name string, callback func() int64) {
	counter, err := t.meter.Int64ObservableUpDownCounter(name)
	if err != nil {
		t.LogError("failed to create up-down counter", err, "counter_name", name)
		return
	}

	_, err = t.meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			observer.ObserveInt64(counter, callback())
			return nil
		}, counter,
	)

	if err != nil {
		t.LogError("failed to register up-down counter callback", err, "counter_name", name)
	}
}

// Histogram records int64 samples.
// A histogram whose creation failed is a no-op.
type Histogram struct {
	hist metric.Int64Histogram
}

// Record records a sample.
func (h *Histogram) Record(ctx context.Context, value int64) {
	if h.hist != nil {
		h.hist.Record(ctx, value)
	}
}

// NewHistogram returns a new histogram with the given name.
func (t *Telemetry) NewHistogram(name string, opts ...metric.Int64HistogramOption) *Histogram {
	hist, err := t.meter.Int64Histogram(name, opts...)
	if err != nil {
		t.LogError("failed to create histogram", err, "histogram_name", name)
		return &Histogram{}
	}

	return &Histogram{hist: hist}
}

// NewTrace starts a new span with the given name.
func (t *Telemetry) NewTrace(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// ExtractTraceContext extracts the trace context from the given carrier.
func (t *Telemetry) ExtractTraceContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectTrace injects the trace context of the given context
// into the carrier.
func (t *Telemetry) InjectTrace(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}
