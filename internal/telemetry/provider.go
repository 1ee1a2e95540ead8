package telemetry

import (
	"context"
	"log"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultCollectorEndpoint = "localhost:4317"

var (
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	traceRatio = 0.05
)

func isCollectorReachable(endpoint string) bool {
	conn, err := net.DialTimeout("tcp", endpoint, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Init initializes the OpenTelemetry providers against the collector
// at the given endpoint. An empty endpoint falls back to the default
// local collector. It prints a warning and leaves the no-op providers
// in place when the collector is not reachable.
func Init(ctx context.Context, serviceName, endpoint string) error {
	if endpoint == "" {
		endpoint = defaultCollectorEndpoint
	}

	if !isCollectorReachable(endpoint) {
		log.Print("WARNING: OpenTelemetry collector is not reachable, telemetry export is disabled")
		return nil
	}

	grpcTransport := grpc.WithTransportCredentials(insecure.NewCredentials())
	grpcConn, err := grpc.NewClient(endpoint, grpcTransport)
	if err != nil {
		return err
	}

	res, err := newResource(serviceName)
	if err != nil {
		return err
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(grpcConn))
	if err != nil {
		return err
	}
	tracerProvider = newTracerProvider(res, traceExporter)
	otel.SetTracerProvider(tracerProvider)

	otel.SetTextMapPropagator(propagation.TraceContext{})

	meterExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(grpcConn))
	if err != nil {
		return err
	}
	meterProvider = newMeterProvider(res, meterExporter)
	otel.SetMeterProvider(meterProvider)

	return runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second))
}

// Close shuts down the OpenTelemetry providers.
func Close(ctx context.Context) error {
	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}

	if meterProvider != nil {
		if err := meterProvider.Shutdown(ctx); err != nil {
			return err
		}
	}

	return nil
}

// SetTraceRatio sets the sampling ratio for traces.
// It must be called before Init.
func SetTraceRatio(ratio float64) {
	traceRatio = ratio
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("0.1.0"),
		),
	)
}

func newTracerProvider(res *resource.Resource, exporter *otlptrace.Exporter) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(traceRatio)),
	)
}

func newMeterProvider(res *resource.Resource, exporter *otlpmetricgrpc.Exporter) *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(time.Second)),
		),
	)
}
