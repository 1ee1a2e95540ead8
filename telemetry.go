package staffetta

import (
	"context"

	"github.com/FerroO2000/staffetta/internal/telemetry"
)

// InitTelemetry initializes the OpenTelemetry providers against the
// OTLP collector at the given endpoint. An empty endpoint falls back
// to the default local collector. When the collector is not reachable
// the no-op providers are left in place and the exchange runs without
// telemetry export.
func InitTelemetry(ctx context.Context, serviceName, endpoint string) error {
	return telemetry.Init(ctx, serviceName, endpoint)
}

// CloseTelemetry shuts down the OpenTelemetry providers.
func CloseTelemetry(ctx context.Context) error {
	return telemetry.Close(ctx)
}

// SetTraceRatio sets the sampling ratio for traces.
// It must be called before InitTelemetry.
func SetTraceRatio(ratio float64) {
	telemetry.SetTraceRatio(ratio)
}
