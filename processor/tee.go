package processor

import (
	"errors"
	"sync/atomic"

	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/internal/config"
)

//////////////
//  CONFIG  //
//////////////

// TeeConfig is the configuration for a [TeeHandler].
type TeeConfig struct {
	// Name identifies the handler in logs and metrics.
	//
	// Default: "tee"
	Name string
}

// DefaultTeeConfig returns the default configuration for a [TeeHandler].
func DefaultTeeConfig() *TeeConfig {
	return &TeeConfig{
		Name: "tee",
	}
}

// Validate checks the configuration.
func (c *TeeConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Name", &c.Name, "tee")
}

///////////////
//  HANDLER  //
///////////////

// TeeHandler hands every event to multiple inner handlers, all on the
// same processing goroutine. The event is not copied, the inner
// handlers share the slot and must not mutate it.
type TeeHandler[T any] struct {
	tel *internal.Telemetry

	inners []Handler[T]

	// Metrics
	fannedEvents atomic.Int64
}

var _ Handler[any] = (*TeeHandler[any])(nil)

// NewTeeHandler returns a handler fanning events out to the given
// inner handlers. A nil configuration falls back to the default one.
func NewTeeHandler[T any](cfg *TeeConfig, inners ...Handler[T]) *TeeHandler[T] {
	if cfg == nil {
		cfg = DefaultTeeConfig()
	}

	tel := internal.NewTelemetry("processor", cfg.Name)
	config.NewValidator(tel).Validate(cfg)

	th := &TeeHandler[T]{
		tel: tel,

		inners: inners,
	}

	th.initMetrics()

	return th
}

func (th *TeeHandler[T]) initMetrics() {
	th.tel.NewCounter("fanned_events", func() int64 { return th.fannedEvents.Load() })
}

// OnEvent hands the event to every inner handler in order. All inner
// handlers see the event even when an earlier one fails, the errors
// are joined.
func (th *TeeHandler[T]) OnEvent(event *T, sequence int64, endOfBatch bool) error {
	th.fannedEvents.Add(1)

	var errs []error
	for _, inner := range th.inners {
		if err := inner.OnEvent(event, sequence, endOfBatch); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// OnStart forwards the start notification to the inner handlers.
func (th *TeeHandler[T]) OnStart() {
	for _, inner := range th.inners {
		notifyStart(inner)
	}
}

// OnShutdown forwards the shutdown notification to the inner handlers.
func (th *TeeHandler[T]) OnShutdown() {
	for _, inner := range th.inners {
		notifyShutdown(inner)
	}
}
