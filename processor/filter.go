package processor

import (
	"sync/atomic"

	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/internal/config"
)

//////////////
//  CONFIG  //
//////////////

// FilterConfig is the configuration for a [FilterHandler].
type FilterConfig struct {
	// Name identifies the handler in logs and metrics.
	//
	// Default: "filter"
	Name string
}

// DefaultFilterConfig returns the default configuration for a [FilterHandler].
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		Name: "filter",
	}
}

// Validate checks the configuration.
func (c *FilterConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Name", &c.Name, "filter")
}

///////////////
//  HANDLER  //
///////////////

// FilterHandler wraps another handler and only forwards the events
// that pass a user-defined predicate. Filtered events still advance
// the consumption cursor, they are just never seen by the inner
// handler.
type FilterHandler[T any] struct {
	tel *internal.Telemetry

	filterFn func(*T) bool
	inner    Handler[T]

	// Metrics
	filteredEvents atomic.Int64
}

var _ Handler[any] = (*FilterHandler[any])(nil)

// NewFilterHandler returns a handler that forwards to inner only the
// events for which filterFn returns true. A nil configuration falls
// back to the default one.
func NewFilterHandler[T any](filterFn func(*T) bool, inner Handler[T], cfg *FilterConfig) *FilterHandler[T] {
	if cfg == nil {
		cfg = DefaultFilterConfig()
	}

	tel := internal.NewTelemetry("processor", cfg.Name)
	config.NewValidator(tel).Validate(cfg)

	fh := &FilterHandler[T]{
		tel: tel,

		filterFn: filterFn,
		inner:    inner,
	}

	fh.initMetrics()

	return fh
}

func (fh *FilterHandler[T]) initMetrics() {
	fh.tel.NewCounter("filtered_events", func() int64 { return fh.filteredEvents.Load() })
}

// OnEvent applies the predicate and forwards passing events to the
// inner handler. When the last event of a batch is filtered out the
// inner handler misses that endOfBatch flag and flushes on the next
// forwarded batch end instead.
func (fh *FilterHandler[T]) OnEvent(event *T, sequence int64, endOfBatch bool) error {
	if !fh.filterFn(event) {
		fh.filteredEvents.Add(1)
		return nil
	}

	return fh.inner.OnEvent(event, sequence, endOfBatch)
}

// OnStart forwards the start notification to the inner handler.
func (fh *FilterHandler[T]) OnStart() {
	notifyStart(fh.inner)
}

// OnShutdown forwards the shutdown notification to the inner handler.
func (fh *FilterHandler[T]) OnShutdown() {
	notifyShutdown(fh.inner)
}
