package processor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/staffetta/exchange"
	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/internal/config"
)

//////////////
//  CONFIG  //
//////////////

// BatchConfig is the configuration for a batch processor.
type BatchConfig struct {
	// Name identifies the processor in logs and metrics.
	//
	// Default: "batch_processor"
	Name string

	// WaitTimeout bounds each wait on the barrier so the processor
	// periodically re-checks its alert state even when no events
	// arrive. Zero waits forever.
	//
	// Default: 0
	WaitTimeout time.Duration
}

// DefaultBatchConfig returns the default configuration for a batch processor.
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		Name: "batch_processor",
	}
}

// Validate checks the configuration.
func (c *BatchConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Name", &c.Name, "batch_processor")
	config.CheckNotNegative(ac, "WaitTimeout", &c.WaitTimeout, 0)
}

///////////////
//  METRICS  //
///////////////

type batchMetrics struct {
	handlerErrors atomic.Int64
}

func (bm *batchMetrics) init(tel *internal.Telemetry, sequence func() int64) {
	tel.NewCounter("processed_sequences", sequence)
	tel.NewCounter("handler_errors", func() int64 { return bm.handlerErrors.Load() })
}

/////////////////
//  PROCESSOR  //
/////////////////

// BatchProcessor drains a ring on a single goroutine, handing events
// to its handler in sequence order. After each wait it processes every
// sequence the barrier reports as available before waiting again, so
// a slow consumer naturally catches up in large batches.
type BatchProcessor[T any] struct {
	tel *internal.Telemetry

	name        string
	waitTimeout time.Duration

	ring    *exchange.RingBuffer[T]
	barrier *exchange.Barrier
	handler Handler[T]

	sequence *exchange.Sequence
	running  atomic.Bool

	metrics batchMetrics
}

// NewBatchProcessor returns a batch processor reading the given ring
// through the given barrier. A nil configuration falls back to the
// default one.
func NewBatchProcessor[T any](
	ring *exchange.RingBuffer[T], barrier *exchange.Barrier, handler Handler[T], cfg *BatchConfig,
) *BatchProcessor[T] {
	if cfg == nil {
		cfg = DefaultBatchConfig()
	}

	tel := internal.NewTelemetry("processor", cfg.Name)
	config.NewValidator(tel).Validate(cfg)

	bp := &BatchProcessor[T]{
		tel: tel,

		name:        cfg.Name,
		waitTimeout: cfg.WaitTimeout,

		ring:    ring,
		barrier: barrier,
		handler: handler,

		sequence: exchange.NewSequence(),
	}

	bp.metrics.init(tel, bp.sequence.Get)

	return bp
}

// Sequence returns the processor's consumption cursor. It must be
// registered as a gating sequence of the ring, and is the dependency
// downstream barriers wait on.
func (bp *BatchProcessor[T]) Sequence() *exchange.Sequence {
	return bp.sequence
}

// Halt alerts the barrier. The processing loop finishes the batch
// already made available to it and exits when its next wait on the
// barrier observes the alert.
func (bp *BatchProcessor[T]) Halt() {
	bp.barrier.Alert()
}

// IsRunning states whether the processing loop is active.
func (bp *BatchProcessor[T]) IsRunning() bool {
	return bp.running.Load()
}

// Run processes events until the barrier is alerted or the context is
// canceled. Handler errors are logged and counted, then processing
// continues with the next event.
func (bp *BatchProcessor[T]) Run(ctx context.Context) error {
	if !bp.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer bp.running.Store(false)

	bp.barrier.ClearAlert()

	stop := context.AfterFunc(ctx, bp.Halt)
	defer stop()

	notifyStart(bp.handler)
	defer notifyShutdown(bp.handler)

	bp.tel.LogInfo("running")
	defer bp.tel.LogInfo("stopped")

	next := bp.sequence.Get() + 1

	for {
		available, err := bp.waitFor(next)

		switch {
		case err == nil:

		case errors.Is(err, exchange.ErrTimeout):
			continue

		case errors.Is(err, exchange.ErrAlert):
			return ctx.Err()

		default:
			return err
		}

		for next <= available {
			event := bp.ring.Get(next)

			if err := bp.handler.OnEvent(event, next, next == available); err != nil {
				bp.metrics.handlerErrors.Add(1)
				bp.tel.LogError("handler failed", err, "sequence", next)
			}

			next++
		}

		bp.sequence.Set(available)
	}
}

func (bp *BatchProcessor[T]) waitFor(sequence int64) (int64, error) {
	if bp.waitTimeout > 0 {
		return bp.barrier.WaitForWithTimeout(sequence, bp.waitTimeout)
	}

	return bp.barrier.WaitFor(sequence)
}
