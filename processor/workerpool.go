package processor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/FerroO2000/staffetta/exchange"
	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/internal/config"
)

//////////////
//  CONFIG  //
//////////////

// WorkerPoolConfig is the configuration for a worker pool.
type WorkerPoolConfig struct {
	// Name identifies the pool in logs and metrics.
	//
	// Default: "worker_pool"
	Name string

	// NumWorkers is the number of worker goroutines.
	//
	// Default: number of CPUs
	NumWorkers int
}

// DefaultWorkerPoolConfig returns the default configuration for a worker pool.
func DefaultWorkerPoolConfig() *WorkerPoolConfig {
	return &WorkerPoolConfig{
		Name:       "worker_pool",
		NumWorkers: runtime.NumCPU(),
	}
}

// Validate checks the configuration.
func (c *WorkerPoolConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Name", &c.Name, "worker_pool")
	config.CheckNotNegative(ac, "NumWorkers", &c.NumWorkers, runtime.NumCPU())
	config.CheckNotZero(ac, "NumWorkers", &c.NumWorkers, runtime.NumCPU())
}

///////////////
//  METRICS  //
///////////////

type workerPoolMetrics struct {
	processedEvents atomic.Int64
	handlerErrors   atomic.Int64
}

func (wpm *workerPoolMetrics) init(tel *internal.Telemetry) {
	tel.NewCounter("processed_events", func() int64 { return wpm.processedEvents.Load() })
	tel.NewCounter("handler_errors", func() int64 { return wpm.handlerErrors.Load() })
}

//////////////
//  WORKER  //
//////////////

type worker[T any] struct {
	pool    *WorkerPool[T]
	handler WorkHandler[T]

	sequence *exchange.Sequence
}

// run claims one sequence at a time from the pool's shared work
// cursor, so each event is handed to exactly one worker. The worker's
// own sequence trails the claim by one, which is what gates producers.
func (w *worker[T]) run() error {
	notifyStart(w.handler)
	defer notifyShutdown(w.handler)

	processed := true
	cachedAvailable := int64(exchange.InitialSequenceValue)
	var next int64

	for {
		if processed {
			processed = false

			for {
				next = w.pool.workSequence.Get() + 1
				w.sequence.Set(next - 1)

				if w.pool.workSequence.CompareAndSet(next-1, next) {
					break
				}
			}
		}

		if cachedAvailable >= next {
			event := w.pool.ring.Get(next)

			if err := w.handler.OnEvent(event); err != nil {
				w.pool.metrics.handlerErrors.Add(1)
				w.pool.tel.LogError("worker handler failed", err, "sequence", next)
			}

			w.pool.metrics.processedEvents.Add(1)
			processed = true

			continue
		}

		available, err := w.pool.barrier.WaitFor(next)

		switch {
		case err == nil:
			cachedAvailable = available

		case errors.Is(err, exchange.ErrAlert):
			return nil

		default:
			return err
		}
	}
}

////////////
//  POOL  //
////////////

// WorkerPool spreads events of a ring across worker goroutines.
// Each event is processed exactly once by one worker, so ordering is
// only preserved per worker, not across the pool.
type WorkerPool[T any] struct {
	tel *internal.Telemetry

	name string

	ring    *exchange.RingBuffer[T]
	barrier *exchange.Barrier

	workSequence *exchange.Sequence
	workers      []*worker[T]

	running atomic.Bool

	metrics workerPoolMetrics
}

// NewWorkerPool returns a worker pool reading the given ring through
// the given barrier. Each worker receives its own handler from the
// maker, so handlers never need internal locking. A nil configuration
// falls back to the default one.
func NewWorkerPool[T any](
	ring *exchange.RingBuffer[T], barrier *exchange.Barrier,
	handlerMaker func() WorkHandler[T], cfg *WorkerPoolConfig,
) *WorkerPool[T] {
	if cfg == nil {
		cfg = DefaultWorkerPoolConfig()
	}

	tel := internal.NewTelemetry("processor", cfg.Name)
	config.NewValidator(tel).Validate(cfg)

	wp := &WorkerPool[T]{
		tel: tel,

		name: cfg.Name,

		ring:    ring,
		barrier: barrier,

		workSequence: exchange.NewSequence(),
	}

	wp.workers = make([]*worker[T], cfg.NumWorkers)
	for idx := range wp.workers {
		wp.workers[idx] = &worker[T]{
			pool:     wp,
			handler:  handlerMaker(),
			sequence: exchange.NewSequence(),
		}
	}

	wp.metrics.init(tel)

	return wp
}

// Sequences returns the consumption cursors of every worker. They must
// all be registered as gating sequences of the ring, and are the
// dependencies downstream barriers wait on.
func (wp *WorkerPool[T]) Sequences() []*exchange.Sequence {
	sequences := make([]*exchange.Sequence, len(wp.workers))
	for idx, w := range wp.workers {
		sequences[idx] = w.sequence
	}

	return sequences
}

// Halt alerts the barrier. Each worker finishes the events already made
// available to it and exits when its next wait on the barrier observes
// the alert.
func (wp *WorkerPool[T]) Halt() {
	wp.barrier.Alert()
}

// IsRunning states whether the pool is active.
func (wp *WorkerPool[T]) IsRunning() bool {
	return wp.running.Load()
}

// Run starts every worker and blocks until all of them have stopped,
// either after an alert or after the context is canceled.
func (wp *WorkerPool[T]) Run(ctx context.Context) error {
	if !wp.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer wp.running.Store(false)

	wp.barrier.ClearAlert()

	stop := context.AfterFunc(ctx, wp.Halt)
	defer stop()

	wp.tel.LogInfo("running", "workers", len(wp.workers))
	defer wp.tel.LogInfo("stopped")

	var wg sync.WaitGroup
	errs := make([]error, len(wp.workers))

	for idx, w := range wp.workers {
		wg.Add(1)

		go func() {
			defer wg.Done()
			errs[idx] = w.run()
		}()
	}

	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}

	return ctx.Err()
}
