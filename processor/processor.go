// Package processor contains the consumer runtimes that drain an
// exchange ring: the single-goroutine batch processor and the
// worker pool that spreads events across goroutines.
package processor

import (
	"errors"
)

// ErrAlreadyRunning is returned when a processor is started twice.
var ErrAlreadyRunning = errors.New("processor is already running")

// Handler consumes events in sequence order. The endOfBatch flag is
// true for the last event of the batch made visible by a single wait,
// so handlers can flush downstream resources once per batch.
type Handler[T any] interface {
	OnEvent(event *T, sequence int64, endOfBatch bool) error
}

// WorkHandler consumes events distributed over a worker pool.
// Each event is handed to exactly one worker, so ordering across
// workers is not preserved.
type WorkHandler[T any] interface {
	OnEvent(event *T) error
}

// StartAware is implemented by handlers that want a callback on the
// processing goroutine before the first event.
type StartAware interface {
	OnStart()
}

// ShutdownAware is implemented by handlers that want a callback on the
// processing goroutine after the last event.
type ShutdownAware interface {
	OnShutdown()
}

func notifyStart(handler any) {
	if aware, ok := handler.(StartAware); ok {
		aware.OnStart()
	}
}

func notifyShutdown(handler any) {
	if aware, ok := handler.(ShutdownAware); ok {
		aware.OnShutdown()
	}
}
