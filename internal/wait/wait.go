// Package wait contains the strategies a consumer uses to wait
// for the cursor to reach a requested sequence.
package wait

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/staffetta/internal/seq"
)

var (
	// ErrAlert is returned from a wait when the barrier has been alerted.
	ErrAlert = errors.New("wait: barrier alerted")

	// ErrTimeout is returned from a timed wait when the timeout elapses
	// before the cursor reaches the requested sequence.
	ErrTimeout = errors.New("wait: timed out")
)

// Kind is the type of the wait strategy implementation.
type Kind uint8

const (
	// KindBlocking sleeps on a condition variable until a publish signals it.
	KindBlocking Kind = iota
	// KindBusySpin spins on the cursor without yielding.
	KindBusySpin
	// KindYielding spins for a while, then yields to the scheduler.
	KindYielding
	// KindSleeping spins, yields, then parks with a doubling backoff.
	KindSleeping
)

func (k Kind) String() string {
	switch k {
	case KindBlocking:
		return "blocking"
	case KindBusySpin:
		return "busy-spin"
	case KindYielding:
		return "yielding"
	case KindSleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

// Status exposes the alert state of a barrier to a strategy.
// Every strategy must check it on each iteration so that a cancel
// request is observed within bounded time.
type Status interface {
	// CheckAlert returns [ErrAlert] if the barrier has been alerted.
	CheckAlert() error
}

// Strategy is the policy used to wait for a sequence to become available.
// Custom implementations may be plugged into the exchange.
type Strategy interface {
	// WaitFor blocks until the cursor reaches the given sequence,
	// returning the observed cursor value (>= sequence).
	// It returns [ErrAlert] if the status is alerted while waiting.
	WaitFor(sequence int64, cursor *seq.Sequence, status Status) (int64, error)

	// WaitForWithTimeout behaves like WaitFor but gives up after the
	// given timeout, returning the observed cursor together with
	// [ErrTimeout] when it is still below the requested sequence.
	WaitForWithTimeout(sequence int64, cursor *seq.Sequence, status Status, timeout time.Duration) (int64, error)

	// SignalAllWhenBlocking wakes up any waiter parked on a condition
	// variable. It is a no-op for non-blocking strategies.
	SignalAllWhenBlocking()
}

// New returns the strategy implementation for the given kind.
func New(kind Kind) Strategy {
	switch kind {
	case KindBlocking:
		return newBlocking()
	case KindBusySpin:
		return newBusySpin()
	case KindYielding:
		return newYielding()
	case KindSleeping:
		return newSleeping()
	default:
		return newBlocking()
	}
}

// AlertLatch is a sticky cancellation flag shared between a barrier
// and the threads waiting on it.
type AlertLatch struct {
	flag atomic.Bool
}

// Set raises the latch.
func (l *AlertLatch) Set() {
	l.flag.Store(true)
}

// Clear lowers the latch.
func (l *AlertLatch) Clear() {
	l.flag.Store(false)
}

// IsSet states whether the latch is raised.
func (l *AlertLatch) IsSet() bool {
	return l.flag.Load()
}

// Check returns [ErrAlert] if the latch is raised.
func (l *AlertLatch) Check() error {
	if l.flag.Load() {
		return ErrAlert
	}

	return nil
}
