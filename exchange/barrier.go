package exchange

import (
	"runtime"
	"time"

	"github.com/FerroO2000/staffetta/internal/seq"
	"github.com/FerroO2000/staffetta/internal/wait"
)

// Barrier is the coordination point a consumer waits on. It tracks the
// published cursor and the sequences of every upstream consumer, so a
// downstream consumer never observes a slot its dependencies have not
// finished with.
type Barrier struct {
	waiting wait.Strategy
	cursor  *seq.Sequence

	dependencies []*seq.Sequence

	latch wait.AlertLatch
}

func newBarrier(waiting wait.Strategy, cursor *seq.Sequence, dependencies []*seq.Sequence) *Barrier {
	return &Barrier{
		waiting: waiting,
		cursor:  cursor,

		dependencies: dependencies,
	}
}

// WaitFor blocks until the given sequence has been published and every
// dependency has moved past it. It returns the highest sequence safely
// readable, which may be greater than the requested one.
func (b *Barrier) WaitFor(sequence int64) (int64, error) {
	available, err := b.waiting.WaitFor(sequence, b.cursor, b)
	if err != nil {
		return 0, err
	}

	if len(b.dependencies) == 0 {
		return available, nil
	}

	for {
		minimum := seq.Minimum(b.dependencies, available)
		if minimum >= sequence {
			return minimum, nil
		}

		if err := b.CheckAlert(); err != nil {
			return 0, err
		}

		runtime.Gosched()
	}
}

// WaitForWithTimeout behaves like WaitFor but gives up with ErrTimeout
// once the timeout expires, returning the highest sequence observed.
func (b *Barrier) WaitForWithTimeout(sequence int64, timeout time.Duration) (int64, error) {
	deadline := time.Now().Add(timeout)

	available, err := b.waiting.WaitForWithTimeout(sequence, b.cursor, b, timeout)
	if err != nil {
		return available, err
	}

	if len(b.dependencies) == 0 {
		return available, nil
	}

	for {
		minimum := seq.Minimum(b.dependencies, available)
		if minimum >= sequence {
			return minimum, nil
		}

		if err := b.CheckAlert(); err != nil {
			return 0, err
		}

		if !time.Now().Before(deadline) {
			return minimum, ErrTimeout
		}

		runtime.Gosched()
	}
}

// Cursor returns the current published sequence.
func (b *Barrier) Cursor() int64 {
	return b.cursor.Get()
}

// Alert signals every consumer blocked on the barrier to stop waiting.
// The alert is sticky until cleared.
func (b *Barrier) Alert() {
	b.latch.Set()
	b.waiting.SignalAllWhenBlocking()
}

// ClearAlert re-arms the barrier after an alert.
func (b *Barrier) ClearAlert() {
	b.latch.Clear()
}

// IsAlerted states whether the barrier is in the alerted state.
func (b *Barrier) IsAlerted() bool {
	return b.latch.IsSet()
}

// CheckAlert returns ErrAlert while the barrier is alerted.
func (b *Barrier) CheckAlert() error {
	return b.latch.Check()
}
