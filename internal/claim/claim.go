// Package claim contains the strategies producers use to claim
// sequences ahead of the published cursor.
package claim

import (
	"runtime"
	"time"

	"github.com/FerroO2000/staffetta/internal/wait"
)

const (
	spinTries  = 100
	yieldTries = 100

	parkDuration = time.Microsecond
)

// Kind is the type of the claim strategy implementation.
type Kind uint8

const (
	// KindSingle is the single-producer claim strategy.
	// The claim cursor is a plain counter; no fences are needed on the
	// claim path because at most one goroutine publishes.
	KindSingle Kind = iota

	// KindMulti is the multi-producer claim strategy.
	// The claim cursor is advanced atomically so producers interleave.
	KindMulti
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindMulti:
		return "multi"
	default:
		return "unknown"
	}
}

// GatingMinimum returns the lowest sequence among the gating set.
// It is re-evaluated on every wrap check so a strategy never caches
// a stale view across calls it cannot invalidate itself.
type GatingMinimum func() int64

// Strategy hands out claim sequences and guards against wrapping
// over slots still referenced by a gating consumer.
type Strategy interface {
	// IncrementAndGet claims the next n contiguous sequences and
	// returns the last one.
	IncrementAndGet(n int64) int64

	// TryIncrement claims one sequence only if room is available
	// against the gating minimum, returning false otherwise.
	TryIncrement(gating GatingMinimum) (int64, bool)

	// Sequence returns the highest sequence handed out so far.
	Sequence() int64

	// SetSequence resynchronizes the claim cursor.
	// Only meaningful for the single-producer strategy.
	SetSequence(sequence int64)

	// EnsureAvailable blocks until claiming the given sequence no longer
	// overruns the gating minimum. The latch is polled on every spin so
	// a stalled producer observes cancellation within bounded time.
	EnsureAvailable(sequence int64, gating GatingMinimum, latch *wait.AlertLatch) error

	// HasAvailable states whether the given sequence can be claimed
	// without waiting.
	HasAvailable(sequence int64, gating GatingMinimum) bool
}

// New returns the claim strategy for the given kind and ring capacity.
// Capacity must already be a power of two.
func New(kind Kind, capacity int64) Strategy {
	switch kind {
	case KindSingle:
		return newSingle(capacity)
	case KindMulti:
		return newMulti(capacity)
	default:
		return newMulti(capacity)
	}
}

// waitForRoom spins until the gating minimum reaches wrapPoint,
// with a staged backoff: tight spin, then yield, then short park.
func waitForRoom(wrapPoint int64, gating GatingMinimum, latch *wait.AlertLatch) (int64, error) {
	spins := 0

	for {
		minimum := gating()
		if minimum >= wrapPoint {
			return minimum, nil
		}

		if latch != nil {
			if err := latch.Check(); err != nil {
				return minimum, err
			}
		}

		spins++
		switch {
		case spins <= spinTries:
		case spins <= spinTries+yieldTries:
			runtime.Gosched()
		default:
			time.Sleep(parkDuration)
		}
	}
}
