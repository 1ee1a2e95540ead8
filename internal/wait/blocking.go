package wait

import (
	"sync"
	"time"

	"github.com/FerroO2000/staffetta/internal/seq"
)

// blocking parks the waiter on a condition variable until a publish
// signals progress. Lowest CPU usage, highest wake-up latency.
type blocking struct {
	mux  *sync.Mutex
	cond *sync.Cond
}

func newBlocking() *blocking {
	mux := &sync.Mutex{}

	return &blocking{
		mux:  mux,
		cond: sync.NewCond(mux),
	}
}

func (b *blocking) WaitFor(sequence int64, cursor *seq.Sequence, status Status) (int64, error) {
	available := cursor.Get()
	if available >= sequence {
		return available, nil
	}

	b.mux.Lock()

	for {
		if err := status.CheckAlert(); err != nil {
			b.mux.Unlock()
			return 0, err
		}

		available = cursor.Get()
		if available >= sequence {
			break
		}

		b.cond.Wait()
	}

	b.mux.Unlock()

	return available, nil
}

func (b *blocking) WaitForWithTimeout(sequence int64, cursor *seq.Sequence, status Status, timeout time.Duration) (int64, error) {
	available := cursor.Get()
	if available >= sequence {
		return available, nil
	}

	deadline := time.Now().Add(timeout)

	// The condition variable has no timed wait, so a helper timer
	// broadcasts once the deadline passes to wake this waiter up.
	timer := time.AfterFunc(timeout, b.SignalAllWhenBlocking)
	defer timer.Stop()

	b.mux.Lock()

	for {
		if err := status.CheckAlert(); err != nil {
			b.mux.Unlock()
			return 0, err
		}

		available = cursor.Get()
		if available >= sequence {
			break
		}

		if !time.Now().Before(deadline) {
			b.mux.Unlock()
			return available, ErrTimeout
		}

		b.cond.Wait()
	}

	b.mux.Unlock()

	return available, nil
}

func (b *blocking) SignalAllWhenBlocking() {
	b.mux.Lock()
	b.cond.Broadcast()
	b.mux.Unlock()
}
