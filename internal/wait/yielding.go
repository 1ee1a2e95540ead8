package wait

import (
	"runtime"
	"time"

	"github.com/FerroO2000/staffetta/internal/seq"
)

const yieldingSpinTries = 100

// yielding spins for a fixed number of tries, then keeps spinning
// while yielding to the scheduler between reads.
type yielding struct{}

func newYielding() *yielding {
	return &yielding{}
}

func (*yielding) WaitFor(sequence int64, cursor *seq.Sequence, status Status) (int64, error) {
	spins := 0

	for {
		if err := status.CheckAlert(); err != nil {
			return 0, err
		}

		if available := cursor.Get(); available >= sequence {
			return available, nil
		}

		spins++
		if spins > yieldingSpinTries {
			runtime.Gosched()
		}
	}
}

func (*yielding) WaitForWithTimeout(sequence int64, cursor *seq.Sequence, status Status, timeout time.Duration) (int64, error) {
	deadline := time.Now().Add(timeout)
	spins := 0

	for {
		if err := status.CheckAlert(); err != nil {
			return 0, err
		}

		available := cursor.Get()
		if available >= sequence {
			return available, nil
		}

		if !time.Now().Before(deadline) {
			return available, ErrTimeout
		}

		spins++
		if spins > yieldingSpinTries {
			runtime.Gosched()
		}
	}
}

func (*yielding) SignalAllWhenBlocking() {}
