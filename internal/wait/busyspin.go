package wait

import (
	"time"

	"github.com/FerroO2000/staffetta/internal/seq"
)

// busySpin re-reads the cursor in a tight loop.
// Lowest latency, burns a whole core; use it only when consumers
// can be pinned to spare CPUs.
type busySpin struct{}

func newBusySpin() *busySpin {
	return &busySpin{}
}

func (*busySpin) WaitFor(sequence int64, cursor *seq.Sequence, status Status) (int64, error) {
	for {
		if err := status.CheckAlert(); err != nil {
			return 0, err
		}

		if available := cursor.Get(); available >= sequence {
			return available, nil
		}
	}
}

func (*busySpin) WaitForWithTimeout(sequence int64, cursor *seq.Sequence, status Status, timeout time.Duration) (int64, error) {
	deadline := time.Now().Add(timeout)

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
	}
}

func (*busySpin) SignalAllWhenBlocking() {}
