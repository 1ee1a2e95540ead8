package wait

import (
	"runtime"
	"time"

	"github.com/FerroO2000/staffetta/internal/seq"
)

const (
	sleepingSpinTries  = 100
	sleepingYieldTries = 100

	sleepingMinPark = 100 * time.Nanosecond
	sleepingMaxPark = time.Millisecond
)

// sleeping spins, then yields, then parks with a doubling backoff.
// A good default when consumers share CPUs with the rest of the process.
type sleeping struct{}

func newSleeping() *sleeping {
	return &sleeping{}
}

func (*sleeping) WaitFor(sequence int64, cursor *seq.Sequence, status Status) (int64, error) {
	spins := 0
	park := sleepingMinPark

	for {
		if err := status.CheckAlert(); err != nil {
			return 0, err
		}

		if available := cursor.Get(); available >= sequence {
			return available, nil
		}

		spins++
		switch {
		case spins <= sleepingSpinTries:
		case spins <= sleepingSpinTries+sleepingYieldTries:
			runtime.Gosched()
		default:
			time.Sleep(park)

			park *= 2
			if park > sleepingMaxPark {
				park = sleepingMaxPark
			}
		}
	}
}

func (*sleeping) WaitForWithTimeout(sequence int64, cursor *seq.Sequence, status Status, timeout time.Duration) (int64, error) {
	deadline := time.Now().Add(timeout)
	spins := 0
	park := sleepingMinPark

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
		switch {
		case spins <= sleepingSpinTries:
		case spins <= sleepingSpinTries+sleepingYieldTries:
			runtime.Gosched()
		default:
			time.Sleep(park)

			park *= 2
			if park > sleepingMaxPark {
				park = sleepingMaxPark
			}
		}
	}
}

func (*sleeping) SignalAllWhenBlocking() {}
