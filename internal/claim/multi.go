package claim

import (
	"github.com/FerroO2000/staffetta/internal/seq"
	"github.com/FerroO2000/staffetta/internal/wait"
)

// multi is the claim strategy for concurrent producers.
// The claim cursor is a padded atomic advanced with fetch-add, so each
// producer receives a distinct contiguous range.
type multi struct {
	capacity int64

	claim *seq.Sequence
}

func newMulti(capacity int64) *multi {
	return &multi{
		capacity: capacity,

		claim: seq.New(),
	}
}

func (m *multi) IncrementAndGet(n int64) int64 {
	return m.claim.AddAndGet(n)
}

func (m *multi) TryIncrement(gating GatingMinimum) (int64, bool) {
	for {
		current := m.claim.Get()
		next := current + 1

		if next-m.capacity > gating() {
			return 0, false
		}

		if m.claim.CompareAndSet(current, next) {
			return next, true
		}
	}
}

func (m *multi) Sequence() int64 {
	return m.claim.Get()
}

func (m *multi) SetSequence(sequence int64) {
	m.claim.Set(sequence)
}

func (m *multi) EnsureAvailable(sequence int64, gating GatingMinimum, latch *wait.AlertLatch) error {
	_, err := waitForRoom(sequence-m.capacity, gating, latch)
	return err
}

func (m *multi) HasAvailable(sequence int64, gating GatingMinimum) bool {
	return sequence-m.capacity <= gating()
}
