package claim

import (
	"github.com/FerroO2000/staffetta/internal/seq"
	"github.com/FerroO2000/staffetta/internal/wait"
)

// single is the claim strategy for exactly one producer goroutine.
// The next counter is plain because it has a single writer; the gating
// minimum is cached to avoid re-scanning the gating set on every claim.
type single struct {
	capacity int64

	next      int64
	cachedMin int64
}

func newSingle(capacity int64) *single {
	return &single{
		capacity: capacity,

		next:      seq.InitialValue,
		cachedMin: seq.InitialValue,
	}
}

func (s *single) IncrementAndGet(n int64) int64 {
	s.next += n
	return s.next
}

func (s *single) TryIncrement(gating GatingMinimum) (int64, bool) {
	next := s.next + 1

	if !s.hasRoom(next, gating) {
		return 0, false
	}

	s.next = next
	return next, true
}

func (s *single) Sequence() int64 {
	return s.next
}

func (s *single) SetSequence(sequence int64) {
	s.next = sequence
}

func (s *single) hasRoom(sequence int64, gating GatingMinimum) bool {
	wrapPoint := sequence - s.capacity

	if wrapPoint <= s.cachedMin {
		return true
	}

	minimum := gating()
	s.cachedMin = minimum

	return wrapPoint <= minimum
}

func (s *single) EnsureAvailable(sequence int64, gating GatingMinimum, latch *wait.AlertLatch) error {
	wrapPoint := sequence - s.capacity

	if wrapPoint <= s.cachedMin {
		return nil
	}

	minimum, err := waitForRoom(wrapPoint, gating, latch)
	s.cachedMin = minimum

	return err
}

func (s *single) HasAvailable(sequence int64, gating GatingMinimum) bool {
	return s.hasRoom(sequence, gating)
}
