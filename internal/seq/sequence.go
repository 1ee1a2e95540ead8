// Package seq provides the padded atomic sequence primitive used to
// coordinate producers and consumers over the exchange.
package seq

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// InitialValue is the starting point of every sequence,
// meaning no position has been published yet.
const InitialValue int64 = -1

// Sequence is a monotonically non-decreasing 64-bit counter.
// The value is padded on both sides to keep it alone on its cache line,
// so that independent sequences never contend through false sharing.
type Sequence struct {
	_ cpu.CacheLinePad

	value atomic.Int64

	_ cpu.CacheLinePad
}

// New returns a new sequence starting at [InitialValue].
func New() *Sequence {
	return NewAt(InitialValue)
}

// NewAt returns a new sequence starting at the given value.
func NewAt(initial int64) *Sequence {
	s := &Sequence{}
	s.value.Store(initial)
	return s
}

// Get returns the current value of the sequence.
func (s *Sequence) Get() int64 {
	return s.value.Load()
}

// Set updates the sequence.
// The store pairs with [Sequence.Get] to order all writes
// made before the set against reads made after the get.
func (s *Sequence) Set(value int64) {
	s.value.Store(value)
}

// CompareAndSet updates the sequence only if it still holds the expected value.
func (s *Sequence) CompareAndSet(expected, value int64) bool {
	return s.value.CompareAndSwap(expected, value)
}

// IncrementAndGet advances the sequence by one and returns the new value.
func (s *Sequence) IncrementAndGet() int64 {
	return s.value.Add(1)
}

// AddAndGet advances the sequence by the given delta and returns the new value.
func (s *Sequence) AddAndGet(delta int64) int64 {
	return s.value.Add(delta)
}
