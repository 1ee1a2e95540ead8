// Package exchange implements a bounded event exchange over a single
// pre-allocated ring. Producers claim sequences, write the slots they
// own, and publish; consumers follow behind through barriers that
// expose the highest safely readable sequence.
package exchange

import (
	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/internal/seq"
)

// RingBuffer is the pre-allocated slot store of the exchange.
// Entries are created once by the factory and reused for the whole
// lifetime of the ring, so steady-state publication allocates nothing.
type RingBuffer[T any] struct {
	tel *internal.Telemetry

	entries []T
	mask    int64

	sequencer *Sequencer
}

// NewRingBuffer returns a ring whose slots are initialized with the
// given factory. The configuration is validated the same way as
// NewSequencer.
func NewRingBuffer[T any](factory func() T, cfg *Config) (*RingBuffer[T], error) {
	sequencer, err := NewSequencer(cfg)
	if err != nil {
		return nil, err
	}

	capacity := sequencer.Capacity()

	entries := make([]T, capacity)
	for idx := range entries {
		entries[idx] = factory()
	}

	return &RingBuffer[T]{
		tel: internal.NewTelemetry("exchange", "ring_buffer"),

		entries: entries,
		mask:    capacity - 1,

		sequencer: sequencer,
	}, nil
}

// Get returns the slot for the given sequence. The caller must own the
// sequence, either by having claimed it or by having waited for it
// through a barrier.
func (r *RingBuffer[T]) Get(sequence int64) *T {
	return &r.entries[sequence&r.mask]
}

// Capacity returns the number of slots in the ring.
func (r *RingBuffer[T]) Capacity() int64 {
	return r.sequencer.Capacity()
}

// Cursor returns the published cursor.
func (r *RingBuffer[T]) Cursor() *seq.Sequence {
	return r.sequencer.Cursor()
}

// RemainingCapacity returns the number of slots a producer could still
// claim without waiting.
func (r *RingBuffer[T]) RemainingCapacity() int64 {
	return r.sequencer.RemainingCapacity()
}

// Sequencer returns the sequencer that coordinates the ring.
func (r *RingBuffer[T]) Sequencer() *Sequencer {
	return r.sequencer
}

// Next claims the next sequence, waiting for room if the ring is full.
func (r *RingBuffer[T]) Next() (int64, error) {
	return r.sequencer.Next()
}

// NextBatch claims the next n contiguous sequences.
func (r *RingBuffer[T]) NextBatch(n int64) (seq.Batch, error) {
	return r.sequencer.NextBatch(n)
}

// TryNext claims the next sequence without waiting.
func (r *RingBuffer[T]) TryNext() (int64, error) {
	return r.sequencer.TryNext()
}

// Publish makes the slot at the given sequence visible to consumers.
func (r *RingBuffer[T]) Publish(sequence int64) {
	r.sequencer.Publish(sequence)
}

// PublishBatch makes every slot of the batch visible to consumers.
func (r *RingBuffer[T]) PublishBatch(batch seq.Batch) {
	r.sequencer.PublishBatch(batch)
}

// Claim resynchronizes the claim cursor to the given sequence.
func (r *RingBuffer[T]) Claim(sequence int64) {
	r.sequencer.Claim(sequence)
}

// ForcePublish moves the published cursor straight to the given sequence.
func (r *RingBuffer[T]) ForcePublish(sequence int64) {
	r.sequencer.ForcePublish(sequence)
}

// NewBarrier returns a barrier over the ring's cursor and the given
// dependency sequences.
func (r *RingBuffer[T]) NewBarrier(dependencies ...*seq.Sequence) *Barrier {
	return r.sequencer.NewBarrier(dependencies...)
}

// AddGatingSequences registers sequences producers must not overrun.
func (r *RingBuffer[T]) AddGatingSequences(sequences ...*seq.Sequence) error {
	return r.sequencer.AddGatingSequences(sequences...)
}

// RemoveGatingSequence unregisters a gating sequence.
func (r *RingBuffer[T]) RemoveGatingSequence(sequence *seq.Sequence) bool {
	return r.sequencer.RemoveGatingSequence(sequence)
}
