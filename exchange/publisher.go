package exchange

import (
	"sync/atomic"

	"github.com/FerroO2000/staffetta/internal"
)

// Translator writes an event into a claimed slot. It must only touch
// the slot it is handed.
type Translator[T any] func(event *T, sequence int64)

// Publisher wraps a ring with the claim-write-publish protocol so
// callers provide only the slot writing logic.
type Publisher[T any] struct {
	tel *internal.Telemetry

	ring *RingBuffer[T]

	publishedEvents atomic.Int64
	droppedEvents   atomic.Int64
}

// NewPublisher returns a publisher over the given ring.
func NewPublisher[T any](ring *RingBuffer[T]) *Publisher[T] {
	p := &Publisher[T]{
		tel: internal.NewTelemetry("exchange", "publisher"),

		ring: ring,
	}

	p.tel.NewCounter("published_events", func() int64 { return p.publishedEvents.Load() })
	p.tel.NewCounter("dropped_events", func() int64 { return p.droppedEvents.Load() })

	return p
}

// PublishEvent claims a slot, hands it to the translator, and
// publishes it. It waits for room if the ring is full.
func (p *Publisher[T]) PublishEvent(translator Translator[T]) error {
	sequence, err := p.ring.Next()
	if err != nil {
		return err
	}

	translator(p.ring.Get(sequence), sequence)
	p.ring.Publish(sequence)

	p.publishedEvents.Add(1)
	return nil
}

// TryPublishEvent behaves like PublishEvent but never waits, returning
// ErrInsufficientCapacity when the ring is full.
func (p *Publisher[T]) TryPublishEvent(translator Translator[T]) error {
	sequence, err := p.ring.TryNext()
	if err != nil {
		p.droppedEvents.Add(1)
		return err
	}

	translator(p.ring.Get(sequence), sequence)
	p.ring.Publish(sequence)

	p.publishedEvents.Add(1)
	return nil
}

// PublishEvents claims a contiguous batch, hands each slot to its
// translator, and publishes the whole batch at once.
func (p *Publisher[T]) PublishEvents(translators []Translator[T]) error {
	if len(translators) == 0 {
		return nil
	}

	batch, err := p.ring.NextBatch(int64(len(translators)))
	if err != nil {
		return err
	}

	sequence := batch.Start()
	for _, translator := range translators {
		translator(p.ring.Get(sequence), sequence)
		sequence++
	}

	p.ring.PublishBatch(batch)

	p.publishedEvents.Add(int64(len(translators)))
	return nil
}

// Ring returns the underlying ring.
func (p *Publisher[T]) Ring() *RingBuffer[T] {
	return p.ring
}
