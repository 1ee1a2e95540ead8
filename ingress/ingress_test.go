package ingress

import (
	"testing"
	"time"

	"github.com/FerroO2000/staffetta/exchange"
	"github.com/FerroO2000/staffetta/internal/record"
	"github.com/stretchr/testify/assert"
)

// newTestPublisher returns a publisher over an ungated ring, so tests
// read published records straight from the slots.
func newTestPublisher(t *testing.T) (*Publisher, *exchange.RingBuffer[record.Record]) {
	t.Helper()

	ring, err := exchange.NewRingBuffer(func() record.Record { return record.Record{} }, &exchange.Config{
		Capacity:     256,
		Producer:     exchange.KindMultiProducer,
		AllowUngated: true,
	})
	assert.NoError(t, err)

	return exchange.NewPublisher(ring), ring
}

func waitForCursor(t *testing.T, ring *exchange.RingBuffer[record.Record], target int64) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for ring.Cursor().Get() < target {
		if time.Now().After(deadline) {
			t.Fatalf("cursor stuck at %d, want %d", ring.Cursor().Get(), target)
		}

		time.Sleep(time.Millisecond)
	}
}
