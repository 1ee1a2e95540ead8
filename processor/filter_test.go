package processor

import (
	"sync"
	"testing"

	"github.com/FerroO2000/staffetta/exchange"
	"github.com/stretchr/testify/assert"
)

func Test_FilterHandler(t *testing.T) {
	assert := assert.New(t)

	inner := &recordingHandler{}

	onlyEven := func(event *int64) bool { return *event%2 == 0 }
	filter := NewFilterHandler(onlyEven, Handler[int64](inner), nil)

	filter.OnStart()

	for idx := range int64(6) {
		event := idx
		assert.NoError(filter.OnEvent(&event, idx, idx == 5))
	}

	filter.OnShutdown()

	values, sequences, _ := inner.snapshot()
	assert.Equal([]int64{0, 2, 4}, values)
	assert.Equal([]int64{0, 2, 4}, sequences)

	assert.Equal(int64(3), filter.filteredEvents.Load())
	assert.True(inner.started.Load())
	assert.True(inner.shutdown.Load())
}

func Test_FilterHandler_InProcessor(t *testing.T) {
	const items = 50

	assert := assert.New(t)

	ring := newTestRing(t, exchange.KindSingleProducer)
	barrier := ring.NewBarrier()

	inner := &recordingHandler{}
	dropNegative := func(event *int64) bool { return *event >= 0 }
	filter := NewFilterHandler(dropNegative, Handler[int64](inner), &FilterConfig{Name: "drop_negative"})

	bp := NewBatchProcessor[int64](ring, barrier, filter, nil)
	assert.NoError(ring.AddGatingSequences(bp.Sequence()))

	var runWg sync.WaitGroup
	runWg.Add(1)

	go func() {
		defer runWg.Done()
		assert.NoError(bp.Run(t.Context()))
	}()

	publisher := exchange.NewPublisher(ring)
	for item := range int64(items) {
		err := publisher.PublishEvent(func(event *int64, _ int64) {
			if item%5 == 0 {
				*event = -item
			} else {
				*event = item
			}
		})
		assert.NoError(err)
	}

	waitForSequence(t, bp.Sequence(), items-1)

	bp.Halt()
	runWg.Wait()

	values, _, _ := inner.snapshot()

	// Every fifth event is negative and dropped. Sequence 0 publishes
	// the value 0, which passes the predicate.
	assert.Len(values, items-items/5+1)
	for _, value := range values {
		assert.GreaterOrEqual(value, int64(0))
	}
}
