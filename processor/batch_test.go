package processor

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FerroO2000/staffetta/exchange"
	"github.com/stretchr/testify/assert"
)

type recordingHandler struct {
	mux sync.Mutex

	values     []int64
	sequences  []int64
	batchEnds  int
	started    atomic.Bool
	shutdown   atomic.Bool
	failOn     int64
	handlerErr error
}

func (h *recordingHandler) OnStart() {
	h.started.Store(true)
}

func (h *recordingHandler) OnShutdown() {
	h.shutdown.Store(true)
}

func (h *recordingHandler) OnEvent(event *int64, sequence int64, endOfBatch bool) error {
	h.mux.Lock()
	defer h.mux.Unlock()

	if h.handlerErr != nil && sequence == h.failOn {
		return h.handlerErr
	}

	h.values = append(h.values, *event)
	h.sequences = append(h.sequences, sequence)
	if endOfBatch {
		h.batchEnds++
	}

	return nil
}

func (h *recordingHandler) snapshot() ([]int64, []int64, int) {
	h.mux.Lock()
	defer h.mux.Unlock()

	values := make([]int64, len(h.values))
	copy(values, h.values)
	sequences := make([]int64, len(h.sequences))
	copy(sequences, h.sequences)

	return values, sequences, h.batchEnds
}

func newTestRing(t *testing.T, producer exchange.ProducerKind) *exchange.RingBuffer[int64] {
	t.Helper()

	ring, err := exchange.NewRingBuffer(func() int64 { return 0 }, &exchange.Config{
		Capacity: 64,
		Producer: producer,
	})
	assert.NoError(t, err)

	return ring
}

func waitForSequence(t *testing.T, sequence *exchange.Sequence, target int64) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for sequence.Get() < target {
		if time.Now().After(deadline) {
			t.Fatalf("sequence stuck at %d, want %d", sequence.Get(), target)
		}

		time.Sleep(time.Millisecond)
	}
}

func Test_BatchProcessor(t *testing.T) {
	const items = 200

	assert := assert.New(t)

	ring := newTestRing(t, exchange.KindSingleProducer)
	barrier := ring.NewBarrier()

	handler := &recordingHandler{}
	bp := NewBatchProcessor(ring, barrier, handler, nil)

	assert.NoError(ring.AddGatingSequences(bp.Sequence()))
	assert.False(bp.IsRunning())

	var runWg sync.WaitGroup
	runWg.Add(1)

	go func() {
		defer runWg.Done()
		assert.NoError(bp.Run(t.Context()))
	}()

	publisher := exchange.NewPublisher(ring)
	for item := range int64(items) {
		err := publisher.PublishEvent(func(event *int64, _ int64) {
			*event = item * 10
		})
		assert.NoError(err)
	}

	waitForSequence(t, bp.Sequence(), items-1)
	assert.True(bp.IsRunning())

	bp.Halt()
	runWg.Wait()

	assert.False(bp.IsRunning())
	assert.True(handler.started.Load())
	assert.True(handler.shutdown.Load())

	values, sequences, batchEnds := handler.snapshot()

	assert.Len(values, items)
	for idx := range int64(items) {
		assert.Equal(idx*10, values[idx])
		assert.Equal(idx, sequences[idx])
	}

	// Each wait round ends exactly one batch.
	assert.GreaterOrEqual(batchEnds, 1)
	assert.LessOrEqual(batchEnds, items)
}

func Test_BatchProcessor_AlreadyRunning(t *testing.T) {
	assert := assert.New(t)

	ring := newTestRing(t, exchange.KindSingleProducer)
	barrier := ring.NewBarrier()

	bp := NewBatchProcessor(ring, barrier, &recordingHandler{}, nil)
	assert.NoError(ring.AddGatingSequences(bp.Sequence()))

	var runWg sync.WaitGroup
	runWg.Add(1)

	go func() {
		defer runWg.Done()
		bp.Run(t.Context())
	}()

	deadline := time.Now().Add(time.Second)
	for !bp.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	assert.ErrorIs(bp.Run(t.Context()), ErrAlreadyRunning)

	bp.Halt()
	runWg.Wait()
}

func Test_BatchProcessor_HandlerErrorContinues(t *testing.T) {
	const items = 10

	assert := assert.New(t)

	ring := newTestRing(t, exchange.KindSingleProducer)
	barrier := ring.NewBarrier()

	handler := &recordingHandler{failOn: 3, handlerErr: errors.New("boom")}
	bp := NewBatchProcessor(ring, barrier, handler, &BatchConfig{Name: "failing_batch"})

	assert.NoError(ring.AddGatingSequences(bp.Sequence()))

	var runWg sync.WaitGroup
	runWg.Add(1)

	go func() {
		defer runWg.Done()
		bp.Run(t.Context())
	}()

	publisher := exchange.NewPublisher(ring)
	for item := range int64(items) {
		err := publisher.PublishEvent(func(event *int64, _ int64) {
			*event = item
		})
		assert.NoError(err)
	}

	waitForSequence(t, bp.Sequence(), items-1)

	bp.Halt()
	runWg.Wait()

	// The failed sequence is skipped, everything after it is processed.
	_, sequences, _ := handler.snapshot()
	assert.Len(sequences, items-1)
	assert.NotContains(sequences, int64(3))
}

func Test_BatchProcessor_WaitTimeoutRecheck(t *testing.T) {
	assert := assert.New(t)

	ring := newTestRing(t, exchange.KindSingleProducer)
	barrier := ring.NewBarrier()

	handler := &recordingHandler{}
	bp := NewBatchProcessor(ring, barrier, handler, &BatchConfig{
		Name:        "timed_batch",
		WaitTimeout: 5 * time.Millisecond,
	})

	assert.NoError(ring.AddGatingSequences(bp.Sequence()))

	var runWg sync.WaitGroup
	runWg.Add(1)

	go func() {
		defer runWg.Done()
		assert.NoError(bp.Run(t.Context()))
	}()

	// No events at all, the processor keeps re-arming its wait.
	time.Sleep(30 * time.Millisecond)
	assert.True(bp.IsRunning())

	publisher := exchange.NewPublisher(ring)
	err := publisher.PublishEvent(func(event *int64, _ int64) {
		*event = 7
	})
	assert.NoError(err)

	waitForSequence(t, bp.Sequence(), 0)

	bp.Halt()
	runWg.Wait()

	values, _, _ := handler.snapshot()
	assert.Equal([]int64{7}, values)
}
