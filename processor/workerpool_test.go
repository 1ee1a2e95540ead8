package processor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FerroO2000/staffetta/exchange"
	"github.com/stretchr/testify/assert"
)

type countingWorkHandler struct {
	seen  *sync.Map
	count *atomic.Int64
}

func (h *countingWorkHandler) OnEvent(event *int64) error {
	_, loaded := h.seen.LoadOrStore(*event, true)
	if loaded {
		return nil
	}

	h.count.Add(1)
	return nil
}

func Test_WorkerPool(t *testing.T) {
	const (
		workers = 4
		items   = 50_000
	)

	assert := assert.New(t)

	ring, err := exchange.NewRingBuffer(func() int64 { return 0 }, &exchange.Config{
		Capacity: 1024,
		Producer: exchange.KindSingleProducer,
		Wait:     exchange.WaitKindYielding,
	})
	assert.NoError(err)

	barrier := ring.NewBarrier()

	seen := &sync.Map{}
	var count atomic.Int64

	pool := NewWorkerPool(ring, barrier, func() WorkHandler[int64] {
		return &countingWorkHandler{seen: seen, count: &count}
	}, &WorkerPoolConfig{Name: "test_pool", NumWorkers: workers})

	sequences := pool.Sequences()
	assert.Len(sequences, workers)
	assert.NoError(ring.AddGatingSequences(sequences...))

	var runWg sync.WaitGroup
	runWg.Add(1)

	go func() {
		defer runWg.Done()
		assert.NoError(pool.Run(t.Context()))
	}()

	publisher := exchange.NewPublisher(ring)
	for item := range int64(items) {
		err := publisher.PublishEvent(func(event *int64, _ int64) {
			*event = item
		})
		assert.NoError(err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for count.Load() < items {
		if time.Now().After(deadline) {
			t.Fatalf("pool stuck at %d processed events, want %d", count.Load(), items)
		}

		time.Sleep(time.Millisecond)
	}

	assert.True(pool.IsRunning())

	pool.Halt()
	runWg.Wait()

	assert.False(pool.IsRunning())

	// Every event was handed to exactly one worker.
	assert.Equal(int64(items), count.Load())
}

func Test_WorkerPool_AlreadyRunning(t *testing.T) {
	assert := assert.New(t)

	ring, err := exchange.NewRingBuffer(func() int64 { return 0 }, &exchange.Config{Capacity: 64})
	assert.NoError(err)

	barrier := ring.NewBarrier()

	pool := NewWorkerPool(ring, barrier, func() WorkHandler[int64] {
		return &countingWorkHandler{seen: &sync.Map{}, count: &atomic.Int64{}}
	}, &WorkerPoolConfig{Name: "dup_pool", NumWorkers: 2})

	assert.NoError(ring.AddGatingSequences(pool.Sequences()...))

	var runWg sync.WaitGroup
	runWg.Add(1)

	go func() {
		defer runWg.Done()
		pool.Run(t.Context())
	}()

	deadline := time.Now().Add(time.Second)
	for !pool.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	assert.ErrorIs(pool.Run(t.Context()), ErrAlreadyRunning)

	pool.Halt()
	runWg.Wait()
}
