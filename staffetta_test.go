package staffetta

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type journalingHandler struct {
	count atomic.Int64
	last  atomic.Int64
}

func (h *journalingHandler) OnEvent(event *int64, _ int64, _ bool) error {
	h.count.Add(1)
	h.last.Store(*event)
	return nil
}

type summingHandler struct {
	total atomic.Int64
}

func (h *summingHandler) OnEvent(event *int64, _ int64, _ bool) error {
	h.total.Add(*event)
	return nil
}

type poolCounter struct {
	count *atomic.Int64
}

func (h *poolCounter) OnEvent(_ *int64) error {
	h.count.Add(1)
	return nil
}

func Test_Exchange_SingleProducerChain(t *testing.T) {
	const items = 100_000

	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.Capacity = 1024
	cfg.Producer = KindSingleProducer
	cfg.Wait = WaitKindYielding

	ex, err := New(func() int64 { return 0 }, cfg)
	assert.NoError(err)

	journal := &journalingHandler{}
	sum := &summingHandler{}

	// The sum only observes events the journal has finished with.
	ex.HandleEventsWith(journal).Then(sum)

	assert.NoError(ex.Start(t.Context()))

	publisher := ex.Publisher()
	for item := range int64(items) {
		err := publisher.PublishEvent(func(event *int64, _ int64) {
			*event = item + 1
		})
		assert.NoError(err)
	}

	assert.NoError(ex.Drain(t.Context()))

	assert.Equal(int64(items), journal.count.Load())
	assert.Equal(int64(items), journal.last.Load())
	assert.Equal(int64(items)*(items+1)/2, sum.total.Load())
}

func Test_Exchange_MultiProducer(t *testing.T) {
	const (
		producers        = 4
		itemsPerProducer = 20_000
	)

	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.Capacity = 1024
	cfg.Producer = KindMultiProducer
	cfg.Wait = WaitKindYielding

	ex, err := New(func() int64 { return 0 }, cfg)
	assert.NoError(err)

	sum := &summingHandler{}
	ex.HandleEventsWith(sum)

	assert.NoError(ex.Start(t.Context()))

	var wg sync.WaitGroup
	wg.Add(producers)

	publisher := ex.Publisher()
	for range producers {
		go func() {
			defer wg.Done()

			for range itemsPerProducer {
				err := publisher.PublishEvent(func(event *int64, _ int64) {
					*event = 1
				})
				assert.NoError(err)
			}
		}()
	}

	wg.Wait()

	assert.NoError(ex.Drain(t.Context()))

	assert.Equal(int64(producers*itemsPerProducer), sum.total.Load())
}

func Test_Exchange_PoolGroup(t *testing.T) {
	const items = 10_000

	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.Capacity = 256
	cfg.Producer = KindSingleProducer

	ex, err := New(func() int64 { return 0 }, cfg)
	assert.NoError(err)

	var count atomic.Int64
	ex.HandleEventsWithPool(func() WorkHandler[int64] {
		return &poolCounter{count: &count}
	}, nil)

	assert.NoError(ex.Start(t.Context()))

	publisher := ex.Publisher()
	for range items {
		err := publisher.PublishEvent(func(event *int64, _ int64) {
			*event = 1
		})
		assert.NoError(err)
	}

	assert.NoError(ex.Drain(t.Context()))

	assert.Equal(int64(items), count.Load())
}

func Test_Exchange_StartTwice(t *testing.T) {
	assert := assert.New(t)

	ex, err := New(func() int64 { return 0 }, nil)
	assert.NoError(err)

	ex.HandleEventsWith(&journalingHandler{})

	assert.NoError(ex.Start(t.Context()))
	assert.Error(ex.Start(t.Context()))

	ex.Halt()
}

func Test_Exchange_HaltIdempotent(t *testing.T) {
	assert := assert.New(t)

	ex, err := New(func() int64 { return 0 }, nil)
	assert.NoError(err)

	// Halt before Start is a no-op.
	ex.Halt()

	ex.HandleEventsWith(&journalingHandler{})
	assert.NoError(ex.Start(t.Context()))

	ex.Halt()
	ex.Halt()
}
