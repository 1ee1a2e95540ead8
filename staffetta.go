// Package staffetta provides the main entrypoint for the staffetta
// library: a builder that wires a ring, its producers, and a graph of
// consumers into a running exchange.
package staffetta

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/FerroO2000/staffetta/exchange"
	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/processor"
)

// Config is the configuration of the exchange ring.
type Config = exchange.Config

// DefaultConfig returns the default ring configuration.
func DefaultConfig() *Config {
	return exchange.DefaultConfig()
}

// RingBuffer is the pre-allocated slot store of the exchange.
type RingBuffer[T any] = exchange.RingBuffer[T]

// Sequence is the padded atomic cursor shared between producers
// and consumers.
type Sequence = exchange.Sequence

// SequenceBatch identifies a contiguous range of claimed sequences.
type SequenceBatch = exchange.SequenceBatch

// Barrier is the coordination point a consumer waits on.
type Barrier = exchange.Barrier

// Publisher wraps a ring with the claim-write-publish protocol.
type Publisher[T any] = exchange.Publisher[T]

// Translator writes an event into a claimed slot.
type Translator[T any] = exchange.Translator[T]

// Handler consumes events in sequence order.
type Handler[T any] = processor.Handler[T]

// WorkHandler consumes events distributed over a worker pool.
type WorkHandler[T any] = processor.WorkHandler[T]

// ProducerKind selects the claim strategy of the ring.
type ProducerKind = exchange.ProducerKind

const (
	// KindSingleProducer assumes exactly one publishing goroutine.
	KindSingleProducer = exchange.KindSingleProducer
	// KindMultiProducer allows any number of publishing goroutines.
	KindMultiProducer = exchange.KindMultiProducer
)

// WaitKind selects one of the bundled wait strategies.
type WaitKind = exchange.WaitKind

const (
	// WaitKindBlocking parks consumers on a condition variable.
	WaitKindBlocking = exchange.WaitKindBlocking
	// WaitKindBusySpin keeps consumers on the CPU.
	WaitKindBusySpin = exchange.WaitKindBusySpin
	// WaitKindYielding spins briefly, then yields between reads.
	WaitKindYielding = exchange.WaitKindYielding
	// WaitKindSleeping spins, yields, then parks with backoff.
	WaitKindSleeping = exchange.WaitKindSleeping
)

type runner interface {
	Run(ctx context.Context) error
	Halt()
}

// Exchange wires a ring and a graph of consumers. Consumer groups are
// declared before Start; each group waits on the ring's cursor and on
// the sequences of the groups it is chained after, and the sequences
// of the last groups gate the producers.
type Exchange[T any] struct {
	tel *internal.Telemetry

	ring      *exchange.RingBuffer[T]
	publisher *exchange.Publisher[T]

	runners []runner
	ends    []*Sequence

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns a new exchange whose ring slots are initialized with the
// given factory. A nil configuration falls back to the default one.
func New[T any](factory func() T, cfg *Config) (*Exchange[T], error) {
	ring, err := exchange.NewRingBuffer(factory, cfg)
	if err != nil {
		return nil, err
	}

	return &Exchange[T]{
		tel: internal.NewTelemetry("staffetta", "exchange"),

		ring:      ring,
		publisher: exchange.NewPublisher(ring),
	}, nil
}

// HandlerGroup is a set of consumers started from the same barrier.
// Chaining with Then adds consumers that only observe events the
// group has finished with.
type HandlerGroup[T any] struct {
	exchange  *Exchange[T]
	sequences []*Sequence
}

// HandleEventsWith adds a group of batch processors that consume
// events straight from the ring, one processor per handler.
func (e *Exchange[T]) HandleEventsWith(handlers ...Handler[T]) *HandlerGroup[T] {
	return e.createGroup(nil, handlers)
}

// HandleEventsWithPool adds a worker pool that consumes events
// straight from the ring. Each worker gets its own handler from the
// maker.
func (e *Exchange[T]) HandleEventsWithPool(handlerMaker func() WorkHandler[T], cfg *processor.WorkerPoolConfig) *HandlerGroup[T] {
	return e.createPoolGroup(nil, handlerMaker, cfg)
}

// Then adds a group of batch processors that consume events only after
// every consumer of the current group has processed them.
func (g *HandlerGroup[T]) Then(handlers ...Handler[T]) *HandlerGroup[T] {
	return g.exchange.createGroup(g.sequences, handlers)
}

// ThenPool adds a worker pool that consumes events only after every
// consumer of the current group has processed them.
func (g *HandlerGroup[T]) ThenPool(handlerMaker func() WorkHandler[T], cfg *processor.WorkerPoolConfig) *HandlerGroup[T] {
	return g.exchange.createPoolGroup(g.sequences, handlerMaker, cfg)
}

// Sequences returns the consumption cursors of the group.
func (g *HandlerGroup[T]) Sequences() []*Sequence {
	return g.sequences
}

func (e *Exchange[T]) createGroup(deps []*Sequence, handlers []Handler[T]) *HandlerGroup[T] {
	barrier := e.ring.NewBarrier(deps...)

	sequences := make([]*Sequence, 0, len(handlers))
	for _, handler := range handlers {
		bp := processor.NewBatchProcessor(e.ring, barrier, handler, nil)

		e.runners = append(e.runners, bp)
		sequences = append(sequences, bp.Sequence())
	}

	e.replaceEnds(deps, sequences)

	return &HandlerGroup[T]{exchange: e, sequences: sequences}
}

func (e *Exchange[T]) createPoolGroup(deps []*Sequence, handlerMaker func() WorkHandler[T], cfg *processor.WorkerPoolConfig) *HandlerGroup[T] {
	barrier := e.ring.NewBarrier(deps...)

	pool := processor.NewWorkerPool(e.ring, barrier, handlerMaker, cfg)
	e.runners = append(e.runners, pool)

	sequences := pool.Sequences()
	e.replaceEnds(deps, sequences)

	return &HandlerGroup[T]{exchange: e, sequences: sequences}
}

// replaceEnds drops dependency sequences from the end-of-chain set and
// appends the new group's sequences. Only end-of-chain sequences gate
// the producers.
func (e *Exchange[T]) replaceEnds(deps, sequences []*Sequence) {
	if len(deps) > 0 {
		kept := e.ends[:0]
		for _, end := range e.ends {
			isDep := false
			for _, dep := range deps {
				if end == dep {
					isDep = true
					break
				}
			}
			if !isDep {
				kept = append(kept, end)
			}
		}
		e.ends = kept
	}

	e.ends = append(e.ends, sequences...)
}

// Start registers the end-of-chain sequences as gating sequences and
// spawns a goroutine for each consumer.
func (e *Exchange[T]) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return processor.ErrAlreadyRunning
	}

	if len(e.ends) > 0 {
		if err := e.ring.AddGatingSequences(e.ends...); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	for _, r := range e.runners {
		e.wg.Add(1)

		go func() {
			defer e.wg.Done()

			if err := r.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				e.tel.LogError("processor stopped", err)
			}
		}()
	}

	e.tel.LogInfo("started", "processors", len(e.runners))

	return nil
}

// Halt stops every producer and consumer and blocks until the
// consumer goroutines have exited. Published events that have not
// been consumed yet are dropped.
func (e *Exchange[T]) Halt() {
	if !e.started.Load() {
		return
	}

	e.ring.Sequencer().Alert()

	for _, r := range e.runners {
		r.Halt()
	}

	if e.cancel != nil {
		e.cancel()
	}

	e.wg.Wait()

	e.tel.LogInfo("stopped")
}

// Drain blocks until every end-of-chain consumer has caught up with
// the published cursor, then halts the exchange.
func (e *Exchange[T]) Drain(ctx context.Context) error {
	cursor := e.ring.Cursor()

	for _, end := range e.ends {
		for end.Get() < cursor.Get() {
			if err := ctx.Err(); err != nil {
				e.Halt()
				return err
			}

			runtime.Gosched()
		}
	}

	e.Halt()

	return nil
}

// Publisher returns the publisher of the exchange's ring.
func (e *Exchange[T]) Publisher() *Publisher[T] {
	return e.publisher
}

// Ring returns the exchange's ring.
func (e *Exchange[T]) Ring() *RingBuffer[T] {
	return e.ring
}
