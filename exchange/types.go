package exchange

import (
	"github.com/FerroO2000/staffetta/internal/claim"
	"github.com/FerroO2000/staffetta/internal/seq"
	"github.com/FerroO2000/staffetta/internal/wait"
)

// Sequence is the padded atomic cursor shared between producers
// and consumers.
type Sequence = seq.Sequence

// SequenceBatch identifies a contiguous range of claimed sequences.
type SequenceBatch = seq.Batch

// InitialSequenceValue is the value of a sequence before any publication.
const InitialSequenceValue = seq.InitialValue

// NewSequence returns a new sequence set to the initial value.
func NewSequence() *Sequence {
	return seq.New()
}

// NewSequenceAt returns a new sequence set to the given value.
func NewSequenceAt(initial int64) *Sequence {
	return seq.NewAt(initial)
}

// NewSequenceBatch returns the batch ending at the given sequence
// with the given size.
func NewSequenceBatch(end, size int64) SequenceBatch {
	return seq.NewBatch(end, size)
}

// ProducerKind selects the claim strategy of the ring.
type ProducerKind = claim.Kind

const (
	// KindSingleProducer assumes exactly one publishing goroutine.
	KindSingleProducer = claim.KindSingle

	// KindMultiProducer allows any number of publishing goroutines.
	KindMultiProducer = claim.KindMulti
)

// WaitKind selects one of the bundled wait strategies.
type WaitKind = wait.Kind

const (
	// WaitKindBlocking parks consumers on a condition variable.
	WaitKindBlocking = wait.KindBlocking

	// WaitKindBusySpin keeps consumers on the CPU.
	WaitKindBusySpin = wait.KindBusySpin

	// WaitKindYielding spins briefly, then yields between reads.
	WaitKindYielding = wait.KindYielding

	// WaitKindSleeping spins, yields, then parks with backoff.
	WaitKindSleeping = wait.KindSleeping
)

// WaitStrategy is how a consumer waits for published sequences.
// Custom implementations can be plugged in through Config.CustomWait.
type WaitStrategy = wait.Strategy

// WaitStatus is the view of the barrier a wait strategy polls for alerts.
type WaitStatus = wait.Status
