package exchange

import (
	"math/bits"
	"sync/atomic"

	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/internal/claim"
	"github.com/FerroO2000/staffetta/internal/config"
	"github.com/FerroO2000/staffetta/internal/seq"
	"github.com/FerroO2000/staffetta/internal/wait"
)

// Sequencer coordinates producers claiming slots ahead of the published
// cursor and consumers observing slots behind it. The cursor only ever
// covers fully published sequences, so a barrier that sees sequence n
// may read every slot up to n.
type Sequencer struct {
	tel *internal.Telemetry

	capacity     int64
	producerKind claim.Kind
	allowUngated bool

	cursor   *seq.Sequence
	claiming claim.Strategy
	waiting  wait.Strategy

	gating atomic.Pointer[[]*seq.Sequence]
	sealed atomic.Bool

	latch wait.AlertLatch

	// multi-producer availability flags. Each slot stores the round
	// of the last sequence published into it, so a stale round means
	// the slot is not yet visible.
	available  []atomic.Int32
	indexMask  int64
	indexShift uint
}

// NewSequencer returns a new sequencer for the given configuration.
// A nil configuration falls back to the default one.
func NewSequencer(cfg *Config) (*Sequencer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.Capacity < 0 || cfg.Capacity > seq.MaxCapacity {
		return nil, ErrInvalidCapacity
	}

	tel := internal.NewTelemetry("exchange", "sequencer")
	config.NewValidator(tel).Validate(cfg)

	waiting := cfg.CustomWait
	if waiting == nil {
		waiting = wait.New(cfg.Wait)
	}

	s := &Sequencer{
		tel: tel,

		capacity:     cfg.Capacity,
		producerKind: cfg.Producer,
		allowUngated: cfg.AllowUngated,

		cursor:   seq.New(),
		claiming: claim.New(cfg.Producer, cfg.Capacity),
		waiting:  waiting,
	}

	empty := make([]*seq.Sequence, 0)
	s.gating.Store(&empty)

	if cfg.Producer == claim.KindMulti {
		s.available = make([]atomic.Int32, cfg.Capacity)
		for idx := range s.available {
			s.available[idx].Store(-1)
		}

		s.indexMask = cfg.Capacity - 1
		s.indexShift = uint(bits.TrailingZeros64(uint64(cfg.Capacity)))
	}

	s.tel.NewCounter("claimed_sequences", s.claiming.Sequence)
	s.tel.NewCounter("published_sequences", s.cursor.Get)

	s.tel.LogInfo("created",
		"capacity", cfg.Capacity, "producer", cfg.Producer.String(), "wait", cfg.Wait.String())

	return s, nil
}

// Capacity returns the number of slots in the ring.
func (s *Sequencer) Capacity() int64 {
	return s.capacity
}

// Cursor returns the published cursor.
func (s *Sequencer) Cursor() *seq.Sequence {
	return s.cursor
}

// RemainingCapacity returns the number of slots a producer could still
// claim without waiting. The value is a snapshot and may be stale by
// the time it is used.
func (s *Sequencer) RemainingCapacity() int64 {
	consumed := s.gatingMinimum()
	produced := s.claiming.Sequence()

	return s.capacity - (produced - consumed)
}

// AddGatingSequences registers sequences producers must not overrun.
// It fails once the first sequence has been claimed.
func (s *Sequencer) AddGatingSequences(sequences ...*seq.Sequence) error {
	if s.sealed.Load() {
		return ErrGatingSealed
	}

	for {
		current := s.gating.Load()

		updated := make([]*seq.Sequence, 0, len(*current)+len(sequences))
		updated = append(updated, *current...)
		updated = append(updated, sequences...)

		if s.gating.CompareAndSwap(current, &updated) {
			return nil
		}
	}
}

// RemoveGatingSequence unregisters a gating sequence. Removing only
// loosens wrap protection, so it is allowed at any time.
func (s *Sequencer) RemoveGatingSequence(sequence *seq.Sequence) bool {
	for {
		current := s.gating.Load()

		updated := make([]*seq.Sequence, 0, len(*current))
		removed := false
		for _, gs := range *current {
			if gs == sequence {
				removed = true
				continue
			}
			updated = append(updated, gs)
		}

		if !removed {
			return false
		}

		if s.gating.CompareAndSwap(current, &updated) {
			return true
		}
	}
}

// Next claims the next sequence, waiting for room if the ring is full.
func (s *Sequencer) Next() (int64, error) {
	batch, err := s.NextBatch(1)
	if err != nil {
		return 0, err
	}

	return batch.End(), nil
}

// NextBatch claims the next n contiguous sequences, waiting for room
// if the ring is full. On error the claimed range must be abandoned.
func (s *Sequencer) NextBatch(n int64) (seq.Batch, error) {
	if n < 1 {
		return seq.Batch{}, ErrInvalidBatchSize
	}

	if n > s.capacity {
		return seq.Batch{}, ErrBatchTooLarge
	}

	if err := s.checkGated(); err != nil {
		return seq.Batch{}, err
	}

	end := s.claiming.IncrementAndGet(n)
	if err := s.claiming.EnsureAvailable(end, s.gatingMinimum, &s.latch); err != nil {
		return seq.Batch{}, err
	}

	return seq.NewBatch(end, n), nil
}

// TryNext claims the next sequence only if a slot is free,
// returning ErrInsufficientCapacity otherwise.
func (s *Sequencer) TryNext() (int64, error) {
	if err := s.checkGated(); err != nil {
		return 0, err
	}

	sequence, ok := s.claiming.TryIncrement(s.gatingMinimum)
	if !ok {
		return 0, ErrInsufficientCapacity
	}

	return sequence, nil
}

// HasAvailableCapacity states whether the given number of slots could
// be claimed without waiting.
func (s *Sequencer) HasAvailableCapacity(n int64) bool {
	return s.claiming.HasAvailable(s.claiming.Sequence()+n, s.gatingMinimum)
}

// Publish makes the slot at the given sequence visible to consumers.
func (s *Sequencer) Publish(sequence int64) {
	if s.producerKind == claim.KindMulti {
		s.setAvailable(sequence)
		s.advanceCursor(sequence)
	} else {
		s.cursor.Set(sequence)
	}

	s.waiting.SignalAllWhenBlocking()
}

// PublishBatch makes every slot of the batch visible to consumers.
func (s *Sequencer) PublishBatch(batch seq.Batch) {
	if s.producerKind == claim.KindMulti {
		for sequence := batch.Start(); sequence <= batch.End(); sequence++ {
			s.setAvailable(sequence)
		}
		s.advanceCursor(batch.End())
	} else {
		s.cursor.Set(batch.End())
	}

	s.waiting.SignalAllWhenBlocking()
}

// Claim resynchronizes the claim cursor to the given sequence.
// Only meaningful with a single producer, before publishing starts.
func (s *Sequencer) Claim(sequence int64) {
	s.claiming.SetSequence(sequence)
}

// ForcePublish moves the published cursor straight to the given
// sequence without availability tracking. Only meaningful with a
// single producer.
func (s *Sequencer) ForcePublish(sequence int64) {
	s.cursor.Set(sequence)
	s.waiting.SignalAllWhenBlocking()
}

// NewBarrier returns a barrier that waits on the published cursor and,
// transitively, on the given dependency sequences.
func (s *Sequencer) NewBarrier(dependencies ...*seq.Sequence) *Barrier {
	return newBarrier(s.waiting, s.cursor, dependencies)
}

// Alert wakes every producer blocked waiting for room and makes
// further blocking claims fail with ErrAlert.
func (s *Sequencer) Alert() {
	s.latch.Set()
	s.waiting.SignalAllWhenBlocking()
}

// ClearAlert re-arms the sequencer after an alert.
func (s *Sequencer) ClearAlert() {
	s.latch.Clear()
}

func (s *Sequencer) checkGated() error {
	if len(*s.gating.Load()) == 0 && !s.allowUngated {
		return ErrNoGatingSequences
	}

	s.sealed.Store(true)

	return nil
}

func (s *Sequencer) gatingMinimum() int64 {
	gating := *s.gating.Load()

	// Without gating sequences the wrap floor never moves, so at most
	// capacity events are outstanding and published slots are never
	// reused before being read.
	if len(gating) == 0 {
		return seq.InitialValue
	}

	return seq.Minimum(gating, s.cursor.Get())
}

func (s *Sequencer) setAvailable(sequence int64) {
	s.available[sequence&s.indexMask].Store(int32(sequence >> s.indexShift))
}

func (s *Sequencer) isAvailable(sequence int64) bool {
	return s.available[sequence&s.indexMask].Load() == int32(sequence>>s.indexShift)
}

// advanceCursor moves the published cursor over every contiguously
// available slot. A producer that finds an unpublished slot below its
// own sequence leaves the advance to the producer owning that slot.
func (s *Sequencer) advanceCursor(sequence int64) {
	for {
		current := s.cursor.Get()
		if current >= sequence {
			return
		}

		next := current
		for s.isAvailable(next + 1) {
			next++
		}

		if next == current {
			return
		}

		if s.cursor.CompareAndSet(current, next) && next >= sequence {
			return
		}
	}
}
