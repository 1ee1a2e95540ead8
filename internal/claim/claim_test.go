package claim

import (
	"sync"
	"testing"
	"time"

	"github.com/FerroO2000/staffetta/internal/seq"
	"github.com/FerroO2000/staffetta/internal/wait"
	"github.com/stretchr/testify/assert"
)

const testCapacity int64 = 8

func gatingAt(value int64) GatingMinimum {
	return func() int64 { return value }
}

func Test_Strategies_Claiming(t *testing.T) {
	suite := map[string]Strategy{
		KindSingle.String(): New(KindSingle, testCapacity),
		KindMulti.String():  New(KindMulti, testCapacity),
	}

	for name, strategy := range suite {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			assert.Equal(seq.InitialValue, strategy.Sequence())

			assert.Equal(int64(0), strategy.IncrementAndGet(1))
			assert.Equal(int64(4), strategy.IncrementAndGet(4))
			assert.Equal(int64(4), strategy.Sequence())

			sequence, ok := strategy.TryIncrement(gatingAt(seq.InitialValue))
			assert.True(ok)
			assert.Equal(int64(5), sequence)

			// Sequences 0..7 fill the ring while nothing has been consumed.
			strategy.IncrementAndGet(2)
			_, ok = strategy.TryIncrement(gatingAt(seq.InitialValue))
			assert.False(ok)

			sequence, ok = strategy.TryIncrement(gatingAt(0))
			assert.True(ok)
			assert.Equal(int64(8), sequence)
		})
	}
}

func Test_Strategies_HasAvailable(t *testing.T) {
	suite := map[string]Strategy{
		KindSingle.String(): New(KindSingle, testCapacity),
		KindMulti.String():  New(KindMulti, testCapacity),
	}

	for name, strategy := range suite {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			assert.True(strategy.HasAvailable(testCapacity-1, gatingAt(seq.InitialValue)))
			assert.False(strategy.HasAvailable(testCapacity, gatingAt(seq.InitialValue)))
			assert.True(strategy.HasAvailable(testCapacity, gatingAt(0)))
		})
	}
}

func Test_Strategies_EnsureAvailable(t *testing.T) {
	suite := map[string]func() Strategy{
		KindSingle.String(): func() Strategy { return New(KindSingle, testCapacity) },
		KindMulti.String():  func() Strategy { return New(KindMulti, testCapacity) },
	}

	for name, maker := range suite {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			strategy := maker()

			// Room is available, no wait.
			assert.NoError(strategy.EnsureAvailable(testCapacity-1, gatingAt(seq.InitialValue), nil))

			// The gating consumer advances while the producer waits.
			gatingValue := seq.New()

			var wg sync.WaitGroup
			wg.Add(1)

			var ensureErr error
			go func() {
				defer wg.Done()
				ensureErr = strategy.EnsureAvailable(testCapacity, gatingValue.Get, nil)
			}()

			time.Sleep(10 * time.Millisecond)
			gatingValue.Set(0)

			wg.Wait()
			assert.NoError(ensureErr)
		})
	}
}

func Test_Strategies_EnsureAvailableAlert(t *testing.T) {
	suite := map[string]Strategy{
		KindSingle.String(): New(KindSingle, testCapacity),
		KindMulti.String():  New(KindMulti, testCapacity),
	}

	for name, strategy := range suite {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			latch := &wait.AlertLatch{}

			var wg sync.WaitGroup
			wg.Add(1)

			var ensureErr error
			go func() {
				defer wg.Done()
				ensureErr = strategy.EnsureAvailable(testCapacity, gatingAt(seq.InitialValue), latch)
			}()

			time.Sleep(10 * time.Millisecond)
			latch.Set()

			wg.Wait()
			assert.ErrorIs(ensureErr, wait.ErrAlert)
		})
	}
}

func Test_MultiConcurrentClaims(t *testing.T) {
	const (
		producers = 8
		claims    = 10_000
	)

	assert := assert.New(t)

	strategy := New(KindMulti, 1<<20)

	var wg sync.WaitGroup
	wg.Add(producers)

	claimed := make([]map[int64]bool, producers)

	for idx := range producers {
		claimed[idx] = make(map[int64]bool, claims)

		go func(idx int) {
			defer wg.Done()

			for range claims {
				claimed[idx][strategy.IncrementAndGet(1)] = true
			}
		}(idx)
	}

	wg.Wait()

	// Every claim must be distinct across producers.
	all := make(map[int64]bool, producers*claims)
	for _, m := range claimed {
		for sequence := range m {
			assert.False(all[sequence])
			all[sequence] = true
		}
	}

	assert.Len(all, producers*claims)
	assert.Equal(int64(producers*claims-1), strategy.Sequence())
}
