package seq

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Sequence(t *testing.T) {
	assert := assert.New(t)

	s := New()
	assert.Equal(InitialValue, s.Get())

	s.Set(41)
	assert.Equal(int64(41), s.Get())

	assert.Equal(int64(42), s.IncrementAndGet())
	assert.Equal(int64(52), s.AddAndGet(10))

	assert.False(s.CompareAndSet(0, 100))
	assert.Equal(int64(52), s.Get())

	assert.True(s.CompareAndSet(52, 100))
	assert.Equal(int64(100), s.Get())

	at := NewAt(7)
	assert.Equal(int64(7), at.Get())
}

func Test_Sequence_ConcurrentAdd(t *testing.T) {
	const (
		goroutines = 8
		increments = 10_000
	)

	assert := assert.New(t)

	s := NewAt(0)

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()

			for range increments {
				s.IncrementAndGet()
			}
		}()
	}

	wg.Wait()

	assert.Equal(int64(goroutines*increments), s.Get())
}

func Test_Batch(t *testing.T) {
	assert := assert.New(t)

	b := NewBatch(9, 10)
	assert.Equal(int64(0), b.Start())
	assert.Equal(int64(9), b.End())
	assert.Equal(int64(10), b.Size())

	single := NewBatch(5, 1)
	assert.Equal(int64(5), single.Start())
	assert.Equal(int64(5), single.End())
}

func Test_Minimum(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(int64(42), Minimum(nil, 42))

	sequences := []*Sequence{NewAt(10), NewAt(3), NewAt(7)}
	assert.Equal(int64(3), Minimum(sequences, 100))
	assert.Equal(int64(1), Minimum(sequences, 1))
}

func Test_CeilingPowerOfTwo(t *testing.T) {
	assert := assert.New(t)

	suite := []struct {
		value    int64
		expected int64
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{1000, 1024},
		{1024, 1024},
		{1025, 2048},
	}

	for _, tCase := range suite {
		assert.Equal(tCase.expected, CeilingPowerOfTwo(tCase.value))
	}
}
