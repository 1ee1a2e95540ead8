package ingress

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_FileSource(t *testing.T) {
	assert := assert.New(t)

	publisher, ring := newTestPublisher(t)

	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.log")
	assert.NoError(os.WriteFile(existing, []byte("first line\nsecond line\n"), 0644))

	cfg := NewFileConfig()
	cfg.WatchedDirs = []string{dir}

	source := NewFileSource(publisher, cfg)
	assert.NoError(source.Init(t.Context()))

	ctx, cancelCtx := context.WithCancel(t.Context())

	var runWg sync.WaitGroup
	runWg.Add(1)

	go func() {
		defer runWg.Done()
		assert.NoError(source.Run(ctx))
	}()

	// Files already in the directory are read on startup.
	waitForCursor(t, ring, 1)

	first := ring.Get(0)
	assert.Equal(existing, first.Topic())
	assert.Equal([]byte("first line"), first.Payload())

	second := ring.Get(1)
	assert.Equal([]byte("second line"), second.Payload())

	// Appending fires a write event, only the new lines are published.
	file, err := os.OpenFile(existing, os.O_APPEND|os.O_WRONLY, 0644)
	assert.NoError(err)

	_, err = file.WriteString("third line\n")
	assert.NoError(err)
	assert.NoError(file.Close())

	waitForCursor(t, ring, 2)
	assert.Equal([]byte("third line"), ring.Get(2).Payload())

	// A new file is picked up through its create event.
	created := filepath.Join(dir, "created.log")
	assert.NoError(os.WriteFile(created, []byte("fresh line\n"), 0644))

	waitForCursor(t, ring, 3)
	assert.Equal(created, ring.Get(3).Topic())
	assert.Equal([]byte("fresh line"), ring.Get(3).Payload())

	cancelCtx()
	runWg.Wait()

	assert.NoError(source.Close())
}

func Test_FileSource_SkipExisting(t *testing.T) {
	assert := assert.New(t)

	publisher, ring := newTestPublisher(t)

	dir := t.TempDir()
	assert.NoError(os.WriteFile(filepath.Join(dir, "old.log"), []byte("stale line\n"), 0644))

	cfg := NewFileConfig()
	cfg.WatchedDirs = []string{dir}
	cfg.ReadExisting = false

	source := NewFileSource(publisher, cfg)
	assert.NoError(source.Init(t.Context()))

	ctx, cancelCtx := context.WithCancel(t.Context())

	var runWg sync.WaitGroup
	runWg.Add(1)

	go func() {
		defer runWg.Done()
		assert.NoError(source.Run(ctx))
	}()

	fresh := filepath.Join(dir, "fresh.log")
	assert.NoError(os.WriteFile(fresh, []byte("new line\n"), 0644))

	waitForCursor(t, ring, 0)

	published := ring.Get(0)
	assert.Equal(fresh, published.Topic())
	assert.Equal([]byte("new line"), published.Payload())

	cancelCtx()
	runWg.Wait()

	assert.NoError(source.Close())
}

func Test_FileSource_LongLineSplit(t *testing.T) {
	assert := assert.New(t)

	publisher, ring := newTestPublisher(t)

	dir := t.TempDir()

	cfg := NewFileConfig()
	cfg.WatchedDirs = []string{dir}
	cfg.MaxLineSize = 4

	source := NewFileSource(publisher, cfg)
	assert.NoError(source.Init(t.Context()))

	ctx, cancelCtx := context.WithCancel(t.Context())

	var runWg sync.WaitGroup
	runWg.Add(1)

	go func() {
		defer runWg.Done()
		assert.NoError(source.Run(ctx))
	}()

	assert.NoError(os.WriteFile(filepath.Join(dir, "long.log"), []byte("abcdefghij\n"), 0644))

	waitForCursor(t, ring, 2)

	assert.Equal([]byte("abcd"), ring.Get(0).Payload())
	assert.Equal([]byte("efgh"), ring.Get(1).Payload())
	assert.Equal([]byte("ij"), ring.Get(2).Payload())

	cancelCtx()
	runWg.Wait()

	assert.NoError(source.Close())
}
