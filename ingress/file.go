package ingress

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/internal/config"
	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the file source configuration.
const (
	DefaultFileConfigMaxLineSize  = 32 * 1024
	DefaultFileConfigReadExisting = true
)

// DefaultFileConfigWatchedDirs is the default list of directories to watch.
var DefaultFileConfigWatchedDirs = []string{"."}

// FileConfig contains the configuration for the file source.
type FileConfig struct {
	// WatchedDirs contains the list of directories to watch.
	WatchedDirs []string

	// MaxLineSize is the maximum length of a line. Longer lines are
	// published in multiple records.
	MaxLineSize int

	// ReadExisting states whether files already present in the
	// watched directories are read before watching for changes.
	ReadExisting bool
}

// NewFileConfig returns the default configuration for the file source.
func NewFileConfig() *FileConfig {
	return &FileConfig{
		WatchedDirs:  DefaultFileConfigWatchedDirs,
		MaxLineSize:  DefaultFileConfigMaxLineSize,
		ReadExisting: DefaultFileConfigReadExisting,
	}
}

// Validate checks the configuration.
func (c *FileConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckLen(ac, "WatchedDirs", &c.WatchedDirs, DefaultFileConfigWatchedDirs)

	config.CheckNotNegative(ac, "MaxLineSize", &c.MaxLineSize, DefaultFileConfigMaxLineSize)
	config.CheckNotZero(ac, "MaxLineSize", &c.MaxLineSize, DefaultFileConfigMaxLineSize)
}

//////////////
//  SOURCE  //
//////////////

var _ Source = (*FileSource)(nil)

// FileSource watches directories and publishes every complete line
// appended to their files as a record. Offsets are tracked per file,
// so a file touched multiple times is only read from where the last
// read stopped.
type FileSource struct {
	tel *internal.Telemetry

	cfg       *FileConfig
	publisher *Publisher

	watcher *fsnotify.Watcher
	offsets map[string]int64

	// Metrics
	readBytes     atomic.Int64
	readLines     atomic.Int64
	watchedFiles  atomic.Int64
	publishErrors atomic.Int64
}

// NewFileSource returns a new file source publishing into the given
// publisher. A nil configuration falls back to the default one.
func NewFileSource(publisher *Publisher, cfg *FileConfig) *FileSource {
	if cfg == nil {
		cfg = NewFileConfig()
	}

	tel := internal.NewTelemetry("ingress", "file")
	config.NewValidator(tel).Validate(cfg)

	return &FileSource{
		tel: tel,

		cfg:       cfg,
		publisher: publisher,

		offsets: make(map[string]int64),
	}
}

// Init creates the watcher and registers the watched directories.
func (fs *FileSource) Init(_ context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, dirPath := range fs.cfg.WatchedDirs {
		if err := watcher.Add(dirPath); err != nil {
			watcher.Close()
			return err
		}
	}

	fs.watcher = watcher

	fs.initMetrics()

	return nil
}

func (fs *FileSource) initMetrics() {
	fs.tel.NewCounter("read_bytes", func() int64 { return fs.readBytes.Load() })
	fs.tel.NewCounter("read_lines", func() int64 { return fs.readLines.Load() })
	fs.tel.NewUpDownCounter("watched_files", func() int64 { return fs.watchedFiles.Load() })
	fs.tel.NewCounter("publish_errors", func() int64 { return fs.publishErrors.Load() })
}

// Run reads files until the context is canceled.
func (fs *FileSource) Run(ctx context.Context) error {
	fs.tel.LogInfo("running", "watched_dirs", fs.cfg.WatchedDirs)
	defer fs.tel.LogInfo("stopped")

	if fs.cfg.ReadExisting {
		fs.readExistingFiles(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fs.watcher.Events:
			if !ok {
				return nil
			}

			fs.handleEvent(ctx, event)

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return nil
			}

			fs.tel.LogError("watcher error", err)
		}
	}
}

// readExistingFiles reads the files already present in the watched
// directories. The watcher does not fire events for existing files.
func (fs *FileSource) readExistingFiles(ctx context.Context) {
	for _, dirPath := range fs.cfg.WatchedDirs {
		files, err := os.ReadDir(dirPath)
		if err != nil {
			fs.tel.LogError("failed to read directory", err, "path", dirPath)
			continue
		}

		for _, file := range files {
			if file.IsDir() {
				continue
			}

			fs.readNewLines(ctx, filepath.Join(dirPath, file.Name()))
		}
	}
}

func (fs *FileSource) handleEvent(ctx context.Context, event fsnotify.Event) {
	path := event.Name

	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		if _, ok := fs.offsets[path]; ok {
			delete(fs.offsets, path)
			fs.watchedFiles.Add(-1)
		}

		return
	}

	if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
		fs.readNewLines(ctx, path)
	}
}

// readNewLines publishes every complete line appended to the file
// since the last read. A trailing line without a newline stays in the
// file for the next event.
func (fs *FileSource) readNewLines(ctx context.Context, path string) {
	file, err := os.Open(path)
	if err != nil {
		fs.tel.LogError("failed to open file", err, "path", path)
		return
	}
	defer file.Close()

	offset, tracked := fs.offsets[path]
	if !tracked {
		fs.watchedFiles.Add(1)
	}

	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			fs.tel.LogError("failed to seek file", err, "path", path)
			return
		}
	}

	_, span := fs.tel.NewTrace(ctx, "read file lines")
	defer span.End()

	reader := bufio.NewReader(file)
	lines := 0

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				fs.tel.LogError("failed to read file", err, "path", path)
			}
			break
		}

		offset += int64(len(line))

		line = bytes.TrimSuffix(line, []byte{'\n'})
		for len(line) > fs.cfg.MaxLineSize {
			fs.publishLine(path, line[:fs.cfg.MaxLineSize], span)
			line = line[fs.cfg.MaxLineSize:]
		}
		fs.publishLine(path, line, span)

		lines++
	}

	fs.offsets[path] = offset

	span.SetAttributes(
		attribute.String("path", path),
		attribute.Int("lines", lines),
	)
}

func (fs *FileSource) publishLine(path string, line []byte, span trace.Span) {
	recvTime := time.Now()

	err := fs.publisher.PublishEvent(func(event *Record, _ int64) {
		event.Reset()
		event.SetTopic(path)
		event.SetPayload(line)
		event.SetReceiveTime(recvTime)
		event.SetTimestamp(recvTime)
		event.SaveSpan(span)
	})

	if err != nil {
		fs.publishErrors.Add(1)
		fs.tel.LogError("failed to publish record", err, "path", path)
		return
	}

	fs.readBytes.Add(int64(len(line)))
	fs.readLines.Add(1)
}

// Close closes the watcher.
func (fs *FileSource) Close() error {
	return fs.watcher.Close()
}
