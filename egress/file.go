package egress

import (
	"bufio"
	"context"
	"os"
	"sync/atomic"

	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/internal/config"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the file sink configuration.
const (
	DefaultFileConfigPath       = "records.log"
	DefaultFileConfigBufferSize = 4096
)

// FileConfig contains the configuration for the file sink.
type FileConfig struct {
	// Path is the path to the file.
	Path string

	// BufferSize is the size of the buffer used to write records to
	// the file.
	BufferSize int
}

// NewFileConfig returns the default configuration for the file sink.
func NewFileConfig(path string) *FileConfig {
	return &FileConfig{
		Path:       path,
		BufferSize: DefaultFileConfigBufferSize,
	}
}

// Validate checks the configuration.
func (c *FileConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Path", &c.Path, DefaultFileConfigPath)

	config.CheckNotNegative(ac, "BufferSize", &c.BufferSize, DefaultFileConfigBufferSize)
	config.CheckNotZero(ac, "BufferSize", &c.BufferSize, DefaultFileConfigBufferSize)
}

////////////
//  SINK  //
////////////

var _ Sink = (*FileSink)(nil)

// FileSink appends record payloads to a file, one line per record.
// Writes go through a buffer that is flushed when the consumer reaches
// the end of an available batch.
type FileSink struct {
	tel *internal.Telemetry

	cfg *FileConfig

	file   *os.File
	writer *bufio.Writer

	ctx context.Context

	// Metrics
	writtenRecords atomic.Int64
	writtenBytes   atomic.Int64
	writeErrors    atomic.Int64
	flushErrors    atomic.Int64
}

// NewFileSink returns a new file sink. A nil configuration falls back
// to the default one.
func NewFileSink(cfg *FileConfig) *FileSink {
	if cfg == nil {
		cfg = NewFileConfig(DefaultFileConfigPath)
	}

	tel := internal.NewTelemetry("egress", "file")
	config.NewValidator(tel).Validate(cfg)

	return &FileSink{
		tel: tel,

		cfg: cfg,
	}
}

// Init opens the file in append mode and creates the buffered writer.
func (fs *FileSink) Init(ctx context.Context) error {
	file, err := os.OpenFile(fs.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	fs.file = file
	fs.writer = bufio.NewWriterSize(file, fs.cfg.BufferSize)
	fs.ctx = ctx

	fs.initMetrics()

	return nil
}

func (fs *FileSink) initMetrics() {
	fs.tel.NewCounter("written_records", func() int64 { return fs.writtenRecords.Load() })
	fs.tel.NewCounter("written_bytes", func() int64 { return fs.writtenBytes.Load() })
	fs.tel.NewCounter("write_errors", func() int64 { return fs.writeErrors.Load() })
	fs.tel.NewCounter("flush_errors", func() int64 { return fs.flushErrors.Load() })
}

// OnEvent appends the record payload and flushes on batch end.
func (fs *FileSink) OnEvent(event *Record, _ int64, endOfBatch bool) error {
	_, span := fs.tel.NewTrace(event.LoadSpanContext(fs.ctx), "write record line")
	defer span.End()

	payload := event.Payload()
	span.SetAttributes(attribute.Int("payload_size", len(payload)))

	if _, err := fs.writer.Write(payload); err != nil {
		fs.writeErrors.Add(1)
		fs.tel.LogError("failed to write to file", err, "path", fs.cfg.Path)
		return err
	}

	if err := fs.writer.WriteByte('\n'); err != nil {
		fs.writeErrors.Add(1)
		fs.tel.LogError("failed to write to file", err, "path", fs.cfg.Path)
		return err
	}

	fs.writtenRecords.Add(1)
	fs.writtenBytes.Add(int64(len(payload)) + 1)

	if endOfBatch {
		if err := fs.writer.Flush(); err != nil {
			fs.flushErrors.Add(1)
			fs.tel.LogError("failed to flush writer", err, "path", fs.cfg.Path)
			return err
		}
	}

	return nil
}

// Close flushes the buffer and syncs and closes the file.
func (fs *FileSink) Close() error {
	if err := fs.writer.Flush(); err != nil {
		return err
	}

	if err := fs.file.Sync(); err != nil {
		return err
	}

	return fs.file.Close()
}
