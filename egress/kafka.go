package egress

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/internal/config"
	"github.com/FerroO2000/staffetta/internal/telemetry"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// DefaultKafkaConfigBrokers is the default list of Kafka brokers to connect to.
var DefaultKafkaConfigBrokers = []string{"localhost:9092"}

// Default values for the Kafka sink configuration.
const (
	DefaultKafkaConfigMaxAttempts     = 10
	DefaultKafkaConfigWriteBackoffMin = 100 * time.Millisecond
	DefaultKafkaConfigWriteBackoffMax = 1 * time.Second
	DefaultKafkaConfigBatchSize       = 100
	DefaultKafkaConfigBatchBytes      = 1048576
	DefaultKafkaConfigBatchTimeout    = time.Second
	DefaultKafkaConfigReadTimeout     = 10 * time.Second
	DefaultKafkaConfigWriteTimeout    = 10 * time.Second
)

// KafkaConfig contains the configuration for the Kafka sink.
type KafkaConfig struct {
	// Brokers is the list of broker addresses used to connect to the
	// kafka cluster.
	Brokers []string

	// Topic is the topic messages are written to. If empty, the topic
	// of each record is used.
	Topic string

	// Balancer is used to distribute messages across partitions.
	// If nil, RoundRobin is used.
	Balancer kafka.Balancer

	// MaxAttempts limits how many attempts will be made to deliver
	// a message.
	MaxAttempts int

	// WriteBackoffMin is the smallest amount of time the writer waits
	// before it attempts to write a batch of messages.
	WriteBackoffMin time.Duration

	// WriteBackoffMax is the maximum amount of time the writer waits
	// before it attempts to write a batch of messages.
	WriteBackoffMax time.Duration

	// BatchSize limits how many messages will be buffered before being
	// sent to a partition.
	BatchSize int

	// BatchBytes limits the maximum size of a request in bytes before
	// being sent to a partition.
	BatchBytes int64

	// BatchTimeout is the time limit on how often incomplete message
	// batches will be flushed to kafka.
	BatchTimeout time.Duration

	// ReadTimeout is the timeout for read operations performed by the
	// writer.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for write operations performed by
	// the writer.
	WriteTimeout time.Duration

	// RequiredAcks is the number of acknowledges from partition
	// replicas required before receiving a response to a produce
	// request.
	RequiredAcks kafka.RequiredAcks

	// Async makes the writer never block on WriteMessages. Write
	// errors are reported by the writer's completion callback instead
	// of the caller.
	Async bool

	// Compression is the compression codec used to compress messages.
	Compression kafka.Compression

	// Transport is used to send messages to the kafka cluster.
	// If nil, DefaultTransport is used.
	Transport kafka.RoundTripper

	// AllowAutoTopicCreation notifies the writer to create missing
	// topics.
	AllowAutoTopicCreation bool
}

// NewKafkaConfig returns the default configuration for the Kafka sink.
func NewKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:                DefaultKafkaConfigBrokers,
		Balancer:               &kafka.RoundRobin{},
		MaxAttempts:            DefaultKafkaConfigMaxAttempts,
		WriteBackoffMin:        DefaultKafkaConfigWriteBackoffMin,
		WriteBackoffMax:        DefaultKafkaConfigWriteBackoffMax,
		BatchSize:              DefaultKafkaConfigBatchSize,
		BatchBytes:             DefaultKafkaConfigBatchBytes,
		BatchTimeout:           DefaultKafkaConfigBatchTimeout,
		ReadTimeout:            DefaultKafkaConfigReadTimeout,
		WriteTimeout:           DefaultKafkaConfigWriteTimeout,
		RequiredAcks:           kafka.RequireNone,
		Async:                  true,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
}

// Validate checks the configuration.
func (c *KafkaConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckLen(ac, "Brokers", &c.Brokers, DefaultKafkaConfigBrokers)

	config.CheckNotNegative(ac, "MaxAttempts", &c.MaxAttempts, DefaultKafkaConfigMaxAttempts)
	config.CheckNotZero(ac, "MaxAttempts", &c.MaxAttempts, DefaultKafkaConfigMaxAttempts)

	config.CheckNotNegative(ac, "BatchSize", &c.BatchSize, DefaultKafkaConfigBatchSize)
	config.CheckNotZero(ac, "BatchSize", &c.BatchSize, DefaultKafkaConfigBatchSize)
}

////////////
//  SINK  //
////////////

var _ Sink = (*KafkaSink)(nil)

// KafkaSink delivers records to Kafka. The record topic, key, payload,
// and timestamp map directly to the corresponding message fields, and
// the record's trace context travels in the message headers.
type KafkaSink struct {
	tel *internal.Telemetry

	cfg    *KafkaConfig
	writer *kafka.Writer

	ctx context.Context

	// Metrics
	writtenMessages atomic.Int64
	writtenBytes    atomic.Int64
	writeErrors     atomic.Int64
}

// NewKafkaSink returns a new Kafka sink. A nil configuration falls
// back to the default one.
func NewKafkaSink(cfg *KafkaConfig) *KafkaSink {
	if cfg == nil {
		cfg = NewKafkaConfig()
	}

	tel := internal.NewTelemetry("egress", "kafka")
	config.NewValidator(tel).Validate(cfg)

	return &KafkaSink{
		tel: tel,

		cfg: cfg,
	}
}

// Init creates the kafka writer.
func (ks *KafkaSink) Init(ctx context.Context) error {
	ks.writer = &kafka.Writer{
		Addr:                   kafka.TCP(ks.cfg.Brokers...),
		Topic:                  ks.cfg.Topic,
		Balancer:               ks.cfg.Balancer,
		MaxAttempts:            ks.cfg.MaxAttempts,
		WriteBackoffMin:        ks.cfg.WriteBackoffMin,
		WriteBackoffMax:        ks.cfg.WriteBackoffMax,
		BatchSize:              ks.cfg.BatchSize,
		BatchBytes:             ks.cfg.BatchBytes,
		BatchTimeout:           ks.cfg.BatchTimeout,
		ReadTimeout:            ks.cfg.ReadTimeout,
		WriteTimeout:           ks.cfg.WriteTimeout,
		RequiredAcks:           ks.cfg.RequiredAcks,
		Async:                  ks.cfg.Async,
		Compression:            ks.cfg.Compression,
		Transport:              ks.cfg.Transport,
		AllowAutoTopicCreation: ks.cfg.AllowAutoTopicCreation,
	}

	ks.ctx = ctx

	ks.initMetrics()

	return nil
}

func (ks *KafkaSink) initMetrics() {
	ks.tel.NewCounter("written_messages", func() int64 { return ks.writtenMessages.Load() })
	ks.tel.NewCounter("written_bytes", func() int64 { return ks.writtenBytes.Load() })
	ks.tel.NewCounter("write_errors", func() int64 { return ks.writeErrors.Load() })
}

// OnEvent writes the record to kafka. The slot is reused after this
// call returns, so the key and payload are copied out of it.
func (ks *KafkaSink) OnEvent(event *Record, _ int64, _ bool) error {
	ctx, span := ks.tel.NewTrace(event.LoadSpanContext(ks.ctx), "deliver kafka message")
	defer span.End()

	headerCarrier := telemetry.NewKafkaHeaderCarrier(nil)
	ks.tel.InjectTrace(ctx, headerCarrier)

	valueSize := len(event.Payload())
	span.SetAttributes(attribute.Int("value_size", valueSize))

	msg := kafka.Message{
		Key:   bytes.Clone(event.Key()),
		Value: bytes.Clone(event.Payload()),
		Time:  event.Timestamp(),

		Headers: headerCarrier.Headers(),
	}

	// The writer's own Topic and the message Topic are mutually
	// exclusive in kafka-go.
	if ks.cfg.Topic == "" {
		msg.Topic = event.Topic()
	}

	if err := ks.writer.WriteMessages(ctx, msg); err != nil {
		ks.writeErrors.Add(1)
		ks.tel.LogError("failed to write message", err, "topic", msg.Topic)
		return err
	}

	ks.writtenMessages.Add(1)
	ks.writtenBytes.Add(int64(valueSize))

	return nil
}

// Close closes the kafka writer.
func (ks *KafkaSink) Close() error {
	return ks.writer.Close()
}
