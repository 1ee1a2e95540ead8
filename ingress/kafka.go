package ingress

import (
	"context"
	"errors"
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

// Default values for the Kafka source configuration.
const (
	DefaultKafkaConfigGroupID          = "group"
	DefaultKafkaConfigQueueCapacity    = 100
	DefaultKafkaConfigMinBytes         = 1
	DefaultKafkaConfigMaxBytes         = 1 << 20
	DefaultKafkaConfigMaxWait          = 10 * time.Second
	DefaultKafkaConfigReadBatchTimeout = 10 * time.Second
	DefaultKafkaConfigCommitInterval   = 0
	DefaultKafkaConfigStartOffset      = kafka.FirstOffset
	DefaultKafkaConfigReadMinBackoff   = 100 * time.Millisecond
	DefaultKafkaConfigReadMaxBackoff   = 1 * time.Second
	DefaultKafkaConfigMaxAttempts      = 3
)

// KafkaConfig contains the configuration for the Kafka source.
type KafkaConfig struct {
	// Brokers is the list of broker addresses used to connect to the
	// kafka cluster.
	Brokers []string

	// GroupID holds the consumer group id.
	GroupID string

	// Topics is the list of topics to consume from. It requires
	// GroupID to be set, as multi-topic reads are a consumer-group
	// feature.
	Topics []string

	// Dialer is used to open connections to the kafka server.
	// If nil, the default dialer is used.
	Dialer *kafka.Dialer

	// QueueCapacity is the capacity of the reader's internal
	// message queue.
	QueueCapacity int

	// MinBytes indicates to the broker the minimum batch size that
	// the consumer will accept.
	MinBytes int

	// MaxBytes indicates to the broker the maximum batch size that
	// the consumer will accept.
	MaxBytes int

	// MaxWait is the maximum amount of time to wait for new data to
	// come when fetching batches of messages from kafka.
	MaxWait time.Duration

	// ReadBatchTimeout is the amount of time to wait to fetch a
	// message from a kafka batch.
	ReadBatchTimeout time.Duration

	// CommitInterval indicates the interval at which offsets are
	// committed to the broker. If 0, commits are handled synchronously.
	CommitInterval time.Duration

	// StartOffset determines from whence the consumer group should
	// begin consuming when it finds a partition without a committed
	// offset. It must be FirstOffset or LastOffset.
	StartOffset int64

	// ReadBackoffMin is the smallest amount of time the reader waits
	// before polling for new messages.
	ReadBackoffMin time.Duration

	// ReadBackoffMax is the maximum amount of time the reader waits
	// before polling for new messages.
	ReadBackoffMax time.Duration

	// MaxAttempts limits how many attempts to connect will be made
	// before returning an error.
	MaxAttempts int
}

// DefaultKafkaConfig returns a default kafka config.
// There are NO default topics set.
func DefaultKafkaConfig(topics ...string) *KafkaConfig {
	return &KafkaConfig{
		Brokers:          DefaultKafkaConfigBrokers,
		GroupID:          DefaultKafkaConfigGroupID,
		Topics:           topics,
		QueueCapacity:    DefaultKafkaConfigQueueCapacity,
		MinBytes:         DefaultKafkaConfigMinBytes,
		MaxBytes:         DefaultKafkaConfigMaxBytes,
		MaxWait:          DefaultKafkaConfigMaxWait,
		ReadBatchTimeout: DefaultKafkaConfigReadBatchTimeout,
		CommitInterval:   DefaultKafkaConfigCommitInterval,
		StartOffset:      DefaultKafkaConfigStartOffset,
		ReadBackoffMin:   DefaultKafkaConfigReadMinBackoff,
		ReadBackoffMax:   DefaultKafkaConfigReadMaxBackoff,
		MaxAttempts:      DefaultKafkaConfigMaxAttempts,
	}
}

// Validate checks the configuration.
func (c *KafkaConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckLen(ac, "Brokers", &c.Brokers, DefaultKafkaConfigBrokers)

	config.CheckNotEmpty(ac, "GroupID", &c.GroupID, DefaultKafkaConfigGroupID)

	config.CheckNotNegative(ac, "QueueCapacity", &c.QueueCapacity, DefaultKafkaConfigQueueCapacity)
	config.CheckNotZero(ac, "QueueCapacity", &c.QueueCapacity, DefaultKafkaConfigQueueCapacity)
}

//////////////
//  SOURCE  //
//////////////

var _ Source = (*KafkaSource)(nil)

// KafkaSource reads messages from Kafka and publishes them into the
// ring as records.
type KafkaSource struct {
	tel *internal.Telemetry

	cfg       *KafkaConfig
	publisher *Publisher

	reader *kafka.Reader

	// Metrics
	receivedMessages atomic.Int64
	receivedBytes    atomic.Int64
	publishErrors    atomic.Int64
}

// NewKafkaSource returns a new Kafka source publishing into the given
// publisher. A nil configuration falls back to the default one.
func NewKafkaSource(publisher *Publisher, cfg *KafkaConfig) *KafkaSource {
	if cfg == nil {
		cfg = DefaultKafkaConfig()
	}

	tel := internal.NewTelemetry("ingress", "kafka")
	config.NewValidator(tel).Validate(cfg)

	return &KafkaSource{
		tel: tel,

		cfg:       cfg,
		publisher: publisher,
	}
}

// Init creates the kafka reader.
func (ks *KafkaSource) Init(_ context.Context) error {
	ks.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:          ks.cfg.Brokers,
		GroupID:          ks.cfg.GroupID,
		GroupTopics:      ks.cfg.Topics,
		Dialer:           ks.cfg.Dialer,
		QueueCapacity:    ks.cfg.QueueCapacity,
		MinBytes:         ks.cfg.MinBytes,
		MaxBytes:         ks.cfg.MaxBytes,
		MaxWait:          ks.cfg.MaxWait,
		ReadBatchTimeout: ks.cfg.ReadBatchTimeout,
		CommitInterval:   ks.cfg.CommitInterval,
		StartOffset:      ks.cfg.StartOffset,
		ReadBackoffMin:   ks.cfg.ReadBackoffMin,
		ReadBackoffMax:   ks.cfg.ReadBackoffMax,
		MaxAttempts:      ks.cfg.MaxAttempts,
	})

	ks.initMetrics()

	return nil
}

func (ks *KafkaSource) initMetrics() {
	ks.tel.NewCounter("received_bytes", func() int64 { return ks.receivedBytes.Load() })
	ks.tel.NewCounter("received_messages", func() int64 { return ks.receivedMessages.Load() })
	ks.tel.NewCounter("publish_errors", func() int64 { return ks.publishErrors.Load() })
}

// Run reads messages until the context is canceled.
func (ks *KafkaSource) Run(ctx context.Context) error {
	ks.tel.LogInfo("running")
	defer ks.tel.LogInfo("stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := ks.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			ks.tel.LogError("failed to read message", err)
			continue
		}

		ks.handleMessage(ctx, &msg)
	}
}

func (ks *KafkaSource) handleMessage(ctx context.Context, msg *kafka.Message) {
	if len(msg.Headers) > 0 {
		headerCarrier := telemetry.NewKafkaHeaderCarrier(msg.Headers)
		ctx = ks.tel.ExtractTraceContext(ctx, headerCarrier)
	}

	_, span := ks.tel.NewTrace(ctx, "handle kafka message")
	defer span.End()

	valueSize := len(msg.Value)
	span.SetAttributes(attribute.Int("value_size", valueSize))

	recvTime := time.Now()

	err := ks.publisher.PublishEvent(func(event *Record, _ int64) {
		event.Reset()
		event.SetTopic(msg.Topic)
		event.SetKey(msg.Key)
		event.SetPayload(msg.Value)
		event.SetReceiveTime(recvTime)
		event.SetTimestamp(msg.Time)
		event.SaveSpan(span)
	})

	if err != nil {
		ks.publishErrors.Add(1)
		ks.tel.LogError("failed to publish record", err)
		return
	}

	ks.receivedMessages.Add(1)
	ks.receivedBytes.Add(int64(valueSize))
}

// Close closes the kafka reader.
func (ks *KafkaSource) Close() error {
	return ks.reader.Close()
}
