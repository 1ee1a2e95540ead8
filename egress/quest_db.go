package egress

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/internal/config"
	qdb "github.com/questdb/go-questdb-client/v3"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the QuestDB sink configuration.
const (
	DefaultQuestDBConfigAddress      = "localhost:9000"
	DefaultQuestDBConfigTable        = "records"
	DefaultQuestDBConfigRetryTimeout = time.Second
)

// QuestDBConfig contains the configuration for the QuestDB sink.
type QuestDBConfig struct {
	// Address of the QuestDB server.
	Address string

	// Table is the table rows are inserted into.
	Table string

	// RetryTimeout is how long the sender retries failed HTTP
	// requests before giving up.
	RetryTimeout time.Duration
}

// NewQuestDBConfig returns the default configuration for the QuestDB sink.
func NewQuestDBConfig() *QuestDBConfig {
	return &QuestDBConfig{
		Address:      DefaultQuestDBConfigAddress,
		Table:        DefaultQuestDBConfigTable,
		RetryTimeout: DefaultQuestDBConfigRetryTimeout,
	}
}

// Validate checks the configuration.
func (c *QuestDBConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Address", &c.Address, DefaultQuestDBConfigAddress)
	config.CheckNotEmpty(ac, "Table", &c.Table, DefaultQuestDBConfigTable)

	config.CheckNotNegative(ac, "RetryTimeout", &c.RetryTimeout, DefaultQuestDBConfigRetryTimeout)
}

////////////
//  SINK  //
////////////

var _ Sink = (*QuestDBSink)(nil)

// QuestDBSink inserts records into a QuestDB table as ILP rows. The
// record topic becomes a symbol, the payload and key become string
// columns, and the record timestamp becomes the designated timestamp.
// Rows are buffered in the sender and flushed when the consumer
// reaches the end of an available batch.
type QuestDBSink struct {
	tel *internal.Telemetry

	cfg    *QuestDBConfig
	sender qdb.LineSender

	ctx context.Context

	pendingRows int

	// Metrics
	insertedRows atomic.Int64
	insertErrors atomic.Int64
	flushes      atomic.Int64
	flushErrors  atomic.Int64
}

// NewQuestDBSink returns a new QuestDB sink. A nil configuration falls
// back to the default one.
func NewQuestDBSink(cfg *QuestDBConfig) *QuestDBSink {
	if cfg == nil {
		cfg = NewQuestDBConfig()
	}

	tel := internal.NewTelemetry("egress", "questdb")
	config.NewValidator(tel).Validate(cfg)

	return &QuestDBSink{
		tel: tel,

		cfg: cfg,
	}
}

// Init creates the line sender. Flushing is driven by the batch
// boundaries of the consumer, not by the sender's auto-flush.
func (qs *QuestDBSink) Init(ctx context.Context) error {
	sender, err := qdb.NewLineSender(
		ctx,
		qdb.WithAddress(qs.cfg.Address),
		qdb.WithHttp(),
		qdb.WithAutoFlushDisabled(),
		qdb.WithRetryTimeout(qs.cfg.RetryTimeout),
	)
	if err != nil {
		return err
	}

	qs.sender = sender
	qs.ctx = ctx

	qs.initMetrics()

	return nil
}

func (qs *QuestDBSink) initMetrics() {
	qs.tel.NewCounter("inserted_rows", func() int64 { return qs.insertedRows.Load() })
	qs.tel.NewCounter("insert_errors", func() int64 { return qs.insertErrors.Load() })
	qs.tel.NewCounter("flushes", func() int64 { return qs.flushes.Load() })
	qs.tel.NewCounter("flush_errors", func() int64 { return qs.flushErrors.Load() })
}

// OnEvent buffers the record as a row and flushes on batch end.
func (qs *QuestDBSink) OnEvent(event *Record, _ int64, endOfBatch bool) error {
	ctx, span := qs.tel.NewTrace(event.LoadSpanContext(qs.ctx), "insert record row")
	defer span.End()

	query := qs.sender.Table(qs.cfg.Table).
		Symbol("topic", event.Topic()).
		StringColumn("payload", string(event.Payload())).
		TimestampColumn("received_at", event.ReceiveTime())

	if len(event.Key()) > 0 {
		query.StringColumn("key", string(event.Key()))
	}

	if err := query.At(ctx, event.Timestamp()); err != nil {
		qs.insertErrors.Add(1)
		qs.tel.LogError("failed to insert row", err, "table", qs.cfg.Table)
		return err
	}

	qs.pendingRows++
	qs.insertedRows.Add(1)

	span.SetAttributes(attribute.Bool("end_of_batch", endOfBatch))

	if endOfBatch {
		return qs.flush(ctx)
	}

	return nil
}

func (qs *QuestDBSink) flush(ctx context.Context) error {
	if qs.pendingRows == 0 {
		return nil
	}

	if err := qs.sender.Flush(ctx); err != nil {
		qs.flushErrors.Add(1)
		qs.tel.LogError("failed to flush rows", err, "pending_rows", qs.pendingRows)
		return err
	}

	qs.flushes.Add(1)
	qs.pendingRows = 0

	return nil
}

// Close flushes the remaining rows and closes the sender.
func (qs *QuestDBSink) Close() error {
	ctx := context.Background()

	if err := qs.flush(ctx); err != nil {
		return err
	}

	return qs.sender.Close(ctx)
}
