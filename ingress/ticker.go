package ingress

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/internal/config"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the Ticker source configuration.
const (
	DefaultTickerConfigInterval = 100 * time.Millisecond
	DefaultTickerConfigTopic    = "ticks"
)

// TickerConfig contains the configuration for the Ticker source.
type TickerConfig struct {
	// Interval is the duration between ticks.
	Interval time.Duration

	// Topic is the topic set on the published records.
	Topic string
}

// NewTickerConfig returns the default configuration for the Ticker source.
func NewTickerConfig() *TickerConfig {
	return &TickerConfig{
		Interval: DefaultTickerConfigInterval,
		Topic:    DefaultTickerConfigTopic,
	}
}

// Validate checks the configuration.
func (c *TickerConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotNegative(ac, "Interval", &c.Interval, DefaultTickerConfigInterval)
	config.CheckNotZero(ac, "Interval", &c.Interval, DefaultTickerConfigInterval)

	config.CheckNotEmpty(ac, "Topic", &c.Topic, DefaultTickerConfigTopic)
}

//////////////
//  SOURCE  //
//////////////

var _ Source = (*TickerSource)(nil)

// TickerSource publishes a record into the ring at a fixed interval.
// Mostly useful for demos and load probes.
type TickerSource struct {
	tel *internal.Telemetry

	cfg       *TickerConfig
	publisher *Publisher

	ticker *time.Ticker

	// Metrics
	triggeredRecords atomic.Int64
}

// NewTickerSource returns a new Ticker source publishing into the
// given publisher. A nil configuration falls back to the default one.
func NewTickerSource(publisher *Publisher, cfg *TickerConfig) *TickerSource {
	if cfg == nil {
		cfg = NewTickerConfig()
	}

	tel := internal.NewTelemetry("ingress", "ticker")
	config.NewValidator(tel).Validate(cfg)

	return &TickerSource{
		tel: tel,

		cfg:       cfg,
		publisher: publisher,
	}
}

// Init creates the ticker.
func (ts *TickerSource) Init(_ context.Context) error {
	ts.ticker = time.NewTicker(ts.cfg.Interval)

	ts.tel.NewCounter("triggered_records", func() int64 { return ts.triggeredRecords.Load() })

	return nil
}

// Run publishes a record on every tick until the context is canceled.
func (ts *TickerSource) Run(ctx context.Context) error {
	ts.tel.LogInfo("running", "interval", ts.cfg.Interval)
	defer ts.tel.LogInfo("stopped")

	ticks := 0

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ts.ticker.C:
			ticks++
			ts.handleTrigger(ctx, ticks)
		}
	}
}

func (ts *TickerSource) handleTrigger(ctx context.Context, tick int) {
	_, span := ts.tel.NewTrace(ctx, "triggered ticker record")
	defer span.End()

	span.SetAttributes(attribute.Int("tick_number", tick))

	triggerTime := time.Now()
	payload := strconv.AppendInt(nil, int64(tick), 10)

	err := ts.publisher.PublishEvent(func(event *Record, _ int64) {
		event.Reset()
		event.SetTopic(ts.cfg.Topic)
		event.SetPayload(payload)
		event.SetReceiveTime(triggerTime)
		event.SetTimestamp(triggerTime)
		event.SaveSpan(span)
	})

	if err != nil {
		ts.tel.LogError("failed to publish record", err)
		return
	}

	ts.triggeredRecords.Add(1)
}

// Close stops the ticker.
func (ts *TickerSource) Close() error {
	ts.ticker.Stop()
	return nil
}
