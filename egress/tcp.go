package egress

import (
	"context"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/internal/config"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the TCP sink configuration.
const (
	DefaultTCPConfigIPAddr       = "127.0.0.1"
	DefaultTCPConfigPort         = 20_000
	DefaultTCPConfigWriteTimeout = 10 * time.Second
)

// DefaultTCPConfigDelimiter is the default delimiter appended after
// every record payload.
var DefaultTCPConfigDelimiter = []byte("\r\n")

// TCPConfig contains the configuration for the TCP sink.
type TCPConfig struct {
	// IPAddr is the destination IP address.
	IPAddr string

	// Port is the destination port.
	Port uint16

	// WriteTimeout is the timeout for writing to the TCP connection.
	WriteTimeout time.Duration

	// Delimiter is appended after every record payload so the peer
	// can split the stream back into messages.
	Delimiter []byte
}

// NewTCPConfig returns the default configuration for the TCP sink.
func NewTCPConfig() *TCPConfig {
	return &TCPConfig{
		IPAddr:       DefaultTCPConfigIPAddr,
		Port:         DefaultTCPConfigPort,
		WriteTimeout: DefaultTCPConfigWriteTimeout,
		Delimiter:    DefaultTCPConfigDelimiter,
	}
}

// Validate checks the configuration.
func (c *TCPConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "IPAddr", &c.IPAddr, DefaultTCPConfigIPAddr)

	config.CheckNotZero(ac, "Port", &c.Port, DefaultTCPConfigPort)

	config.CheckNotNegative(ac, "WriteTimeout", &c.WriteTimeout, DefaultTCPConfigWriteTimeout)
	config.CheckNotZero(ac, "WriteTimeout", &c.WriteTimeout, DefaultTCPConfigWriteTimeout)
}

////////////
//  SINK  //
////////////

var _ Sink = (*TCPSink)(nil)

// TCPSink writes record payloads to a TCP connection, each followed
// by the configured delimiter.
type TCPSink struct {
	tel *internal.Telemetry

	cfg  *TCPConfig
	conn *net.TCPConn

	ctx context.Context

	// Metrics
	deliveredMessages atomic.Int64
	deliveredBytes    atomic.Int64
	deliverErrors     atomic.Int64
}

// NewTCPSink returns a new TCP sink. A nil configuration falls back to
// the default one.
func NewTCPSink(cfg *TCPConfig) *TCPSink {
	if cfg == nil {
		cfg = NewTCPConfig()
	}

	tel := internal.NewTelemetry("egress", "tcp")
	config.NewValidator(tel).Validate(cfg)

	return &TCPSink{
		tel: tel,

		cfg: cfg,
	}
}

// Init dials the TCP connection.
func (ts *TCPSink) Init(ctx context.Context) error {
	parsedAddr, err := netip.ParseAddr(ts.cfg.IPAddr)
	if err != nil {
		return err
	}

	addr := net.TCPAddrFromAddrPort(netip.AddrPortFrom(parsedAddr, ts.cfg.Port))
	conn, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		return err
	}

	ts.conn = conn
	ts.ctx = ctx

	ts.initMetrics()

	return nil
}

func (ts *TCPSink) initMetrics() {
	ts.tel.NewCounter("delivered_messages", func() int64 { return ts.deliveredMessages.Load() })
	ts.tel.NewCounter("delivered_bytes", func() int64 { return ts.deliveredBytes.Load() })
	ts.tel.NewCounter("deliver_errors", func() int64 { return ts.deliverErrors.Load() })
}

// OnEvent writes the record payload and the delimiter.
func (ts *TCPSink) OnEvent(event *Record, _ int64, _ bool) error {
	_, span := ts.tel.NewTrace(event.LoadSpanContext(ts.ctx), "deliver TCP message")
	defer span.End()

	if err := ts.conn.SetWriteDeadline(time.Now().Add(ts.cfg.WriteTimeout)); err != nil {
		return err
	}

	payload := event.Payload()
	span.SetAttributes(attribute.Int("message_size", len(payload)))

	deliveredBytes, err := ts.conn.Write(payload)
	if err != nil {
		ts.deliverErrors.Add(1)
		ts.tel.LogError("failed to write message", err)
		return err
	}

	n, err := ts.conn.Write(ts.cfg.Delimiter)
	if err != nil {
		ts.deliverErrors.Add(1)
		ts.tel.LogError("failed to write delimiter", err)
		return err
	}
	deliveredBytes += n

	ts.deliveredMessages.Add(1)
	ts.deliveredBytes.Add(int64(deliveredBytes))

	return nil
}

// Close closes the TCP connection.
func (ts *TCPSink) Close() error {
	return ts.conn.Close()
}
