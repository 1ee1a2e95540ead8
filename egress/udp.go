package egress

import (
	"context"
	"net"
	"net/netip"
	"sync/atomic"

	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/internal/config"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the UDP sink configuration.
const (
	DefaultUDPConfigIPAddr = "127.0.0.1"
	DefaultUDPConfigPort   = 20_000
)

// UDPConfig contains the configuration for the UDP sink.
type UDPConfig struct {
	// IPAddr is the destination IP address.
	IPAddr string

	// Port is the destination port.
	Port uint16
}

// NewUDPConfig returns the default configuration for the UDP sink.
func NewUDPConfig() *UDPConfig {
	return &UDPConfig{
		IPAddr: DefaultUDPConfigIPAddr,
		Port:   DefaultUDPConfigPort,
	}
}

// Validate checks the configuration.
func (c *UDPConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "IPAddr", &c.IPAddr, DefaultUDPConfigIPAddr)

	config.CheckNotZero(ac, "Port", &c.Port, DefaultUDPConfigPort)
}

////////////
//  SINK  //
////////////

var _ Sink = (*UDPSink)(nil)

// UDPSink sends record payloads as UDP datagrams.
type UDPSink struct {
	tel *internal.Telemetry

	cfg  *UDPConfig
	conn *net.UDPConn

	ctx context.Context

	// Metrics
	deliveredMessages atomic.Int64
	deliveredBytes    atomic.Int64
	deliverErrors     atomic.Int64
}

// NewUDPSink returns a new UDP sink. A nil configuration falls back to
// the default one.
func NewUDPSink(cfg *UDPConfig) *UDPSink {
	if cfg == nil {
		cfg = NewUDPConfig()
	}

	tel := internal.NewTelemetry("egress", "udp")
	config.NewValidator(tel).Validate(cfg)

	return &UDPSink{
		tel: tel,

		cfg: cfg,
	}
}

// Init dials the UDP connection.
func (us *UDPSink) Init(ctx context.Context) error {
	parsedAddr, err := netip.ParseAddr(us.cfg.IPAddr)
	if err != nil {
		return err
	}

	addr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(parsedAddr, us.cfg.Port))
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}

	us.conn = conn
	us.ctx = ctx

	us.initMetrics()

	return nil
}

func (us *UDPSink) initMetrics() {
	us.tel.NewCounter("delivered_messages", func() int64 { return us.deliveredMessages.Load() })
	us.tel.NewCounter("delivered_bytes", func() int64 { return us.deliveredBytes.Load() })
	us.tel.NewCounter("deliver_errors", func() int64 { return us.deliverErrors.Load() })
}

// OnEvent sends the record payload as a datagram.
func (us *UDPSink) OnEvent(event *Record, _ int64, _ bool) error {
	_, span := us.tel.NewTrace(event.LoadSpanContext(us.ctx), "deliver UDP datagram")
	defer span.End()

	payload := event.Payload()
	span.SetAttributes(attribute.Int("payload_size", len(payload)))

	deliveredBytes, err := us.conn.Write(payload)
	if err != nil {
		us.deliverErrors.Add(1)
		us.tel.LogError("failed to write datagram", err)
		return err
	}

	us.deliveredMessages.Add(1)
	us.deliveredBytes.Add(int64(deliveredBytes))

	return nil
}

// Close closes the UDP connection.
func (us *UDPSink) Close() error {
	return us.conn.Close()
}
