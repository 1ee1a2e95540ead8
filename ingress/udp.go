package ingress

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/internal/config"
	"go.opentelemetry.io/otel/attribute"
)

const udpPayloadSize = 1474

//////////////
//  CONFIG  //
//////////////

// Default values for the UDP source configuration.
const (
	DefaultUDPConfigIPAddr = "0.0.0.0"
	DefaultUDPConfigPort   = 20_000
	DefaultUDPConfigTopic  = "udp"
)

// UDPConfig contains the configuration for the UDP source.
type UDPConfig struct {
	// IPAddr is the IP address to listen on.
	IPAddr string

	// Port is the port to listen on.
	Port uint16

	// Topic is the topic set on the published records.
	Topic string
}

// NewUDPConfig returns the default configuration for the UDP source.
func NewUDPConfig() *UDPConfig {
	return &UDPConfig{
		IPAddr: DefaultUDPConfigIPAddr,
		Port:   DefaultUDPConfigPort,
		Topic:  DefaultUDPConfigTopic,
	}
}

// Validate checks the configuration.
func (c *UDPConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "IPAddr", &c.IPAddr, DefaultUDPConfigIPAddr)

	config.CheckNotZero(ac, "Port", &c.Port, DefaultUDPConfigPort)

	config.CheckNotEmpty(ac, "Topic", &c.Topic, DefaultUDPConfigTopic)
}

//////////////
//  SOURCE  //
//////////////

var _ Source = (*UDPSource)(nil)

// UDPSource listens on a UDP socket and publishes every received
// datagram as a record. The remote address of the datagram becomes
// the record key.
type UDPSource struct {
	tel *internal.Telemetry

	cfg       *UDPConfig
	publisher *Publisher

	conn *net.UDPConn

	// Metrics
	receivedMessages atomic.Int64
	receivedBytes    atomic.Int64
	publishErrors    atomic.Int64
}

// NewUDPSource returns a new UDP source publishing into the given
// publisher. A nil configuration falls back to the default one.
func NewUDPSource(publisher *Publisher, cfg *UDPConfig) *UDPSource {
	if cfg == nil {
		cfg = NewUDPConfig()
	}

	tel := internal.NewTelemetry("ingress", "udp")
	config.NewValidator(tel).Validate(cfg)

	return &UDPSource{
		tel: tel,

		cfg:       cfg,
		publisher: publisher,
	}
}

// Init opens the UDP socket.
func (us *UDPSource) Init(_ context.Context) error {
	parsedAddr, err := netip.ParseAddr(us.cfg.IPAddr)
	if err != nil {
		return err
	}

	addr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(parsedAddr, us.cfg.Port))
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}

	us.conn = conn

	us.initMetrics()

	return nil
}

func (us *UDPSource) initMetrics() {
	us.tel.NewCounter("received_messages", func() int64 { return us.receivedMessages.Load() })
	us.tel.NewCounter("received_bytes", func() int64 { return us.receivedBytes.Load() })
	us.tel.NewCounter("publish_errors", func() int64 { return us.publishErrors.Load() })
}

// Run reads datagrams until the context is canceled.
func (us *UDPSource) Run(ctx context.Context) error {
	us.tel.LogInfo("running", "addr", us.conn.LocalAddr())
	defer us.tel.LogInfo("stopped")

	// Unblock the pending read when the context is done.
	stop := context.AfterFunc(ctx, func() { us.conn.Close() })
	defer stop()

	buf := make([]byte, udpPayloadSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, remoteAddr, err := us.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
			}

			us.tel.LogError("failed to read connection", err)
			return err
		}

		us.handleDatagram(ctx, buf[:n], remoteAddr)
	}
}

func (us *UDPSource) handleDatagram(ctx context.Context, payload []byte, remoteAddr *net.UDPAddr) {
	_, span := us.tel.NewTrace(ctx, "receive UDP datagram")
	defer span.End()

	payloadSize := len(payload)
	span.SetAttributes(attribute.Int("payload_size", payloadSize))

	recvTime := time.Now()
	key := remoteAddr.String()

	err := us.publisher.PublishEvent(func(event *Record, _ int64) {
		event.Reset()
		event.SetTopic(us.cfg.Topic)
		event.SetKey([]byte(key))
		event.SetPayload(payload)
		event.SetReceiveTime(recvTime)
		event.SetTimestamp(recvTime)
		event.SaveSpan(span)
	})

	if err != nil {
		us.publishErrors.Add(1)
		us.tel.LogError("failed to publish record", err)
		return
	}

	us.receivedMessages.Add(1)
	us.receivedBytes.Add(int64(payloadSize))
}

// Close closes the UDP socket.
func (us *UDPSource) Close() error {
	return us.conn.Close()
}
