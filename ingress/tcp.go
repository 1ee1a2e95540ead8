package ingress

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/staffetta/internal"
	"github.com/FerroO2000/staffetta/internal/config"
	"go.opentelemetry.io/otel/attribute"
)

const tcpBufSize = 4096

//////////////
//  CONFIG  //
//////////////

// Endianess defines the endianness of a slice of bytes.
type Endianess uint8

const (
	// LittleEndian defines little endianess.
	LittleEndian Endianess = iota
	// BigEndian defines big endianess.
	BigEndian
)

// TCPFramingMode defines the framing mode to use.
type TCPFramingMode uint8

const (
	// TCPFramingModeDelimited will use delimited messages.
	TCPFramingModeDelimited TCPFramingMode = iota
	// TCPFramingModeLengthPrefixed will use length-prefixed messages.
	TCPFramingModeLengthPrefixed
)

// Default values for the TCP source configuration.
const (
	DefaultTCPConfigIPAddr         = "0.0.0.0"
	DefaultTCPConfigPort           = 20_000
	DefaultTCPConfigTopic          = "tcp"
	DefaultTCPConfigReadTimeout    = 10 * time.Second
	DefaultTCPConfigFramingMode    = TCPFramingModeDelimited
	DefaultTCPConfigMaxMessageSize = 4 << 20
	DefaultTCPConfigHeaderLen      = 16
)

// DefaultTCPConfigDelimiter is the default delimiter for delimited messages.
var DefaultTCPConfigDelimiter = []byte("\r\n")

// TCPConfig contains the configuration for the TCP source.
type TCPConfig struct {
	// IPAddr is the IP address to listen on.
	IPAddr string

	// Port is the port to listen on.
	Port uint16

	// Topic is the topic set on the published records.
	Topic string

	// ReadTimeout is the timeout for reading from a connection.
	ReadTimeout time.Duration

	// FramingMode defines how messages are separated in the stream.
	FramingMode TCPFramingMode

	// MaxMessageSize is the maximum size of a message. If the
	// accumulator holding the message gets bigger, the connection
	// is closed.
	MaxMessageSize int

	// Delimiter separates messages when the FramingMode is
	// TCPFramingModeDelimited.
	Delimiter []byte

	// HeaderLen is the length of the header when FramingMode is
	// TCPFramingModeLengthPrefixed.
	HeaderLen int

	// MessageLengthFieldLen is the length of the message length field
	// when FramingMode is TCPFramingModeLengthPrefixed.
	MessageLengthFieldLen int

	// MessageLengthFieldOffset is the offset in the header of the
	// message length field when FramingMode is
	// TCPFramingModeLengthPrefixed.
	MessageLengthFieldOffset int

	// MessageLengthFieldEndianess is the byte order of the message
	// length field when FramingMode is TCPFramingModeLengthPrefixed.
	MessageLengthFieldEndianess Endianess
}

// NewTCPConfig returns the default configuration for the TCP source.
func NewTCPConfig() *TCPConfig {
	return &TCPConfig{
		IPAddr:         DefaultTCPConfigIPAddr,
		Port:           DefaultTCPConfigPort,
		Topic:          DefaultTCPConfigTopic,
		ReadTimeout:    DefaultTCPConfigReadTimeout,
		FramingMode:    DefaultTCPConfigFramingMode,
		MaxMessageSize: DefaultTCPConfigMaxMessageSize,
		Delimiter:      DefaultTCPConfigDelimiter,
	}
}

// Validate checks the configuration.
func (c *TCPConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "IPAddr", &c.IPAddr, DefaultTCPConfigIPAddr)

	config.CheckNotZero(ac, "Port", &c.Port, DefaultTCPConfigPort)

	config.CheckNotEmpty(ac, "Topic", &c.Topic, DefaultTCPConfigTopic)

	config.CheckNotNegative(ac, "ReadTimeout", &c.ReadTimeout, DefaultTCPConfigReadTimeout)
	config.CheckNotZero(ac, "ReadTimeout", &c.ReadTimeout, DefaultTCPConfigReadTimeout)

	config.CheckNotNegative(ac, "MaxMessageSize", &c.MaxMessageSize, DefaultTCPConfigMaxMessageSize)
	config.CheckNotZero(ac, "MaxMessageSize", &c.MaxMessageSize, DefaultTCPConfigMaxMessageSize)

	config.CheckLen(ac, "Delimiter", &c.Delimiter, DefaultTCPConfigDelimiter)

	if c.FramingMode == TCPFramingModeDelimited {
		return
	}

	// Checks for the length-prefixed framing mode
	config.CheckNotNegative(ac, "HeaderLen", &c.HeaderLen, DefaultTCPConfigHeaderLen)
	config.CheckNotZero(ac, "HeaderLen", &c.HeaderLen, DefaultTCPConfigHeaderLen)

	config.CheckNotNegative(ac, "MessageLengthFieldLen", &c.MessageLengthFieldLen, c.HeaderLen)
	config.CheckNotGreater(ac, "MessageLengthFieldLen", &c.MessageLengthFieldLen, c.HeaderLen)

	config.CheckNotNegative(ac, "MessageLengthFieldOffset", &c.MessageLengthFieldOffset, 0)
	config.CheckNotGreater(ac, "MessageLengthFieldOffset", &c.MessageLengthFieldOffset, c.HeaderLen-c.MessageLengthFieldLen)
}

//////////////
//  SOURCE  //
//////////////

var _ Source = (*TCPSource)(nil)

// TCPSource accepts TCP connections, extracts framed messages from
// their streams, and publishes every message as a record. Connection
// goroutines publish into the ring concurrently, so the exchange must
// use the multi producer claim strategy. The remote address of the
// connection becomes the record key.
type TCPSource struct {
	tel *internal.Telemetry

	cfg       *TCPConfig
	publisher *Publisher

	wg sync.WaitGroup

	bufPool sync.Pool

	listener *net.TCPListener

	delimiterLen        int
	msgLenFieldParseLen int

	// Metrics
	openConnections  atomic.Int64
	receivedBytes    atomic.Int64
	receivedMessages atomic.Int64
	publishErrors    atomic.Int64
}

// NewTCPSource returns a new TCP source publishing into the given
// publisher. A nil configuration falls back to the default one.
func NewTCPSource(publisher *Publisher, cfg *TCPConfig) *TCPSource {
	if cfg == nil {
		cfg = NewTCPConfig()
	}

	tel := internal.NewTelemetry("ingress", "tcp")
	config.NewValidator(tel).Validate(cfg)

	// The length field is extended to the nearest parseable width.
	msgLenFieldParseLen := cfg.MessageLengthFieldLen
	switch msgLenFieldParseLen {
	case 3:
		msgLenFieldParseLen = 4
	case 5, 6, 7:
		msgLenFieldParseLen = 8
	}

	return &TCPSource{
		tel: tel,

		cfg:       cfg,
		publisher: publisher,

		bufPool: sync.Pool{
			New: func() any {
				buf := make([]byte, tcpBufSize)
				return buf
			},
		},

		delimiterLen:        len(cfg.Delimiter),
		msgLenFieldParseLen: msgLenFieldParseLen,
	}
}

// Init opens the TCP listener.
func (ts *TCPSource) Init(_ context.Context) error {
	parsedAddr, err := netip.ParseAddr(ts.cfg.IPAddr)
	if err != nil {
		return err
	}

	addr := netip.AddrPortFrom(parsedAddr, ts.cfg.Port)
	listener, err := net.ListenTCP("tcp", net.TCPAddrFromAddrPort(addr))
	if err != nil {
		return err
	}

	ts.listener = listener

	ts.initMetrics()

	return nil
}

func (ts *TCPSource) initMetrics() {
	ts.tel.NewUpDownCounter("open_connections", func() int64 { return ts.openConnections.Load() })
	ts.tel.NewCounter("received_bytes", func() int64 { return ts.receivedBytes.Load() })
	ts.tel.NewCounter("received_messages", func() int64 { return ts.receivedMessages.Load() })
	ts.tel.NewCounter("publish_errors", func() int64 { return ts.publishErrors.Load() })
}

// Run accepts connections until the context is canceled.
func (ts *TCPSource) Run(ctx context.Context) error {
	ts.tel.LogInfo("running", "addr", ts.listener.Addr())
	defer ts.tel.LogInfo("stopped")

	// Unblock the pending accept when the context is done.
	stop := context.AfterFunc(ctx, func() { ts.listener.Close() })
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn, err := ts.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil

			default:
				ts.tel.LogError("failed to accept connection", err)
				continue
			}
		}

		ts.wg.Add(1)
		go ts.handleConn(ctx, conn)
	}
}

func (ts *TCPSource) handleConn(ctx context.Context, conn net.Conn) {
	defer ts.wg.Done()
	defer conn.Close()

	// Channel to notify when the connection is closed normally
	connClosed := make(chan struct{})
	defer close(connClosed)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-connClosed:
		}
	}()

	ts.openConnections.Add(1)
	defer ts.openConnections.Add(-1)

	remoteAddr := conn.RemoteAddr().String()

	buf := ts.bufPool.Get().([]byte)
	defer ts.bufPool.Put(buf)

	// Preallocate the accumulator
	accBaseCap := 4 * tcpBufSize
	acc := make([]byte, 0, accBaseCap)

	minAccLen := 0
	switch ts.cfg.FramingMode {
	case TCPFramingModeDelimited:
		minAccLen = ts.delimiterLen
	case TCPFramingModeLengthPrefixed:
		minAccLen = ts.cfg.HeaderLen
	}

loop:
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(ts.cfg.ReadTimeout))

		n, err := conn.Read(buf)
		if err != nil {
			// The client closed the connection normally.
			if errors.Is(err, io.EOF) {
				return
			}

			if errors.Is(err, net.ErrClosed) {
				select {
				case <-ctx.Done():
					return
				default:
				}
			}

			// Any other error is likely the read deadline being
			// exceeded, close the server side of the connection.
			ts.tel.LogError("failed to read connection", err)
			return
		}

		acc = append(acc, buf[:n]...)

		for {
			accLen := len(acc)

			// Not enough bytes for a frame, keep reading the stream
			if accLen < minAccLen {
				continue loop
			}

			msgLen := 0
			totLen := 0
			switch ts.cfg.FramingMode {
			case TCPFramingModeDelimited:
				msgLen = bytes.Index(acc, ts.cfg.Delimiter)
				totLen = msgLen + ts.delimiterLen

			case TCPFramingModeLengthPrefixed:
				msgLen = ts.parseHeader(acc[:ts.cfg.HeaderLen])
				totLen = msgLen + ts.cfg.HeaderLen
			}

			if msgLen == -1 || accLen < totLen {
				break
			}

			ts.handleMessage(ctx, acc[:totLen], remoteAddr)

			acc = acc[totLen:]

			// Shed the accumulator if it grew past its base capacity
			if len(acc) == 0 && cap(acc) > accBaseCap {
				acc = make([]byte, 0, accBaseCap)
				break
			}
		}

		if len(acc) > ts.cfg.MaxMessageSize {
			ts.tel.LogWarn("message too large, closing connection", "remote_addr", remoteAddr)
			return
		}
	}
}

func (ts *TCPSource) parseHeader(header []byte) int {
	if len(header) < ts.cfg.HeaderLen {
		return -1
	}

	offset := ts.cfg.MessageLengthFieldOffset
	msgLenField := header[offset : offset+ts.cfg.MessageLengthFieldLen]

	buf := msgLenField
	// Extend the field when its width is not directly parseable
	if ts.cfg.MessageLengthFieldLen != ts.msgLenFieldParseLen {
		buf = make([]byte, ts.msgLenFieldParseLen)

		switch ts.cfg.MessageLengthFieldEndianess {
		case LittleEndian:
			copy(buf, msgLenField)
		case BigEndian:
			copy(buf[ts.msgLenFieldParseLen-ts.cfg.MessageLengthFieldLen:], msgLenField)
		}
	}

	switch ts.cfg.MessageLengthFieldEndianess {
	case LittleEndian:
		return parseLittleEndianMsgLen(buf)
	case BigEndian:
		return parseBigEndianMsgLen(buf)
	}

	return 0
}

func parseLittleEndianMsgLen(buf []byte) int {
	switch len(buf) {
	case 1:
		return int(buf[0])
	case 2:
		return int(binary.LittleEndian.Uint16(buf))
	case 4:
		return int(binary.LittleEndian.Uint32(buf))
	case 8:
		return int(binary.LittleEndian.Uint64(buf))
	default:
		return -1
	}
}

func parseBigEndianMsgLen(buf []byte) int {
	switch len(buf) {
	case 1:
		return int(buf[0])
	case 2:
		return int(binary.BigEndian.Uint16(buf))
	case 4:
		return int(binary.BigEndian.Uint32(buf))
	case 8:
		return int(binary.BigEndian.Uint64(buf))
	default:
		return -1
	}
}

func (ts *TCPSource) handleMessage(ctx context.Context, rawMsg []byte, remoteAddr string) {
	_, span := ts.tel.NewTrace(ctx, "receive TCP message")
	defer span.End()

	msgSize := len(rawMsg)
	span.SetAttributes(attribute.Int("payload_size", msgSize))

	recvTime := time.Now()

	err := ts.publisher.PublishEvent(func(event *Record, _ int64) {
		event.Reset()
		event.SetTopic(ts.cfg.Topic)
		event.SetKey([]byte(remoteAddr))
		event.SetPayload(rawMsg)
		event.SetReceiveTime(recvTime)
		event.SetTimestamp(recvTime)
		event.SaveSpan(span)
	})

	if err != nil {
		ts.publishErrors.Add(1)
		ts.tel.LogError("failed to publish record", err, "remote_addr", remoteAddr)
		return
	}

	ts.receivedBytes.Add(int64(msgSize))
	ts.receivedMessages.Add(1)
}

// Close closes the listener and waits for the open connections to
// drain.
func (ts *TCPSource) Close() error {
	err := ts.listener.Close()
	ts.wg.Wait()

	return err
}
