package ingress

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ParseMsgLen(t *testing.T) {
	assert := assert.New(t)

	suite := []struct {
		buf      []byte
		little   int
		big      int
	}{
		{[]byte{0x2a}, 42, 42},
		{[]byte{0x01, 0x02}, 0x0201, 0x0102},
		{[]byte{0x01, 0x02, 0x03, 0x04}, 0x04030201, 0x01020304},
		{[]byte{0, 0, 0, 0, 0, 0, 0, 0x01}, 0x0100000000000000, 1},
	}

	for _, tCase := range suite {
		assert.Equal(tCase.little, parseLittleEndianMsgLen(tCase.buf))
		assert.Equal(tCase.big, parseBigEndianMsgLen(tCase.buf))
	}

	// Widths with no direct integer representation
	assert.Equal(-1, parseLittleEndianMsgLen([]byte{1, 2, 3}))
	assert.Equal(-1, parseBigEndianMsgLen([]byte{1, 2, 3, 4, 5}))
}

func Test_TCPSource_ParseHeader(t *testing.T) {
	assert := assert.New(t)

	cfg := NewTCPConfig()
	cfg.FramingMode = TCPFramingModeLengthPrefixed
	cfg.HeaderLen = 8
	cfg.MessageLengthFieldLen = 3
	cfg.MessageLengthFieldOffset = 2
	cfg.MessageLengthFieldEndianess = BigEndian

	source := NewTCPSource(newPublisherOnly(t), cfg)

	header := []byte{0xff, 0xff, 0x00, 0x01, 0x02, 0xff, 0xff, 0xff}
	assert.Equal(0x000102, source.parseHeader(header))

	assert.Equal(-1, source.parseHeader(header[:4]))

	cfg = NewTCPConfig()
	cfg.FramingMode = TCPFramingModeLengthPrefixed
	cfg.HeaderLen = 4
	cfg.MessageLengthFieldLen = 3
	cfg.MessageLengthFieldOffset = 0
	cfg.MessageLengthFieldEndianess = LittleEndian

	source = NewTCPSource(newPublisherOnly(t), cfg)
	assert.Equal(0x020100, source.parseHeader([]byte{0x00, 0x01, 0x02, 0xff}))
}

func Test_TCPSource_Delimited(t *testing.T) {
	assert := assert.New(t)

	publisher, ring := newTestPublisher(t)

	cfg := NewTCPConfig()
	cfg.IPAddr = "127.0.0.1"
	cfg.Port = 42_101
	cfg.Topic = "test-tcp"

	source := NewTCPSource(publisher, cfg)
	assert.NoError(source.Init(t.Context()))

	ctx, cancelCtx := context.WithCancel(t.Context())

	var runWg sync.WaitGroup
	runWg.Add(1)

	go func() {
		defer runWg.Done()
		assert.NoError(source.Run(ctx))
	}()

	conn, err := net.Dial("tcp", "127.0.0.1:42101")
	assert.NoError(err)

	_, err = conn.Write([]byte("hello\r\nworld\r\n"))
	assert.NoError(err)

	waitForCursor(t, ring, 1)

	// A frame keeps its delimiter so the stream can be rebuilt.
	first := ring.Get(0)
	assert.Equal("test-tcp", first.Topic())
	assert.Equal([]byte("hello\r\n"), first.Payload())
	assert.Equal([]byte(conn.LocalAddr().String()), first.Key())

	second := ring.Get(1)
	assert.Equal([]byte("world\r\n"), second.Payload())

	assert.NoError(conn.Close())

	cancelCtx()
	runWg.Wait()

	// The canceled context already closed the listener.
	source.Close()
}

func Test_TCPSource_LengthPrefixed(t *testing.T) {
	assert := assert.New(t)

	publisher, ring := newTestPublisher(t)

	cfg := NewTCPConfig()
	cfg.IPAddr = "127.0.0.1"
	cfg.Port = 42_102
	cfg.FramingMode = TCPFramingModeLengthPrefixed
	cfg.HeaderLen = 4
	cfg.MessageLengthFieldLen = 4
	cfg.MessageLengthFieldOffset = 0
	cfg.MessageLengthFieldEndianess = LittleEndian

	source := NewTCPSource(publisher, cfg)
	assert.NoError(source.Init(t.Context()))

	ctx, cancelCtx := context.WithCancel(t.Context())

	var runWg sync.WaitGroup
	runWg.Add(1)

	go func() {
		defer runWg.Done()
		assert.NoError(source.Run(ctx))
	}()

	conn, err := net.Dial("tcp", "127.0.0.1:42102")
	assert.NoError(err)

	message := []byte("length prefixed body")
	frame := binary.LittleEndian.AppendUint32(nil, uint32(len(message)))
	frame = append(frame, message...)

	_, err = conn.Write(frame)
	assert.NoError(err)

	waitForCursor(t, ring, 0)

	// The published frame includes the header.
	published := ring.Get(0)
	assert.Equal(frame, published.Payload())

	assert.NoError(conn.Close())

	cancelCtx()
	runWg.Wait()

	source.Close()
}
