package egress

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_UDPSink(t *testing.T) {
	assert := assert.New(t)

	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	assert.NoError(err)
	defer listener.Close()

	cfg := NewUDPConfig()
	cfg.Port = uint16(listener.LocalAddr().(*net.UDPAddr).Port)

	sink := NewUDPSink(cfg)
	assert.NoError(sink.Init(t.Context()))

	assert.NoError(sink.OnEvent(newTestRecord("test", []byte("datagram payload")), 0, true))

	assert.NoError(listener.SetReadDeadline(time.Now().Add(time.Second)))

	buf := make([]byte, 1024)
	n, _, err := listener.ReadFromUDP(buf)
	assert.NoError(err)
	assert.Equal("datagram payload", string(buf[:n]))

	assert.NoError(sink.Close())
}

func Test_TCPSink(t *testing.T) {
	assert := assert.New(t)

	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	assert.NoError(err)
	defer listener.Close()

	accepted := make(chan *net.TCPConn, 1)
	go func() {
		conn, err := listener.AcceptTCP()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	cfg := NewTCPConfig()
	cfg.Port = uint16(listener.Addr().(*net.TCPAddr).Port)

	sink := NewTCPSink(cfg)
	assert.NoError(sink.Init(t.Context()))

	conn, ok := <-accepted
	assert.True(ok)
	defer conn.Close()

	messages := []string{"first message", "second message"}
	for idx, message := range messages {
		assert.NoError(sink.OnEvent(newTestRecord("test", []byte(message)), int64(idx), true))
	}

	assert.NoError(conn.SetReadDeadline(time.Now().Add(time.Second)))

	reader := bufio.NewReader(conn)
	for _, message := range messages {
		line, err := reader.ReadString('\n')
		assert.NoError(err)
		assert.Equal(message+"\r\n", line)
	}

	assert.NoError(sink.Close())
}

func Test_UDPSink_ConfigFallbacks(t *testing.T) {
	assert := assert.New(t)

	cfg := &UDPConfig{}
	NewUDPSink(cfg)

	assert.Equal(DefaultUDPConfigIPAddr, cfg.IPAddr)
	assert.Equal(uint16(DefaultUDPConfigPort), cfg.Port)
}
