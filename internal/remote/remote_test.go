package remote

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/reversi/internal/protocol"
)

// tcpPair returns two connected TCP endpoints on the loopback interface.
func tcpPair(t *testing.T) (client, server net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			done <- c
		}
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server = <-done

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestRemote_WriteThenRead(t *testing.T) {
	cConn, sConn := tcpPair(t)
	client, server := New(cConn), New(sConn)

	require.NoError(t, client.WritePacket(protocol.Login{Name: "alice"}))

	p, err := server.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, protocol.Login{Name: "alice"}, p)
}

func TestRemote_ReadTimeoutWakesReader(t *testing.T) {
	cConn, _ := tcpPair(t)
	client := New(cConn)
	client.SetReadTimeout(50 * time.Millisecond)

	start := time.Now()
	_, err := client.ReadPacket()
	require.Error(t, err)

	var nerr net.Error
	require.ErrorAs(t, err, &nerr)
	assert.True(t, nerr.Timeout())
	assert.Less(t, time.Since(start), time.Second)
}

func TestRemote_PeerCloseYieldsErrClosed(t *testing.T) {
	cConn, sConn := tcpPair(t)
	client := New(cConn)

	require.NoError(t, sConn.Close())

	_, err := client.ReadPacket()
	require.ErrorIs(t, err, protocol.ErrClosed)
}

func TestRemote_ConcurrentWritersDoNotInterleave(t *testing.T) {
	cConn, sConn := tcpPair(t)
	client, server := New(cConn), New(sConn)

	const n = 50
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Go(func() {
			for j := range n {
				err := client.WritePacket(protocol.Message{
					Client: protocol.ClientID(i),
					Text:   "msg",
				})
				assert.NoError(t, err, "writer %d msg %d", i, j)
			}
		})
	}

	// Every frame must decode cleanly; torn frames would fail here.
	for range 4 * n {
		p, err := server.ReadPacket()
		require.NoError(t, err)
		require.IsType(t, protocol.Message{}, p)
	}
	wg.Wait()
}

func TestRemote_ShutdownStopsBothDirections(t *testing.T) {
	cConn, sConn := tcpPair(t)
	client, server := New(cConn), New(sConn)

	client.Shutdown()

	_, err := server.ReadPacket()
	require.ErrorIs(t, err, protocol.ErrClosed)

	err = client.WritePacket(protocol.Pass{Opponent: 1})
	require.Error(t, err)
	require.False(t, errors.Is(err, protocol.ErrPacketTooLarge))
}
