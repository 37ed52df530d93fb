package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/reversi/internal/bus"
	"github.com/udisondev/reversi/internal/protocol"
)

// scriptServer runs fn against the first accepted connection.
func scriptServer(t *testing.T, fn func(conn net.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
		fn(conn)
	}()
	return ln.Addr().String()
}

func TestConnectHandshake(t *testing.T) {
	proceed := make(chan struct{})
	addr := scriptServer(t, func(conn net.Conn) {
		buf := make([]byte, protocol.MaxPacketSize)

		require.NoError(t, protocol.WritePacket(conn, protocol.ConnectSuccess{ID: 42}))
		p, err := protocol.ReadPacket(conn, buf)
		require.NoError(t, err)
		login, ok := p.(protocol.Login)
		require.True(t, ok, "expected Login, got %T", p)
		assert.Equal(t, "alice", login.Name)
		require.NoError(t, protocol.WritePacket(conn, protocol.LoginAccept{}))

		<-proceed
		require.NoError(t, protocol.WritePacket(conn, protocol.Message{Client: 7, Text: "welcome"}))
	})

	h, err := Connect(context.Background(), addr, "alice")
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, protocol.ClientID(42), h.ID())
	assert.Equal(t, "alice", h.LoginName())
	assert.True(t, h.Connected())

	in := bus.New[protocol.Packet](16)
	h.Subscribe(in)
	close(proceed)

	select {
	case p, ok := <-in.C():
		require.True(t, ok)
		msg, isMsg := p.(protocol.Message)
		require.True(t, isMsg, "expected Message, got %T", p)
		assert.Equal(t, "welcome", msg.Text)
	case <-time.After(3 * time.Second):
		t.Fatal("message never arrived")
	}

	// Server going away surfaces as a synthesized Disconnect.
	select {
	case p, ok := <-in.C():
		require.True(t, ok)
		require.IsType(t, protocol.Disconnect{}, p)
	case <-time.After(3 * time.Second):
		t.Fatal("disconnect never arrived")
	}

	assert.False(t, h.Connected())
	assert.False(t, h.Send(protocol.RequestClientList{}), "send after loss must fail")
}

func TestConnectLoginDenied(t *testing.T) {
	addr := scriptServer(t, func(conn net.Conn) {
		buf := make([]byte, protocol.MaxPacketSize)
		require.NoError(t, protocol.WritePacket(conn, protocol.ConnectSuccess{ID: 1}))
		_, err := protocol.ReadPacket(conn, buf)
		require.NoError(t, err)
		require.NoError(t, protocol.WritePacket(conn, protocol.LoginDeny{Reason: "Name already in use."}))
	})

	_, err := Connect(context.Background(), addr, "alice")
	var denied *LoginDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "Name already in use.", denied.Reason)
	assert.Contains(t, err.Error(), "Name already in use.")
}

func TestConnectRejectsBadGreeting(t *testing.T) {
	addr := scriptServer(t, func(conn net.Conn) {
		require.NoError(t, protocol.WritePacket(conn, protocol.Message{Client: 1, Text: "hi"}))
	})

	_, err := Connect(context.Background(), addr, "alice")
	require.ErrorIs(t, err, ErrProtocol)
}

func TestCloseExpiresSubscribers(t *testing.T) {
	addr := scriptServer(t, func(conn net.Conn) {
		buf := make([]byte, protocol.MaxPacketSize)
		require.NoError(t, protocol.WritePacket(conn, protocol.ConnectSuccess{ID: 1}))
		_, err := protocol.ReadPacket(conn, buf)
		require.NoError(t, err)
		require.NoError(t, protocol.WritePacket(conn, protocol.LoginAccept{}))

		// Hold the connection open until the client hangs up.
		_, _ = protocol.ReadPacket(conn, buf)
	})

	h, err := Connect(context.Background(), addr, "alice")
	require.NoError(t, err)

	in := bus.New[protocol.Packet](16)
	h.Subscribe(in)

	h.Close()
	h.Close() // idempotent

	select {
	case _, ok := <-in.C():
		assert.False(t, ok, "mailbox must be expired, not fed")
	case <-time.After(3 * time.Second):
		t.Fatal("mailbox never expired")
	}
	assert.False(t, h.Connected())
}
