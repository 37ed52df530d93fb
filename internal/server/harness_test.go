package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/reversi/internal/config"
	"github.com/udisondev/reversi/internal/protocol"
	"github.com/udisondev/reversi/internal/remote"
)

// startServer runs a full server on a loopback listener and tears it down
// with the test.
func startServer(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	return startServerWith(t, config.DefaultServer(), opts...)
}

func startServerWith(t *testing.T, cfg config.Server, opts ...Option) (*Server, string) {
	t.Helper()

	s := New(cfg, opts...)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, ln.Addr().String()
}

// testConn is a raw protocol-level client for driving the server from
// tests, below the real client package.
type testConn struct {
	t  *testing.T
	r  *remote.Remote
	id protocol.ClientID
}

// dialServer connects and consumes the ConnectSuccess greeting.
func dialServer(t *testing.T, addr string) *testConn {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	r := remote.New(conn)
	r.SetReadTimeout(2 * time.Second)
	r.SetWriteTimeout(2 * time.Second)
	t.Cleanup(func() { _ = r.Close() })

	p, err := r.ReadPacket()
	require.NoError(t, err)
	hello, ok := p.(protocol.ConnectSuccess)
	require.True(t, ok, "expected ConnectSuccess, got %T", p)
	require.NotZero(t, hello.ID)

	return &testConn{t: t, r: r, id: hello.ID}
}

func (c *testConn) send(p protocol.Packet) {
	c.t.Helper()
	require.NoError(c.t, c.r.WritePacket(p))
}

// login claims name and waits for the accept, skipping unrelated traffic
// such as client-list broadcasts from earlier logins.
func (c *testConn) login(name string) {
	c.t.Helper()
	c.send(protocol.Login{Name: name})
	waitFor[protocol.LoginAccept](c)
}

func (c *testConn) close() {
	_ = c.r.Close()
}

// expectSilence asserts that nothing arrives within a short window.
func (c *testConn) expectSilence() {
	c.t.Helper()
	c.r.SetReadTimeout(200 * time.Millisecond)
	defer c.r.SetReadTimeout(2 * time.Second)

	p, err := c.r.ReadPacket()
	if err == nil {
		c.t.Fatalf("unexpected packet %T: %+v", p, p)
	}
	var nerr net.Error
	require.ErrorAs(c.t, err, &nerr)
	require.True(c.t, nerr.Timeout(), "read failed with %v, want timeout", err)
}

// waitFor reads packets until one of type T shows up, skipping everything
// else. Read timeouts fail the test.
func waitFor[T protocol.Packet](c *testConn) T {
	c.t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		p, err := c.r.ReadPacket()
		require.NoError(c.t, err)
		if v, ok := p.(T); ok {
			return v
		}
	}

	var zero T
	c.t.Fatalf("timed out waiting for %T", zero)
	return zero
}

// waitForList reads client-list broadcasts until one with exactly the given
// names arrives, in registry order.
func waitForList(c *testConn, names ...string) protocol.ClientList {
	c.t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		list := waitFor[protocol.ClientList](c)
		if len(list.Clients) != len(names) {
			continue
		}
		match := true
		for i, e := range list.Clients {
			if e.Name != names[i] {
				match = false
				break
			}
		}
		if match {
			return list
		}
	}

	c.t.Fatalf("timed out waiting for client list %v", names)
	return protocol.ClientList{}
}
