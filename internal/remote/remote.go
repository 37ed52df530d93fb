// Package remote wraps one TCP connection in a duplex framed-packet
// endpoint. The read and write halves are guarded by independent mutexes so
// a reader task can block in a read while senders keep going; a single lock
// would serialise unrelated directions.
package remote

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/udisondev/reversi/internal/protocol"
)

// halfCloser is the optional half-close surface of TCP connections.
type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// Remote is a thread-safe packet endpoint over a single net.Conn.
type Remote struct {
	conn net.Conn

	readMu       sync.Mutex
	readBuf      []byte
	readTimeout  time.Duration

	writeMu      sync.Mutex
	writeTimeout time.Duration
}

// New wraps conn. The Remote owns the connection from here on.
func New(conn net.Conn) *Remote {
	return &Remote{
		conn:    conn,
		readBuf: make([]byte, protocol.MaxPacketSize),
	}
}

// Addr returns the peer address.
func (r *Remote) Addr() net.Addr {
	return r.conn.RemoteAddr()
}

// SetReadTimeout sets the per-read deadline. Zero or negative disables it.
// Reader tasks use a short timeout so they can wake up and observe a
// shutdown request.
func (r *Remote) SetReadTimeout(d time.Duration) {
	r.readMu.Lock()
	defer r.readMu.Unlock()
	r.readTimeout = d
}

// SetWriteTimeout sets the per-write deadline. Zero or negative disables it.
func (r *Remote) SetWriteTimeout(d time.Duration) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.writeTimeout = d
}

// ReadPacket blocks the read half until a complete frame is decoded.
// Returns protocol.ErrClosed once the peer is gone; timeouts surface as
// net.Error with Timeout() == true so the caller can poll its running flag.
func (r *Remote) ReadPacket() (protocol.Packet, error) {
	r.readMu.Lock()
	defer r.readMu.Unlock()

	if r.readTimeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.readTimeout)); err != nil {
			return nil, fmt.Errorf("setting read deadline: %w", err)
		}
	} else {
		if err := r.conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, fmt.Errorf("clearing read deadline: %w", err)
		}
	}

	return protocol.ReadPacket(r.conn, r.readBuf)
}

// WritePacket serialises p and writes the frame while holding the write
// lock, so concurrent senders never interleave frames.
func (r *Remote) WritePacket(p protocol.Packet) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if r.writeTimeout > 0 {
		if err := r.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout)); err != nil {
			return fmt.Errorf("setting write deadline: %w", err)
		}
	}

	return protocol.WritePacket(r.conn, p)
}

// Shutdown closes the read half, then the write half, so an in-flight
// operation on the other direction is not disturbed. Connections without
// half-close support (net.Pipe in tests) are closed outright.
func (r *Remote) Shutdown() {
	if hc, ok := r.conn.(halfCloser); ok {
		_ = hc.CloseRead()
		_ = hc.CloseWrite()
		return
	}
	_ = r.conn.Close()
}

// Close tears the connection down entirely.
func (r *Remote) Close() error {
	return r.conn.Close()
}
