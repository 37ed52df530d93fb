// Package client implements the networking core of a player client: the
// connect/login handshake, a background reader task and a subscribe bus
// mirroring the server's fan-out for the UI/CLI thread.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/reversi/internal/bus"
	"github.com/udisondev/reversi/internal/protocol"
	"github.com/udisondev/reversi/internal/remote"
)

const (
	// handshakeTimeout bounds dial and each handshake read.
	handshakeTimeout = 5 * time.Second

	// readPollInterval is the reader-task read timeout, so the reader can
	// observe a shutdown request promptly.
	readPollInterval = 500 * time.Millisecond
)

// ErrProtocol marks handshake replies the server must never send.
var ErrProtocol = errors.New("protocol violation")

// LoginDeniedError carries the server's reason for refusing a login name.
type LoginDeniedError struct {
	Reason string
}

func (e *LoginDeniedError) Error() string {
	return "login denied: " + e.Reason
}

// NetHandler is the client's connection core. It owns the single Remote,
// publishes every inbound packet to local subscribers and synthesizes a
// Disconnect when the server goes away.
type NetHandler struct {
	remote    *remote.Remote
	id        protocol.ClientID
	loginName string

	subMu sync.RWMutex
	subs  []*bus.Mailbox[protocol.Packet]

	running   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// Connect dials addr, performs the handshake (ConnectSuccess, then
// Login/LoginAccept) and starts the reader task. A denied login fails with
// *LoginDeniedError; unexpected replies fail with ErrProtocol.
func Connect(ctx context.Context, addr, name string) (*NetHandler, error) {
	dialer := net.Dialer{Timeout: handshakeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	r := remote.New(conn)
	r.SetReadTimeout(handshakeTimeout)
	r.SetWriteTimeout(handshakeTimeout)

	h, err := handshake(r, name)
	if err != nil {
		_ = r.Close()
		return nil, err
	}

	r.SetReadTimeout(readPollInterval)
	h.running.Store(true)
	go h.readLoop()

	slog.Info("connected", "address", addr, "id", h.id, "name", name)
	return h, nil
}

func handshake(r *remote.Remote, name string) (*NetHandler, error) {
	p, err := r.ReadPacket()
	if err != nil {
		return nil, fmt.Errorf("awaiting ConnectSuccess: %w", err)
	}
	hello, ok := p.(protocol.ConnectSuccess)
	if !ok {
		return nil, fmt.Errorf("%w: expected ConnectSuccess, got %T", ErrProtocol, p)
	}

	if err := r.WritePacket(protocol.Login{Name: name}); err != nil {
		return nil, fmt.Errorf("sending Login: %w", err)
	}

	p, err = r.ReadPacket()
	if err != nil {
		return nil, fmt.Errorf("awaiting login response: %w", err)
	}
	switch v := p.(type) {
	case protocol.LoginAccept:
	case protocol.LoginDeny:
		return nil, &LoginDeniedError{Reason: v.Reason}
	default:
		return nil, fmt.Errorf("%w: expected login response, got %T", ErrProtocol, p)
	}

	return &NetHandler{
		remote:    r,
		id:        hello.ID,
		loginName: name,
		done:      make(chan struct{}),
	}, nil
}

// readLoop publishes every decoded packet until shutdown or loss of the
// server, which is published as a synthesized Disconnect.
func (h *NetHandler) readLoop() {
	defer close(h.done)

	for {
		p, err := h.remote.ReadPacket()
		if err != nil {
			var nerr net.Error
			switch {
			case errors.As(err, &nerr) && nerr.Timeout():
				if !h.running.Load() {
					return
				}
				continue
			case errors.Is(err, protocol.ErrDecode):
				slog.Warn("dropping malformed packet", "err", err)
				continue
			default:
				if h.running.CompareAndSwap(true, false) {
					slog.Info("connection to server lost", "err", err)
					h.publish(protocol.Disconnect{})
				}
				return
			}
		}

		if !h.running.Load() {
			return
		}
		h.publish(p)
	}
}

func (h *NetHandler) publish(p protocol.Packet) {
	dead := false
	h.subMu.RLock()
	for _, mb := range h.subs {
		if !mb.Put(p) {
			dead = true
		}
	}
	h.subMu.RUnlock()

	if dead {
		h.compact()
	}
}

func (h *NetHandler) compact() {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	kept := h.subs[:0]
	for _, mb := range h.subs {
		if !mb.Closed() {
			kept = append(kept, mb)
		}
	}
	h.subs = kept
}

// Subscribe registers a mailbox for every inbound packet.
func (h *NetHandler) Subscribe(mb *bus.Mailbox[protocol.Packet]) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.subs = append(h.subs, mb)
}

// Send writes p to the server. Reports success.
func (h *NetHandler) Send(p protocol.Packet) bool {
	if !h.running.Load() {
		return false
	}
	if err := h.remote.WritePacket(p); err != nil {
		slog.Warn("send failed", "packet", p.Opcode(), "err", err)
		return false
	}
	return true
}

// ID returns the id the server assigned in ConnectSuccess.
func (h *NetHandler) ID() protocol.ClientID {
	return h.id
}

// LoginName returns the accepted login name.
func (h *NetHandler) LoginName() string {
	return h.loginName
}

// Connected reports whether the connection is still up.
func (h *NetHandler) Connected() bool {
	return h.running.Load()
}

// Close signals shutdown, joins the reader task and expires every
// subscriber mailbox. Idempotent.
func (h *NetHandler) Close() {
	h.closeOnce.Do(func() {
		h.running.Store(false)
		_ = h.remote.Close()
		<-h.done

		h.subMu.Lock()
		for _, mb := range h.subs {
			mb.Close()
		}
		h.subs = nil
		h.subMu.Unlock()
	})
}
