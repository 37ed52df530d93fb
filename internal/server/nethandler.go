package server

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/udisondev/reversi/internal/bus"
	"github.com/udisondev/reversi/internal/protocol"
	"github.com/udisondev/reversi/internal/remote"
)

const (
	// readPollInterval is the reader-task read timeout. It bounds how
	// long shutdown can go unnoticed by a blocked reader.
	readPollInterval = 500 * time.Millisecond

	// defaultWriteTimeout caps a single packet write.
	defaultWriteTimeout = 5 * time.Second

	// globalMailboxSize is the default capacity for global-feed
	// subscribers (login registry, match-maker).
	globalMailboxSize = 256
)

// Event is one decoded packet attributed to the client it arrived from.
type Event struct {
	Client protocol.ClientID
	Packet protocol.Packet
}

// NetHandler is the connection manager: it accepts TCP clients, allocates
// stable client ids, runs one reader task per connection and fans every
// decoded packet out to subscribers. For a single client, packets reach any
// given subscriber in exact wire order; there is no cross-client order.
type NetHandler struct {
	mu      sync.RWMutex
	clients map[protocol.ClientID]*NetClient
	lastID  protocol.ClientID
	maxID   protocol.ClientID

	subMu sync.RWMutex
	subs  []*bus.Mailbox[Event]

	slots *semaphore.Weighted
}

// NewNetHandler creates a connection manager admitting at most maxClients
// concurrent connections.
func NewNetHandler(maxClients int) *NetHandler {
	if maxClients <= 0 {
		maxClients = 1
	}
	return &NetHandler{
		clients: make(map[protocol.ClientID]*NetClient, maxClients),
		maxID:   math.MaxUint64,
		slots:   semaphore.NewWeighted(int64(maxClients)),
	}
}

// allocateID finds a free id by linear search from the last issued one,
// wrapping through [1, maxID). 0 is reserved for the server; a freed id can
// only be reissued after the search wraps. Callers hold h.mu.
func (h *NetHandler) allocateID() (protocol.ClientID, bool) {
	// Search high first, it is the more probable range.
	for id := h.lastID + 1; id != 0 && id < h.maxID; id++ {
		if _, taken := h.clients[id]; !taken {
			return id, true
		}
	}
	// Wrap: old ids may be free again.
	for id := protocol.ClientID(1); id <= h.lastID && id < h.maxID; id++ {
		if _, taken := h.clients[id]; !taken {
			return id, true
		}
	}
	return 0, false
}

// acceptLoop admits connections until ctx is cancelled or the listener
// closes. Each accepted peer gets a connection slot, a fresh id, a
// ConnectSuccess greeting and its own reader task.
func (h *NetHandler) acceptLoop(ctx context.Context, wg *sync.WaitGroup, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			slog.Error("failed to accept new connection", "err", err)
			continue
		}

		if !h.slots.TryAcquire(1) {
			slog.Warn("connection limit reached, rejecting", "remote", conn.RemoteAddr())
			conn.Close()
			continue
		}

		client, ok := h.admit(conn)
		if !ok {
			h.slots.Release(1)
			conn.Close()
			continue
		}

		wg.Go(func() {
			defer h.slots.Release(1)
			h.readLoop(ctx, client)
		})
	}
}

// admit allocates an id, registers the record and greets the peer.
func (h *NetHandler) admit(conn net.Conn) (*NetClient, bool) {
	r := remote.New(conn)
	r.SetReadTimeout(readPollInterval)
	r.SetWriteTimeout(defaultWriteTimeout)

	h.mu.Lock()
	id, ok := h.allocateID()
	if !ok {
		h.mu.Unlock()
		slog.Error("no free client id, rejecting", "remote", conn.RemoteAddr())
		return nil, false
	}
	h.lastID = id
	client := newNetClient(id, r)
	h.clients[id] = client
	h.mu.Unlock()

	slog.Info("client connected", "client", id, "remote", conn.RemoteAddr())

	if !client.Send(protocol.ConnectSuccess{ID: id}) {
		h.drop(client)
		return nil, false
	}
	return client, true
}

// readLoop is the per-client reader task. Decoded packets go to the
// client's own subscribers first, then to the global feed. When the peer
// vanishes a Disconnect packet is synthesized and published identically,
// after which the record is removed.
func (h *NetHandler) readLoop(ctx context.Context, c *NetClient) {
	defer h.drop(c)

	for {
		p, err := c.remote.ReadPacket()
		if err != nil {
			var nerr net.Error
			switch {
			case errors.As(err, &nerr) && nerr.Timeout():
				// Poll point: observe shutdown, otherwise keep reading.
				if ctx.Err() != nil || !c.alive.Load() {
					return
				}
				continue
			case errors.Is(err, protocol.ErrDecode):
				slog.Warn("dropping malformed packet", "client", c.id, "err", err)
				continue
			case errors.Is(err, protocol.ErrClosed):
				slog.Info("client disconnected", "client", c.id)
				return
			default:
				if ctx.Err() != nil {
					return
				}
				slog.Warn("transport error, dropping client", "client", c.id, "err", err)
				return
			}
		}

		if ctx.Err() != nil {
			return
		}

		c.publish(p)
		h.publish(Event{Client: c.id, Packet: p})
	}
}

// drop publishes the synthesized Disconnect, removes the record and expires
// the client's subscriptions. Safe to call once per client only; callers
// guarantee the reader task has exited or never started.
func (h *NetHandler) drop(c *NetClient) {
	if !c.alive.CompareAndSwap(true, false) {
		return
	}

	c.publish(protocol.Disconnect{})
	h.publish(Event{Client: c.id, Packet: protocol.Disconnect{}})

	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.closeSubscriptions()
	_ = c.remote.Close()
}

// publish fans ev out to every global subscriber, compacting dead entries.
func (h *NetHandler) publish(ev Event) {
	dead := false
	h.subMu.RLock()
	for _, mb := range h.subs {
		if !mb.Put(ev) {
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

// SubscribeAll registers a mailbox for every (client, packet) event.
func (h *NetHandler) SubscribeAll(mb *bus.Mailbox[Event]) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.subs = append(h.subs, mb)
}

// SubscribeTo registers a mailbox for one client's packets. Reports false
// if the client is gone.
func (h *NetHandler) SubscribeTo(id protocol.ClientID, mb *bus.Mailbox[protocol.Packet]) bool {
	c, ok := h.Client(id)
	if !ok {
		return false
	}
	c.Subscribe(mb)
	return true
}

// Client looks up a live client record.
func (h *NetHandler) Client(id protocol.ClientID) (*NetClient, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// Send delivers p to one client. Reports false for unknown ids and failed
// writes.
func (h *NetHandler) Send(id protocol.ClientID, p protocol.Packet) bool {
	c, ok := h.Client(id)
	if !ok {
		slog.Debug("send to unknown client", "client", id, "packet", p.Opcode())
		return false
	}
	return c.Send(p)
}

// Broadcast delivers p to every live client, fire-and-forget. Reports
// whether every send succeeded.
func (h *NetHandler) Broadcast(p protocol.Packet) bool {
	h.mu.RLock()
	clients := make([]*NetClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	allOK := true
	for _, c := range clients {
		if !c.Send(p) {
			allOK = false
		}
	}
	return allOK
}

// Count returns the number of live connections.
func (h *NetHandler) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
