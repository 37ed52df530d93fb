package server

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/udisondev/reversi/internal/bus"
	"github.com/udisondev/reversi/internal/protocol"
	"github.com/udisondev/reversi/internal/remote"
)

// NetClient is the per-connection record owned by the NetHandler. Its
// lifetime is the TCP session: it is created on accept and removed only
// after its reader task has exited.
type NetClient struct {
	id     protocol.ClientID
	remote *remote.Remote
	alive  atomic.Bool

	// subs are the mailboxes interested in this client's packets only.
	// Readers (the reader task) are frequent, writers (subscription,
	// compaction) are rare.
	subMu sync.RWMutex
	subs  []*bus.Mailbox[protocol.Packet]
}

func newNetClient(id protocol.ClientID, r *remote.Remote) *NetClient {
	c := &NetClient{id: id, remote: r}
	c.alive.Store(true)
	return c
}

// ID returns the client's allocated id.
func (c *NetClient) ID() protocol.ClientID {
	return c.id
}

// Alive reports whether the connection is still considered live.
func (c *NetClient) Alive() bool {
	return c.alive.Load()
}

// Send writes p to the peer. Reports success; failures are logged, not
// escalated — a dying connection is detected by its own reader task.
func (c *NetClient) Send(p protocol.Packet) bool {
	if !c.alive.Load() {
		return false
	}
	if err := c.remote.WritePacket(p); err != nil {
		slog.Warn("send failed", "client", c.id, "packet", p.Opcode(), "err", err)
		return false
	}
	return true
}

// Subscribe registers a mailbox for this client's packets only.
func (c *NetClient) Subscribe(mb *bus.Mailbox[protocol.Packet]) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs = append(c.subs, mb)
}

// publish fans p out to every subscriber of this client, in wire order.
// Expired mailboxes are skipped; overflowing subscribers are dropped by
// the mailbox itself. Dead entries are compacted afterwards.
func (c *NetClient) publish(p protocol.Packet) {
	dead := false
	c.subMu.RLock()
	for _, mb := range c.subs {
		if !mb.Put(p) {
			dead = true
		}
	}
	c.subMu.RUnlock()

	if dead {
		c.compact()
	}
}

func (c *NetClient) compact() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	kept := c.subs[:0]
	for _, mb := range c.subs {
		if !mb.Closed() {
			kept = append(kept, mb)
		}
	}
	c.subs = kept
}

// closeSubscriptions expires every subscriber mailbox; consumers observe
// end-of-stream after draining what was already delivered.
func (c *NetClient) closeSubscriptions() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, mb := range c.subs {
		mb.Close()
	}
	c.subs = nil
}
