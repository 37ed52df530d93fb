package server

import (
	"context"
	"log/slog"

	"github.com/udisondev/reversi/internal/bus"
	"github.com/udisondev/reversi/internal/protocol"
)

// loginDenyReason is the exact reason string sent when a name is taken.
const loginDenyReason = "Name already in use."

// Master is the login registry and lobby dispatcher. It consumes the global
// feed and handles everything clients do while not in a game: logging in,
// listing peers and exchanging messages.
type Master struct {
	nh       *NetHandler
	registry *Registry
	inbox    *bus.Mailbox[Event]
}

// NewMaster creates the master and subscribes it to the global feed.
func NewMaster(nh *NetHandler, registry *Registry) *Master {
	m := &Master{
		nh:       nh,
		registry: registry,
		inbox:    bus.New[Event](globalMailboxSize),
	}
	nh.SubscribeAll(m.inbox)
	return m
}

// Run consumes the global feed until ctx is cancelled or the feed ends.
func (m *Master) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.inbox.Close()
			return
		case ev, ok := <-m.inbox.C():
			if !ok {
				return
			}
			m.handle(ev)
		}
	}
}

func (m *Master) handle(ev Event) {
	switch p := ev.Packet.(type) {
	case protocol.Login:
		m.handleLogin(ev.Client, p.Name)
	case protocol.Disconnect:
		m.handleDisconnect(ev.Client)
	case protocol.RequestClientList:
		m.nh.Send(ev.Client, protocol.ClientList{Clients: m.registry.Entries()})
	case protocol.Message:
		m.handleMessage(ev.Client, p.Client, p.Text)
	}
}

// handleLogin accepts the claim iff the name is free. Denial leaves the
// connection open so the client can retry with a different name.
func (m *Master) handleLogin(client protocol.ClientID, name string) {
	if !m.registry.Claim(client, name) {
		slog.Info("login denied, name taken", "client", client, "name", name)
		m.nh.Send(client, protocol.LoginDeny{Reason: loginDenyReason})
		return
	}

	if !m.nh.Send(client, protocol.LoginAccept{}) {
		// The accept never reached the peer; roll the claim back so the
		// name is not held by a corpse.
		m.registry.Remove(client)
		slog.Warn("login accept could not be sent", "client", client, "name", name)
		return
	}

	slog.Info("client logged in", "client", client, "name", name)
	m.broadcastClientList()
}

func (m *Master) handleDisconnect(client protocol.ClientID) {
	if name, ok := m.registry.Name(client); ok {
		slog.Info("named client disconnected", "client", client, "name", name)
	} else {
		slog.Info("unnamed client disconnected", "client", client)
		return
	}

	m.registry.Remove(client)
	m.broadcastClientList()
}

// handleMessage relays text from one client to another, stamping the
// sender's id. No filtering here; spam policy belongs to a collaborator.
func (m *Master) handleMessage(from, to protocol.ClientID, text string) {
	if !m.nh.Send(to, protocol.Message{Client: from, Text: text}) {
		slog.Debug("message to unreachable client", "from", from, "to", to)
	}
}

// broadcastClientList pushes the current list to everyone, so clients
// always hold the up-to-date state without asking.
func (m *Master) broadcastClientList() {
	m.nh.Broadcast(protocol.ClientList{Clients: m.registry.Entries()})
}
