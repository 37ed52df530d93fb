package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/udisondev/reversi/internal/bus"
	"github.com/udisondev/reversi/internal/protocol"
)

// pendingPair is one outstanding challenge, ordered: from has asked to play
// against to. Never (x, x).
type pendingPair struct {
	from, to protocol.ClientID
}

// Matchmaker turns mutual RequestGame packets into running matches. It
// consumes the global feed, keeps the pending-request set and the live
// relays, and cleans both up when a participant disappears.
type Matchmaker struct {
	nh       *NetHandler
	registry *Registry
	recorder MatchRecorder
	inbox    *bus.Mailbox[Event]

	mu      sync.Mutex
	pending map[pendingPair]struct{}
	games   map[*Relay]struct{}
}

// NewMatchmaker creates the match-maker and subscribes it to the global
// feed. recorder may be nil.
func NewMatchmaker(nh *NetHandler, registry *Registry, recorder MatchRecorder) *Matchmaker {
	mm := &Matchmaker{
		nh:       nh,
		registry: registry,
		recorder: recorder,
		inbox:    bus.New[Event](globalMailboxSize),
		pending:  make(map[pendingPair]struct{}),
		games:    make(map[*Relay]struct{}),
	}
	nh.SubscribeAll(mm.inbox)
	return mm
}

// Run consumes the global feed until ctx is cancelled or the feed ends.
// Events arrive in global-feed order, so a RequestGame followed by a
// DenyGame from the same client is seen in that order.
func (mm *Matchmaker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			mm.inbox.Close()
			return
		case ev, ok := <-mm.inbox.C():
			if !ok {
				return
			}
			mm.handle(ctx, ev)
		}
	}
}

func (mm *Matchmaker) handle(ctx context.Context, ev Event) {
	switch p := ev.Packet.(type) {
	case protocol.RequestGame:
		mm.handleRequest(ctx, ev.Client, p.Opponent)
	case protocol.DenyGame:
		mm.handleDeny(ev.Client, p.Opponent)
	case protocol.Disconnect:
		mm.handleDisconnect(ev.Client)
	}
}

// handleRequest walks the pair state machine for RequestGame(from -> to).
func (mm *Matchmaker) handleRequest(ctx context.Context, from, to protocol.ClientID) {
	if from == to {
		slog.Debug("self challenge ignored", "client", from)
		return
	}
	if !mm.registry.Has(from) {
		slog.Info("game request before login ignored", "client", from)
		return
	}
	if !mm.registry.Has(to) {
		// Target unknown or not logged in: turn the requester away
		// immediately, the same way a disconnect of the target would.
		slog.Debug("game request for unknown target", "from", from, "to", to)
		mm.nh.Send(from, protocol.DenyGame{Opponent: to})
		return
	}

	mm.mu.Lock()
	if _, dup := mm.pending[pendingPair{from: from, to: to}]; dup {
		mm.mu.Unlock()
		slog.Debug("duplicate game request ignored", "from", from, "to", to)
		return
	}
	if _, mutual := mm.pending[pendingPair{from: to, to: from}]; mutual {
		// Mutual accept: the pair is consumed and the earlier requester
		// plays Black.
		delete(mm.pending, pendingPair{from: to, to: from})
		mm.mu.Unlock()
		mm.startGame(ctx, to, from)
		return
	}
	mm.pending[pendingPair{from: from, to: to}] = struct{}{}
	mm.mu.Unlock()

	slog.Info("game requested", "from", from, "to", to)
	mm.nh.Send(to, protocol.RequestGame{Opponent: from})
}

// handleDeny removes the pending pair (to -> from) and informs the
// original requester. DenyGame for a pair that does not exist is dropped.
func (mm *Matchmaker) handleDeny(from, to protocol.ClientID) {
	mm.mu.Lock()
	_, ok := mm.pending[pendingPair{from: to, to: from}]
	if ok {
		delete(mm.pending, pendingPair{from: to, to: from})
	}
	mm.mu.Unlock()

	if !ok {
		slog.Debug("deny without pending request ignored", "from", from, "to", to)
		return
	}

	slog.Info("game request denied", "from", from, "to", to)
	mm.nh.Send(to, protocol.DenyGame{Opponent: from})
}

// handleDisconnect removes every pending pair mentioning the client and
// notifies the surviving endpoint of each removed pair.
func (mm *Matchmaker) handleDisconnect(id protocol.ClientID) {
	mm.mu.Lock()
	var notify []protocol.ClientID
	for p := range mm.pending {
		switch id {
		case p.from:
			delete(mm.pending, p)
			notify = append(notify, p.to)
		case p.to:
			delete(mm.pending, p)
			notify = append(notify, p.from)
		}
	}
	mm.mu.Unlock()

	for _, other := range notify {
		mm.nh.Send(other, protocol.DenyGame{Opponent: id})
	}
}

// startGame spins up a relay with the initial requester as Black.
func (mm *Matchmaker) startGame(ctx context.Context, blackID, whiteID protocol.ClientID) {
	g, err := StartRelay(ctx, mm.nh, mm.registry, blackID, whiteID, mm.recorder, mm.gameDone)
	if err != nil {
		slog.Warn("game could not start", "black", blackID, "white", whiteID, "err", err)
		return
	}

	mm.mu.Lock()
	mm.games[g] = struct{}{}
	mm.mu.Unlock()

	// The relay may have terminated before it was registered (a player
	// vanishing right away); don't leak the handle in that case.
	select {
	case <-g.Done():
		mm.gameDone(g)
	default:
	}
}

func (mm *Matchmaker) gameDone(g *Relay) {
	mm.mu.Lock()
	delete(mm.games, g)
	mm.mu.Unlock()
}

// PendingCount reports the number of outstanding challenges.
func (mm *Matchmaker) PendingCount() int {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return len(mm.pending)
}

// GameCount reports the number of live matches.
func (mm *Matchmaker) GameCount() int {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return len(mm.games)
}
