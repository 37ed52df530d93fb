package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/udisondev/reversi/internal/board"
	"github.com/udisondev/reversi/internal/bus"
	"github.com/udisondev/reversi/internal/db"
	"github.com/udisondev/reversi/internal/protocol"
)

// gameMailboxSize bounds the per-participant inbox of a relay.
const gameMailboxSize = 64

// MatchRecorder persists finished matches. Implemented by
// db.MatchRepository; a nil recorder disables history.
type MatchRecorder interface {
	RecordMatch(ctx context.Context, m db.MatchResult) error
}

// participant is one side of a running match.
type participant struct {
	id   protocol.ClientID
	name string
	box  *bus.Mailbox[protocol.Packet]
}

// Relay owns one live match: the authoritative board, the two participants
// and the single task that drains both inboxes. It subscribes to exactly
// the two player connections and deregisters on termination so the
// connection manager can free resources.
type Relay struct {
	nh       *NetHandler
	b        *board.Board
	black    participant
	white    participant
	recorder MatchRecorder
	onDone   func(*Relay)
	started  time.Time
	done     chan struct{}
}

// StartRelay announces the match to both players and spawns the relay
// task. blackID is the initial requester by match-maker contract. onDone
// runs exactly once, after the relay has deregistered.
func StartRelay(
	ctx context.Context,
	nh *NetHandler,
	registry *Registry,
	blackID, whiteID protocol.ClientID,
	recorder MatchRecorder,
	onDone func(*Relay),
) (*Relay, error) {
	blackName, _ := registry.Name(blackID)
	whiteName, _ := registry.Name(whiteID)

	g := &Relay{
		nh:       nh,
		b:        board.New(),
		black:    participant{id: blackID, name: blackName, box: bus.New[protocol.Packet](gameMailboxSize)},
		white:    participant{id: whiteID, name: whiteName, box: bus.New[protocol.Packet](gameMailboxSize)},
		recorder: recorder,
		onDone:   onDone,
		started:  time.Now(),
		done:     make(chan struct{}),
	}

	if !nh.SubscribeTo(blackID, g.black.box) {
		return nil, fmt.Errorf("starting game: client %d is gone", blackID)
	}
	if !nh.SubscribeTo(whiteID, g.white.box) {
		g.black.box.Close()
		return nil, fmt.Errorf("starting game: client %d is gone", whiteID)
	}

	nh.Send(blackID, protocol.StartGame{Opponent: whiteID, Color: board.Black})
	nh.Send(whiteID, protocol.StartGame{Opponent: blackID, Color: board.White})

	slog.Info("game started",
		"black", blackID, "black_name", blackName,
		"white", whiteID, "white_name", whiteName)

	go g.run(ctx)
	return g, nil
}

// Done is closed once the relay has terminated.
func (g *Relay) Done() <-chan struct{} {
	return g.done
}

func (g *Relay) run(ctx context.Context) {
	defer close(g.done)

	for {
		select {
		case <-ctx.Done():
			g.finish("shutdown", nil)
			return
		case p, ok := <-g.black.box.C():
			if g.step(board.Black, p, ok) {
				return
			}
		case p, ok := <-g.white.box.C():
			if g.step(board.White, p, ok) {
				return
			}
		}
	}
}

// step handles one packet from the given side. Reports true when the match
// is over. Packets carrying the wrong opponent id and moves the
// authoritative board rejects are silently dropped; the sender's
// optimistic board is its own problem.
func (g *Relay) step(side board.Piece, p protocol.Packet, ok bool) bool {
	sender, opp := g.participants(side)

	if !ok {
		// Inbox expired: the peer record is gone, or this relay was
		// dropped as a slow consumer. Either way the match cannot go on.
		g.abandon(sender, opp, "disconnect")
		return true
	}

	switch v := p.(type) {
	case protocol.PlacePiece:
		if v.Opponent != opp.id {
			return false
		}
		if !g.b.Place(board.Pos{X: v.X, Y: v.Y}, side) {
			slog.Debug("illegal move dropped", "client", sender.id, "x", v.X, "y", v.Y)
			return false
		}
		g.nh.Send(opp.id, protocol.PlacePiece{Opponent: sender.id, X: v.X, Y: v.Y})
		if winner, decided := g.b.Winner(); decided {
			g.finish("finished", &winner)
			return true
		}
		return false

	case protocol.Pass:
		if v.Opponent != opp.id {
			return false
		}
		if g.b.Turn() != side {
			slog.Debug("pass out of turn dropped", "client", sender.id)
			return false
		}
		g.b.Pass()
		g.nh.Send(opp.id, protocol.Pass{Opponent: sender.id})
		return false

	case protocol.AbandonGame:
		if v.Opponent != opp.id {
			return false
		}
		g.abandon(sender, opp, "abandoned")
		return true

	case protocol.Disconnect:
		g.abandon(sender, opp, "disconnect")
		return true
	}

	// Lobby packets during a game are the master's business, not ours.
	return false
}

func (g *Relay) participants(side board.Piece) (sender, opp *participant) {
	if side == board.Black {
		return &g.black, &g.white
	}
	return &g.white, &g.black
}

// abandon ends the match on behalf of sender and tells the opponent.
func (g *Relay) abandon(sender, opp *participant, reason string) {
	g.nh.Send(opp.id, protocol.AbandonGame{Opponent: sender.id})
	g.finish(reason, nil)
}

// finish deregisters the subscriptions, records history and reports back
// to the match-maker. Runs once; the relay task exits right after.
func (g *Relay) finish(reason string, winner *board.Piece) {
	g.black.box.Close()
	g.white.box.Close()

	white, black := g.b.Score()
	logAttrs := []any{
		"black", g.black.id, "white", g.white.id,
		"reason", reason, "score_black", black, "score_white", white,
	}
	if winner != nil {
		logAttrs = append(logAttrs, "winner", winner.String())
	}
	slog.Info("game over", logAttrs...)

	if g.recorder != nil {
		result := db.MatchResult{
			BlackName:  g.black.name,
			WhiteName:  g.white.name,
			BlackScore: black,
			WhiteScore: white,
			Reason:     reason,
			StartedAt:  g.started,
			EndedAt:    time.Now(),
		}
		if winner != nil {
			result.Winner = winner.String()
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := g.recorder.RecordMatch(ctx, result); err != nil {
				slog.Error("recording match failed", "err", err)
			}
		}()
	}

	if g.onDone != nil {
		g.onDone(g)
	}
}
