package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/udisondev/reversi/internal/board"
	"github.com/udisondev/reversi/internal/bus"
	"github.com/udisondev/reversi/internal/client"
	"github.com/udisondev/reversi/internal/config"
	"github.com/udisondev/reversi/internal/protocol"
)

const ConfigPath = "config/client.yaml"

const usage = `commands:
  help                     show this help
  start                    connect using the configured server and name
  connect <addr> [name]    connect to a server
  list                     request the client list
  challenge <name|id>      request a game (or accept an incoming request)
  deny <name|id>           deny an incoming request
  place <x> <y>            place a piece (0-7, column row)
  pass                     pass the turn
  abandon                  abandon the current game
  board                    print the current board
  say <name|id> <text>     send a text message
  exit                     quit`

func main() {
	// The REPL owns stdout; keep slog quiet unless something is wrong.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	cfgPath := ConfigPath
	if p := os.Getenv("REVERSI_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadClient(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading config:", err)
		os.Exit(1)
	}

	sh := &shell{cfg: cfg}
	fmt.Println("reversi client. Type 'help' for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		if sh.dispatch(strings.Fields(scanner.Text())) {
			break
		}
	}
	sh.disconnect()
}

// shell is the REPL state: the connection, the cached client list and the
// current game, all guarded by one mutex because the event consumer and
// the prompt loop both touch them.
type shell struct {
	cfg config.Client

	mu      sync.Mutex
	h       *client.NetHandler
	peers   []protocol.ClientEntry
	game  *board.Board
	color board.Piece
	oppID protocol.ClientID
}

// dispatch runs one command line. Reports true on exit.
func (s *shell) dispatch(args []string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "help":
		fmt.Println(usage)
	case "start":
		addr := fmt.Sprintf("%s:%d", s.cfg.ServerIP, s.cfg.ServerPort)
		s.connect(addr, s.cfg.LoginName)
	case "connect":
		if len(args) < 2 {
			fmt.Println("usage: connect <addr> [name]")
			return false
		}
		name := s.cfg.LoginName
		if len(args) > 2 {
			name = args[2]
		}
		s.connect(args[1], name)
	case "list":
		s.send(protocol.RequestClientList{})
	case "challenge":
		if id, ok := s.resolve(args[1:]); ok {
			s.send(protocol.RequestGame{Opponent: id})
		}
	case "deny":
		if id, ok := s.resolve(args[1:]); ok {
			s.send(protocol.DenyGame{Opponent: id})
		}
	case "place":
		s.place(args[1:])
	case "pass":
		s.pass()
	case "abandon":
		s.abandon()
	case "board":
		s.printBoard()
	case "say":
		if len(args) < 3 {
			fmt.Println("usage: say <name|id> <text>")
			return false
		}
		if id, ok := s.resolve(args[1:2]); ok {
			s.send(protocol.Message{Client: id, Text: strings.Join(args[2:], " ")})
		}
	case "exit":
		return true
	default:
		fmt.Println("unknown command; try 'help'")
	}
	return false
}

func (s *shell) connect(addr, name string) {
	s.mu.Lock()
	connected := s.h != nil
	s.mu.Unlock()
	if connected {
		fmt.Println("already connected")
		return
	}
	if name == "" {
		fmt.Println("no login name; set login_name in config or use connect <addr> <name>")
		return
	}

	h, err := client.Connect(context.Background(), addr, name)
	if err != nil {
		fmt.Println("connect failed:", err)
		return
	}

	inbox := bus.New[protocol.Packet](64)
	h.Subscribe(inbox)

	s.mu.Lock()
	s.h = h
	s.mu.Unlock()

	go s.consume(inbox)
	fmt.Printf("connected as %q (id %d)\n", name, h.ID())
}

func (s *shell) disconnect() {
	s.mu.Lock()
	h := s.h
	s.h = nil
	s.game = nil
	s.mu.Unlock()
	if h != nil {
		h.Close()
	}
}

func (s *shell) send(p protocol.Packet) {
	s.mu.Lock()
	h := s.h
	s.mu.Unlock()
	if h == nil {
		fmt.Println("not connected")
		return
	}
	if !h.Send(p) {
		fmt.Println("send failed; connection lost?")
	}
}

// resolve turns a login name or a numeric id into a client id using the
// cached client list.
func (s *shell) resolve(args []string) (protocol.ClientID, bool) {
	if len(args) != 1 {
		fmt.Println("expected a client name or id")
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.peers {
		if e.Name == args[0] {
			return e.ID, true
		}
	}
	if n, err := strconv.ParseUint(args[0], 10, 64); err == nil {
		return protocol.ClientID(n), true
	}
	fmt.Printf("unknown client %q; try 'list'\n", args[0])
	return 0, false
}

func (s *shell) place(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: place <x> <y>")
		return
	}
	x, errX := strconv.ParseUint(args[0], 10, 8)
	y, errY := strconv.ParseUint(args[1], 10, 8)
	if errX != nil || errY != nil || x > 7 || y > 7 {
		fmt.Println("coordinates must be 0-7")
		return
	}

	s.mu.Lock()
	if s.game == nil {
		s.mu.Unlock()
		fmt.Println("no game in progress")
		return
	}
	pos := board.Pos{X: uint8(x), Y: uint8(y)}
	if !s.game.Place(pos, s.color) {
		s.mu.Unlock()
		fmt.Println("illegal move")
		return
	}
	opp := s.oppID
	s.mu.Unlock()

	s.send(protocol.PlacePiece{Opponent: opp, X: pos.X, Y: pos.Y})
	s.printBoard()
	s.checkGameOver()
}

func (s *shell) pass() {
	s.mu.Lock()
	if s.game == nil {
		s.mu.Unlock()
		fmt.Println("no game in progress")
		return
	}
	if s.game.Turn() != s.color {
		s.mu.Unlock()
		fmt.Println("not your turn")
		return
	}
	s.game.Pass()
	opp := s.oppID
	s.mu.Unlock()

	s.send(protocol.Pass{Opponent: opp})
}

func (s *shell) abandon() {
	s.mu.Lock()
	if s.game == nil {
		s.mu.Unlock()
		fmt.Println("no game in progress")
		return
	}
	opp := s.oppID
	s.game = nil
	s.mu.Unlock()

	s.send(protocol.AbandonGame{Opponent: opp})
	fmt.Println("game abandoned")
}

func (s *shell) printBoard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game == nil {
		fmt.Println("no game in progress")
		return
	}
	fmt.Print(s.game.String())
	white, black := s.game.Score()
	fmt.Printf("black %d, white %d, %s to move (you are %s)\n",
		black, white, s.game.Turn(), s.color)
}

// consume drains server packets and keeps the shell state current. It runs
// until the subscription expires.
func (s *shell) consume(inbox *bus.Mailbox[protocol.Packet]) {
	for p := range inbox.C() {
		switch v := p.(type) {
		case protocol.ClientList:
			s.mu.Lock()
			s.peers = v.Clients
			s.mu.Unlock()
			fmt.Println("\nclients online:")
			for _, e := range v.Clients {
				fmt.Printf("  %d  %s\n", e.ID, e.Name)
			}

		case protocol.RequestGame:
			fmt.Printf("\n%s challenges you. 'challenge %d' to accept, 'deny %d' to refuse.\n",
				s.peerName(v.Opponent), v.Opponent, v.Opponent)

		case protocol.DenyGame:
			fmt.Printf("\n%s is not available for a game\n", s.peerName(v.Opponent))

		case protocol.StartGame:
			s.mu.Lock()
			s.game = board.New()
			s.color = v.Color
			s.oppID = v.Opponent
			s.mu.Unlock()
			fmt.Printf("\ngame started against %s; you play %s\n", s.peerName(v.Opponent), v.Color)

		case protocol.PlacePiece:
			s.mu.Lock()
			if s.game != nil {
				s.game.Place(board.Pos{X: v.X, Y: v.Y}, s.color.Opposite())
			}
			s.mu.Unlock()
			fmt.Printf("\n%s plays %d %d\n", s.peerName(v.Opponent), v.X, v.Y)
			s.printBoard()
			s.checkGameOver()

		case protocol.Pass:
			s.mu.Lock()
			if s.game != nil && s.game.Turn() == s.color.Opposite() {
				s.game.Pass()
			}
			s.mu.Unlock()
			fmt.Printf("\n%s passes\n", s.peerName(v.Opponent))

		case protocol.AbandonGame:
			s.mu.Lock()
			s.game = nil
			s.mu.Unlock()
			fmt.Printf("\n%s abandoned the game\n", s.peerName(v.Opponent))

		case protocol.Message:
			fmt.Printf("\n%s: %s\n", s.peerName(v.Client), v.Text)

		case protocol.Disconnect:
			s.mu.Lock()
			s.h = nil
			s.game = nil
			s.mu.Unlock()
			fmt.Println("\nconnection to server lost")
			return
		}
	}
}

func (s *shell) checkGameOver() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game == nil {
		return
	}
	winner, decided := s.game.Winner()
	if !decided {
		return
	}
	white, black := s.game.Score()
	fmt.Printf("game over: %s wins (black %d, white %d)\n", winner, black, white)
	s.game = nil
}

func (s *shell) peerName(id protocol.ClientID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerNameLocked(id)
}

func (s *shell) peerNameLocked(id protocol.ClientID) string {
	for _, e := range s.peers {
		if e.ID == id {
			return e.Name
		}
	}
	return fmt.Sprintf("client %d", id)
}
