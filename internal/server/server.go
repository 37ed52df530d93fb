// Package server implements the match-making and relay server: the
// connection manager, the login registry, the match-maker and the per-game
// relays, glued together over one global packet feed.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/udisondev/reversi/internal/config"
)

// Option is a functional option for Server configuration.
type Option func(*Server)

// WithRecorder enables match-history recording.
func WithRecorder(rec MatchRecorder) Option {
	return func(s *Server) {
		s.recorder = rec
	}
}

// Server owns the listener and the lobby components.
type Server struct {
	cfg      config.Server
	recorder MatchRecorder

	nethandler *NetHandler
	registry   *Registry
	master     *Master
	matchmaker *Matchmaker

	listener net.Listener
	mu       sync.Mutex
}

// New assembles a server from config. The components subscribe to the
// global feed here; nothing runs until Run or Serve.
func New(cfg config.Server, opts ...Option) *Server {
	s := &Server{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.nethandler = NewNetHandler(cfg.MaxClients)
	s.registry = NewRegistry()
	s.master = NewMaster(s.nethandler, s.registry)
	s.matchmaker = NewMatchmaker(s.nethandler, s.registry, s.recorder)
	return s
}

// NetHandler exposes the connection manager (used by tests and tooling).
func (s *Server) NetHandler() *NetHandler {
	return s.nethandler
}

// Matchmaker exposes the match-maker (used by tests and tooling).
func (s *Server) Matchmaker() *Matchmaker {
	return s.matchmaker
}

// Addr returns the listen address, or nil before Run/Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the listener and stops accepting clients.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Run binds cfg.BindAddress:cfg.Port and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts clients on a ready listener. Used directly by tests with a
// 127.0.0.1:0 listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		s.master.Run(ctx)
	})
	wg.Go(func() {
		s.matchmaker.Run(ctx)
	})
	wg.Go(func() {
		slog.Info("server started", "address", ln.Addr(), "max_clients", s.cfg.MaxClients)
		s.nethandler.acceptLoop(ctx, &wg, ln)
	})

	wg.Wait()
	return nil
}
