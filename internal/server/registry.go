package server

import (
	"slices"
	"sync"

	"github.com/udisondev/reversi/internal/protocol"
)

// Registry maps logged-in clients to their login names. Names are pairwise
// distinct; the claim is atomic, so two clients racing for the same name
// can never both win.
type Registry struct {
	mu    sync.Mutex
	names map[protocol.ClientID]string
}

// NewRegistry returns an empty name registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[protocol.ClientID]string)}
}

// Claim registers name for id. It fails iff another client already holds
// the name. A client claiming a second name replaces its first.
func (r *Registry) Claim(id protocol.ClientID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for owner, taken := range r.names {
		if taken == name && owner != id {
			return false
		}
	}
	r.names[id] = name
	return true
}

// Remove forgets id's name, if any.
func (r *Registry) Remove(id protocol.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.names, id)
}

// Name returns the login name of id.
func (r *Registry) Name(id protocol.ClientID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.names[id]
	return name, ok
}

// ID returns the client currently holding name.
func (r *Registry) ID(name string) (protocol.ClientID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, n := range r.names {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// Has reports whether id has logged in.
func (r *Registry) Has(id protocol.ClientID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.names[id]
	return ok
}

// Entries returns the client list sorted by id, so the broadcast bytes are
// deterministic.
func (r *Registry) Entries() []protocol.ClientEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]protocol.ClientEntry, 0, len(r.names))
	for id, name := range r.names {
		entries = append(entries, protocol.ClientEntry{ID: id, Name: name})
	}
	slices.SortFunc(entries, func(a, b protocol.ClientEntry) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return entries
}
