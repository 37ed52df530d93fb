// Package bus provides the bounded FIFO mailbox used by every packet
// fan-out in the system. A subscriber registers a mailbox with a publisher;
// the publisher never blocks on it and never owns it.
//
// Expiry is explicit: a subscriber that is done calls Close, and publishers
// skip and compact closed mailboxes. Overflow policy: a mailbox that cannot
// take another element is closed by the publisher — a slow consumer is
// dropped rather than ever stalling a reader task. Tests fix this choice.
package bus

import "sync"

// Mailbox is a bounded FIFO channel between one publisher side and one
// consumer. Safe for concurrent Put from multiple publishers.
type Mailbox[T any] struct {
	ch chan T

	mu     sync.Mutex
	closed bool
}

// New creates a mailbox holding at most capacity elements.
func New[T any](capacity int) *Mailbox[T] {
	return &Mailbox[T]{ch: make(chan T, capacity)}
}

// Put appends v without blocking. It reports false if the mailbox is
// expired or full; a full mailbox is closed, so the consumer observes the
// drop as end-of-stream.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	select {
	case m.ch <- v:
		return true
	default:
		m.closed = true
		close(m.ch)
		return false
	}
}

// C returns the receive side. It is closed once the mailbox expires;
// consumers should range over it or check the second receive value.
func (m *Mailbox[T]) C() <-chan T {
	return m.ch
}

// Close expires the mailbox. Idempotent; pending elements remain readable.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.ch)
	}
}

// Closed reports whether the mailbox has expired.
func (m *Mailbox[T]) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
