// Package session carries sign-in and sign-out notifications to the
// components whose state is scoped to one authenticated session.
package session

import (
	"sync"

	"github.com/marginkit/challenge-go/internal/model"
)

// Kind tags an Event.
type Kind int

const (
	SignedOut Kind = iota
	SignedIn
)

func (k Kind) String() string {
	if k == SignedIn {
		return "signed_in"
	}
	return "signed_out"
}

// Event is a session change. SessionID, UserID and Profile are set only for
// SignedIn; a SignedOut event carries the UserID it ends, when known.
// Seq is assigned by Publish and increases with every event.
type Event struct {
	Seq       uint64
	Kind      Kind
	SessionID string
	UserID    string
	Profile   model.Profile
}

// Hub fans session events out to subscribers. New subscribers receive the
// latest event first. A subscriber that falls behind only keeps the newest
// undelivered event.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	seq    uint64
	latest *Event
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription is a cancellable stream of session events.
type Subscription struct {
	hub  *Hub
	ch   chan Event
	once sync.Once
}

// Events is closed after Cancel.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Cancel stops delivery and closes the Events channel. Safe to call twice.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{hub: h, ch: make(chan Event, 1)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
	if h.latest != nil {
		s.ch <- *h.latest
	}
	return s
}

// Publish stamps ev with the next sequence number and delivers it to every
// subscriber without blocking.
func (h *Hub) Publish(ev Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	ev.Seq = h.seq
	h.latest = &ev
	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			// Replace the undelivered event with the newer one.
			select {
			case <-s.ch:
			default:
			}
			s.ch <- ev
		}
	}
	return ev
}

// Latest returns the most recently published event.
func (h *Hub) Latest() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return Event{}, false
	}
	return *h.latest, true
}
