package report

import (
	"errors"
	"sync"
)

// ErrStale is returned when a response arrives after a newer request for
// the same slot was issued.
var ErrStale = errors.New("stale report response")

// Slot holds the current view of one report kind for one session.
// Every fetch takes a ticket; only the newest ticket may replace the view.
type Slot struct {
	mu       sync.Mutex
	issued   uint64
	inFlight int
	view     *View
}

// Begin issues a ticket for a new fetch.
func (s *Slot) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	s.inFlight++
	return s.issued
}

// Commit replaces the current view if ticket is still the newest.
// It must be called once per ticket, with a nil view on failure.
func (s *Slot) Commit(ticket uint64, v *View) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	if ticket != s.issued {
		return ErrStale
	}
	if v != nil {
		s.view = v
	}
	return nil
}

// Loading reports whether a fetch is outstanding.
func (s *Slot) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight > 0
}

// Current returns the last committed view, if any.
func (s *Slot) Current() (*View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view, s.view != nil
}

type slotKey struct {
	session string
	kind    string
}

// Slots keeps one Slot per (session, kind).
type Slots struct {
	mu    sync.Mutex
	slots map[slotKey]*Slot
}

// NewSlots returns an empty registry.
func NewSlots() *Slots {
	return &Slots{slots: make(map[slotKey]*Slot)}
}

// Get returns the slot for a session and kind, creating it on first use.
func (s *Slots) Get(sessionID, kind string) *Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := slotKey{session: sessionID, kind: kind}
	slot, ok := s.slots[k]
	if !ok {
		slot = &Slot{}
		s.slots[k] = slot
	}
	return slot
}

// Drop forgets every slot of a session.
func (s *Slots) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.slots {
		if k.session == sessionID {
			delete(s.slots, k)
		}
	}
}

// Len returns the number of live slots.
func (s *Slots) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}
