package monitor

import (
	"sync"

	"github.com/rmacdonaldsmith/hookwatch/pkg/monitor"
)

// Store is the session's event cache: the latest delivery per event key plus
// the set of keys already handed to the presenter.
//
// The two halves are independent: ResetView forgets what was
// rendered but keeps every cached payload, so details stay resolvable after
// the visible list is cleared.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	events   map[string]monitor.Event
	rendered map[string]struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		events:   make(map[string]monitor.Event),
		rendered: make(map[string]struct{}),
	}
}

// Put caches evt under its key, replacing any previous delivery, and reports
// whether the key had not been rendered yet. A true result marks it rendered.
func (s *Store) Put(evt monitor.Event) bool {
	key := evt.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[key] = evt
	if _, seen := s.rendered[key]; seen {
		return false
	}
	s.rendered[key] = struct{}{}
	return true
}

// Get returns the cached event for key.
func (s *Store) Get(key string) (monitor.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[key]
	return evt, ok
}

// ResetView clears the rendered set. Cached events are kept.
func (s *Store) ResetView() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rendered = make(map[string]struct{})
}

// Len returns the number of cached events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// RenderedLen returns the number of keys handed to the presenter since the last reset.
func (s *Store) RenderedLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rendered)
}
