package eventstore

import (
	"context"
	"sync"

	"github.com/rmacdonaldsmith/hookwatch/pkg/eventstore"
)

// DefaultMemoryCapacity is the number of records the in-memory store keeps.
const DefaultMemoryCapacity = 200

// InMemoryStore implements eventstore.Store with a bounded, oldest-evicted
// buffer. It is safe for concurrent use.
type InMemoryStore struct {
	mu       sync.RWMutex
	capacity int
	records  []*eventstore.Record          // oldest first
	byID     map[string]*eventstore.Record // event id -> record
	dedupe   map[string]struct{}           // dedupe keys of records still held
	closed   bool
}

// NewInMemoryStore creates a store holding at most capacity records.
// A capacity of zero or less uses DefaultMemoryCapacity.
func NewInMemoryStore(capacity int) *InMemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &InMemoryStore{
		capacity: capacity,
		records:  make([]*eventstore.Record, 0, capacity),
		byID:     make(map[string]*eventstore.Record),
		dedupe:   make(map[string]struct{}),
	}
}

// Append stores a copy of rec, evicting the oldest record when full.
func (s *InMemoryStore) Append(ctx context.Context, rec *eventstore.Record) (bool, error) {
	if rec == nil {
		return false, eventstore.ErrNilRecord
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, eventstore.ErrClosed
	}
	if rec.DedupeKey != "" {
		if _, dup := s.dedupe[rec.DedupeKey]; dup {
			return false, nil
		}
	}

	if len(s.records) >= s.capacity {
		oldest := s.records[0]
		s.records = s.records[1:]
		delete(s.byID, oldest.EventID)
		delete(s.dedupe, oldest.DedupeKey)
	}

	stored := rec.Copy()
	s.records = append(s.records, stored)
	s.byID[stored.EventID] = stored
	if stored.DedupeKey != "" {
		s.dedupe[stored.DedupeKey] = struct{}{}
	}
	return true, nil
}

// Latest returns up to limit records, newest first.
func (s *InMemoryStore) Latest(ctx context.Context, limit int) ([]*eventstore.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, eventstore.ErrClosed
	}
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}

	results := make([]*eventstore.Record, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(results) < limit; i-- {
		results = append(results, s.records[i].Copy())
	}
	return results, nil
}

// Get returns the record with the given id.
func (s *InMemoryStore) Get(ctx context.Context, eventID string) (*eventstore.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, eventstore.ErrClosed
	}
	rec, ok := s.byID[eventID]
	if !ok {
		return nil, eventstore.ErrNotFound
	}
	return rec.Copy(), nil
}

// Stats counts the records currently held.
func (s *InMemoryStore) Stats(ctx context.Context) (eventstore.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return eventstore.Stats{}, eventstore.ErrClosed
	}

	stats := eventstore.NewStats()
	for _, rec := range s.records {
		stats.EventsTotal++
		if rec.Source != "" {
			stats.BySource[rec.Source]++
		}
		if rec.Kind != "" {
			stats.ByKind[rec.Kind]++
		}
		if rec.Namespace != "" {
			stats.ByNamespace[rec.Namespace]++
		}
	}
	return stats, nil
}

// Status reports the store as ready until it is closed.
func (s *InMemoryStore) Status(ctx context.Context) eventstore.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return eventstore.Status{Enabled: true, Mode: eventstore.ModeDegraded, Backend: BackendMemory, Detail: "closed"}
	}
	return eventstore.Status{Ready: true, Enabled: true, Mode: eventstore.ModeOK, Backend: BackendMemory}
}

// Len returns the number of records held.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close releases the records. Further calls fail with eventstore.ErrClosed.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.records = nil
	s.byID = nil
	s.dedupe = nil
	return nil
}
