package eventstore

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned by Get when no record has the requested id.
	ErrNotFound = errors.New("event not found")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("event store closed")
	// ErrNilRecord is returned when a nil record is appended.
	ErrNilRecord = errors.New("record cannot be nil")
)

// Status modes.
const (
	ModeOK       = "ok"
	ModeDegraded = "degraded"
	ModeDisabled = "disabled"
	ModeError    = "error"
)

// Status reports whether persistence is currently available.
type Status struct {
	Ready   bool   `json:"-"`
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode"`
	Backend string `json:"backend"`
	Detail  string `json:"detail,omitempty"`
}

// Stats summarises the stored records.
type Stats struct {
	EventsTotal int64            `json:"events_total"`
	BySource    map[string]int64 `json:"by_source"`
	ByKind      map[string]int64 `json:"by_kind"`
	ByNamespace map[string]int64 `json:"by_namespace"`
}

// NewStats returns an empty summary with non-nil maps.
func NewStats() Stats {
	return Stats{
		BySource:    make(map[string]int64),
		ByKind:      make(map[string]int64),
		ByNamespace: make(map[string]int64),
	}
}

// Store is append-only storage for inbound deliveries.
type Store interface {
	// Append stores rec. It reports false, with no error, when a record with
	// the same DedupeKey already exists.
	Append(ctx context.Context, rec *Record) (bool, error)

	// Latest returns up to limit records, newest first.
	Latest(ctx context.Context, limit int) ([]*Record, error)

	// Get returns the record with the given event id or ErrNotFound.
	Get(ctx context.Context, eventID string) (*Record, error)

	// Stats returns totals grouped by source, kind and namespace. Empty
	// group keys are left out.
	Stats(ctx context.Context) (Stats, error)

	// Status never fails; an unreachable backend is reported as not ready.
	Status(ctx context.Context) Status

	io.Closer
}
