package eventstore

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/hookwatch/pkg/eventstore"
)

func newRecord(source, body string, at time.Time) *eventstore.Record {
	rec := eventstore.NewRecord(eventstore.Inbound{
		Source:  source,
		Method:  http.MethodPost,
		Host:    "gateway.local",
		Path:    "/webhooks/" + source,
		Headers: http.Header{"Content-Type": {"application/json"}},
		Body:    []byte(body),
	})
	rec.ReceivedAt = at
	return rec
}

// storeFactories lists the backends that run without external services.
func storeFactories() map[string]func(t *testing.T) eventstore.Store {
	return map[string]func(t *testing.T) eventstore.Store{
		"memory": func(t *testing.T) eventstore.Store { return NewInMemoryStore(10) },
		"sqlite": func(t *testing.T) eventstore.Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "events.db"), nil)
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_Conformance(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			t.Run("append_and_get", func(t *testing.T) {
				store := factory(t)
				defer store.Close()

				rec := newRecord("github", `{"action":"opened"}`, base)
				inserted, err := store.Append(ctx, rec)
				require.NoError(t, err)
				assert.True(t, inserted)

				got, err := store.Get(ctx, rec.EventID)
				require.NoError(t, err)
				assert.Equal(t, rec.EventID, got.EventID)
				assert.Equal(t, "github", got.Source)
				assert.Equal(t, eventstore.KindInboundHTTP, got.Kind)
				assert.Equal(t, `{"action":"opened"}`, string(got.BodyRaw))
				assert.Equal(t, `{"action":"opened"}`, got.JSONParsed)
				assert.Equal(t, `{"content-type":"application/json"}`, got.HeadersJSON)
				assert.Equal(t, rec.DedupeKey, got.DedupeKey)
				assert.True(t, base.Equal(got.ReceivedAt), "received_at %v", got.ReceivedAt)
			})

			t.Run("get_missing", func(t *testing.T) {
				store := factory(t)
				defer store.Close()

				_, err := store.Get(ctx, "does-not-exist")
				assert.ErrorIs(t, err, eventstore.ErrNotFound)
			})

			t.Run("duplicate_body_is_ignored", func(t *testing.T) {
				store := factory(t)
				defer store.Close()

				first := newRecord("stripe", `{"id":"evt_1"}`, base)
				second := newRecord("stripe", `{"id":"evt_1"}`, base.Add(time.Second))
				require.Equal(t, first.DedupeKey, second.DedupeKey)

				inserted, err := store.Append(ctx, first)
				require.NoError(t, err)
				assert.True(t, inserted)

				inserted, err = store.Append(ctx, second)
				require.NoError(t, err)
				assert.False(t, inserted)

				latest, err := store.Latest(ctx, 10)
				require.NoError(t, err)
				assert.Len(t, latest, 1)
			})

			t.Run("latest_newest_first", func(t *testing.T) {
				store := factory(t)
				defer store.Close()

				var ids []string
				for i := 0; i < 5; i++ {
					rec := newRecord("github", fmt.Sprintf(`{"n":%d}`, i), base.Add(time.Duration(i)*time.Second))
					_, err := store.Append(ctx, rec)
					require.NoError(t, err)
					ids = append(ids, rec.EventID)
				}

				latest, err := store.Latest(ctx, 3)
				require.NoError(t, err)
				require.Len(t, latest, 3)
				assert.Equal(t, ids[4], latest[0].EventID)
				assert.Equal(t, ids[3], latest[1].EventID)
				assert.Equal(t, ids[2], latest[2].EventID)
			})

			t.Run("stats", func(t *testing.T) {
				store := factory(t)
				defer store.Close()

				for i, source := range []string{"github", "github", "stripe"} {
					_, err := store.Append(ctx, newRecord(source, fmt.Sprintf(`{"n":%d}`, i), base))
					require.NoError(t, err)
				}

				stats, err := store.Stats(ctx)
				require.NoError(t, err)
				assert.Equal(t, int64(3), stats.EventsTotal)
				assert.Equal(t, map[string]int64{"github": 2, "stripe": 1}, stats.BySource)
				assert.Equal(t, map[string]int64{eventstore.KindInboundHTTP: 3}, stats.ByKind)
				assert.Empty(t, stats.ByNamespace)
			})

			t.Run("status_and_close", func(t *testing.T) {
				store := factory(t)

				status := store.Status(ctx)
				assert.True(t, status.Ready)
				assert.Equal(t, eventstore.ModeOK, status.Mode)
				assert.Equal(t, name, status.Backend)

				require.NoError(t, store.Close())
				assert.False(t, store.Status(ctx).Ready)

				_, err := store.Append(ctx, newRecord("github", `{}`, base))
				assert.ErrorIs(t, err, eventstore.ErrClosed)
			})

			t.Run("nil_record", func(t *testing.T) {
				store := factory(t)
				defer store.Close()

				_, err := store.Append(ctx, nil)
				assert.ErrorIs(t, err, eventstore.ErrNilRecord)
			})
		})
	}
}

func TestInMemoryStore_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(3)
	defer store.Close()

	base := time.Now().UTC()
	var first *eventstore.Record
	for i := 0; i < 5; i++ {
		rec := newRecord("github", fmt.Sprintf(`{"n":%d}`, i), base.Add(time.Duration(i)*time.Millisecond))
		if i == 0 {
			first = rec
		}
		_, err := store.Append(ctx, rec)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, store.Len())
	_, err := store.Get(ctx, first.EventID)
	assert.ErrorIs(t, err, eventstore.ErrNotFound)

	// An evicted body is accepted again.
	inserted, err := store.Append(ctx, newRecord("github", `{"n":0}`, base))
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(0)
	defer store.Close()

	rec := newRecord("github", `{"a":1}`, time.Now())
	_, err := store.Append(ctx, rec)
	require.NoError(t, err)

	got, err := store.Get(ctx, rec.EventID)
	require.NoError(t, err)
	got.BodyRaw[0] = 'X'

	again, err := store.Get(ctx, rec.EventID)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(again.BodyRaw))
}

func TestInMemoryStore_CancelledContext(t *testing.T) {
	store := NewInMemoryStore(0)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Append(ctx, newRecord("github", `{}`, time.Now()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("default_is_memory", func(t *testing.T) {
		store, err := Open(ctx, Config{}, nil)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryStore{}, store)
	})

	t.Run("sqlite", func(t *testing.T) {
		store, err := Open(ctx, Config{Backend: BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "nested", "x.db")}, nil)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &SQLiteStore{}, store)
	})

	t.Run("postgres_requires_dsn", func(t *testing.T) {
		_, err := Open(ctx, Config{Backend: BackendPostgres}, nil)
		assert.ErrorContains(t, err, "postgres_dsn")
	})

	t.Run("unknown_backend", func(t *testing.T) {
		_, err := Open(ctx, Config{Backend: "redis"}, nil)
		assert.ErrorContains(t, err, "unknown store backend")
	})
}
