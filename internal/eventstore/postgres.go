package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rmacdonaldsmith/hookwatch/pkg/eventstore"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS events (
  seq             BIGSERIAL,
  event_id        TEXT PRIMARY KEY,
  kind            TEXT NOT NULL,
  source          TEXT NOT NULL,
  namespace       TEXT NOT NULL DEFAULT '',
  correlation_id  TEXT NOT NULL DEFAULT '',
  parent_event_id TEXT NOT NULL DEFAULT '',
  received_at     TIMESTAMPTZ NOT NULL,
  method          TEXT NOT NULL DEFAULT '',
  host            TEXT NOT NULL DEFAULT '',
  path            TEXT NOT NULL DEFAULT '',
  remote_addr     TEXT NOT NULL DEFAULT '',
  status_code     INTEGER,
  headers_json    TEXT NOT NULL DEFAULT '{}',
  body_raw        BYTEA,
  body_sha256     TEXT NOT NULL DEFAULT '',
  json_parsed     TEXT NOT NULL DEFAULT '',
  verify_status   TEXT NOT NULL DEFAULT 'unknown',
  verify_reason   TEXT NOT NULL DEFAULT '',
  dedupe_key      TEXT UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_events_received_at ON events(received_at);
CREATE INDEX IF NOT EXISTS idx_events_source ON events(source);
`

// PostgresConfig configures the Postgres store.
type PostgresConfig struct {
	DSN      string
	MinConns int
	MaxConns int
}

// PostgresStore implements eventstore.Store on a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu      sync.Mutex
	lastErr error
	closed  bool
}

// OpenPostgres connects, pings and applies the schema.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("postgres event store ready", "host", poolCfg.ConnConfig.Host, "database", poolCfg.ConnConfig.Database)
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Append inserts rec unless its dedupe key is already stored.
func (s *PostgresStore) Append(ctx context.Context, rec *eventstore.Record) (bool, error) {
	if rec == nil {
		return false, eventstore.ErrNilRecord
	}
	if s.isClosed() {
		return false, eventstore.ErrClosed
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO events (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 ON CONFLICT DO NOTHING`,
		rec.EventID, rec.Kind, rec.Source, rec.Namespace, rec.CorrelationID, rec.ParentEventID,
		rec.ReceivedAt, rec.Method, rec.Host, rec.Path, rec.RemoteAddr, nullableStatus(rec.StatusCode),
		rec.HeadersJSON, rec.BodyRaw, rec.BodySHA256, rec.JSONParsed, rec.VerifyStatus, rec.VerifyReason,
		nullableString(rec.DedupeKey),
	)
	if err != nil {
		s.recordErr(err)
		return false, fmt.Errorf("insert event: %w", err)
	}
	s.recordErr(nil)
	return tag.RowsAffected() > 0, nil
}

// Latest returns up to limit records, newest first.
func (s *PostgresStore) Latest(ctx context.Context, limit int) ([]*eventstore.Record, error) {
	if s.isClosed() {
		return nil, eventstore.ErrClosed
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM events ORDER BY received_at DESC, seq DESC LIMIT $1`, limit)
	if err != nil {
		s.recordErr(err)
		return nil, fmt.Errorf("query latest events: %w", err)
	}
	defer rows.Close()

	var records []*eventstore.Record
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// Get returns the record with the given id.
func (s *PostgresStore) Get(ctx context.Context, eventID string) (*eventstore.Record, error) {
	if s.isClosed() {
		return nil, eventstore.ErrClosed
	}

	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM events WHERE event_id = $1`, eventID)
	rec, err := scanPostgresRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eventstore.ErrNotFound
	}
	if err != nil {
		s.recordErr(err)
		return nil, err
	}
	return rec, nil
}

// Stats groups the stored records by source, kind and namespace.
func (s *PostgresStore) Stats(ctx context.Context) (eventstore.Stats, error) {
	if s.isClosed() {
		return eventstore.Stats{}, eventstore.ErrClosed
	}

	stats := eventstore.NewStats()
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM events`).Scan(&stats.EventsTotal); err != nil {
		s.recordErr(err)
		return eventstore.Stats{}, fmt.Errorf("count events: %w", err)
	}

	for column, into := range map[string]map[string]int64{
		"source":    stats.BySource,
		"kind":      stats.ByKind,
		"namespace": stats.ByNamespace,
	} {
		rows, err := s.pool.Query(ctx,
			fmt.Sprintf(`SELECT %[1]s, count(*) FROM events WHERE %[1]s <> '' GROUP BY %[1]s`, column))
		if err != nil {
			return eventstore.Stats{}, fmt.Errorf("count by %s: %w", column, err)
		}
		for rows.Next() {
			var key string
			var n int64
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return eventstore.Stats{}, fmt.Errorf("scan %s count: %w", column, err)
			}
			into[key] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return eventstore.Stats{}, err
		}
	}
	return stats, nil
}

// Status pings the pool.
func (s *PostgresStore) Status(ctx context.Context) eventstore.Status {
	status := eventstore.Status{Enabled: true, Backend: BackendPostgres}
	if s.isClosed() {
		status.Mode = eventstore.ModeDegraded
		status.Detail = "closed"
		return status
	}
	if err := s.pool.Ping(ctx); err != nil {
		status.Mode = eventstore.ModeDegraded
		status.Detail = err.Error()
		return status
	}

	status.Ready = true
	status.Mode = eventstore.ModeOK
	poolStats := s.pool.Stat()
	status.Detail = fmt.Sprintf("conns=%d/%d", poolStats.AcquiredConns(), poolStats.MaxConns())
	s.mu.Lock()
	if s.lastErr != nil {
		status.Detail = "last error: " + s.lastErr.Error()
	}
	s.mu.Unlock()
	return status
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.pool.Close()
	return nil
}

func (s *PostgresStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *PostgresStore) recordErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("postgres event store error", "error", err)
	}
}

func scanPostgresRecord(row pgx.Row) (*eventstore.Record, error) {
	var (
		rec        eventstore.Record
		statusCode *int32
		dedupeKey  *string
	)
	err := row.Scan(
		&rec.EventID, &rec.Kind, &rec.Source, &rec.Namespace, &rec.CorrelationID, &rec.ParentEventID,
		&rec.ReceivedAt, &rec.Method, &rec.Host, &rec.Path, &rec.RemoteAddr, &statusCode,
		&rec.HeadersJSON, &rec.BodyRaw, &rec.BodySHA256, &rec.JSONParsed, &rec.VerifyStatus, &rec.VerifyReason,
		&dedupeKey,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}

	rec.ReceivedAt = rec.ReceivedAt.UTC()
	if statusCode != nil {
		rec.StatusCode = int(*statusCode)
	}
	if dedupeKey != nil {
		rec.DedupeKey = *dedupeKey
	}
	return &rec, nil
}
