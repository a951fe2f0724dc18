package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rmacdonaldsmith/hookwatch/pkg/eventstore"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
  event_id        TEXT PRIMARY KEY,
  kind            TEXT NOT NULL,
  source          TEXT NOT NULL,
  namespace       TEXT NOT NULL DEFAULT '',
  correlation_id  TEXT NOT NULL DEFAULT '',
  parent_event_id TEXT NOT NULL DEFAULT '',
  received_at     TEXT NOT NULL,
  method          TEXT NOT NULL DEFAULT '',
  host            TEXT NOT NULL DEFAULT '',
  path            TEXT NOT NULL DEFAULT '',
  remote_addr     TEXT NOT NULL DEFAULT '',
  status_code     INTEGER,
  headers_json    TEXT NOT NULL DEFAULT '{}',
  body_raw        BLOB,
  body_sha256     TEXT NOT NULL DEFAULT '',
  json_parsed     TEXT NOT NULL DEFAULT '',
  verify_status   TEXT NOT NULL DEFAULT 'unknown',
  verify_reason   TEXT NOT NULL DEFAULT '',
  dedupe_key      TEXT UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_events_received_at ON events(received_at);
CREATE INDEX IF NOT EXISTS idx_events_source ON events(source);
`

const recordColumns = `event_id, kind, source, namespace, correlation_id, parent_event_id,
  received_at, method, host, path, remote_addr, status_code, headers_json, body_raw,
  body_sha256, json_parsed, verify_status, verify_reason, dedupe_key`

// SQLiteStore implements eventstore.Store on a SQLite file in WAL mode.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	lastErr error
	closed  bool
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("read journal mode: %w", err)
	}
	logger.Info("sqlite event store ready", "path", path, "journal_mode", journalMode)

	return &SQLiteStore{db: db, path: path, logger: logger}, nil
}

// Append inserts rec unless its dedupe key is already stored.
func (s *SQLiteStore) Append(ctx context.Context, rec *eventstore.Record) (bool, error) {
	if rec == nil {
		return false, eventstore.ErrNilRecord
	}
	if s.isClosed() {
		return false, eventstore.ErrClosed
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EventID, rec.Kind, rec.Source, rec.Namespace, rec.CorrelationID, rec.ParentEventID,
		rec.ReceivedAtText(), rec.Method, rec.Host, rec.Path, rec.RemoteAddr, nullableStatus(rec.StatusCode),
		rec.HeadersJSON, rec.BodyRaw, rec.BodySHA256, rec.JSONParsed, rec.VerifyStatus, rec.VerifyReason,
		nullableString(rec.DedupeKey),
	)
	if err != nil {
		s.recordErr(err)
		return false, fmt.Errorf("insert event: %w", err)
	}
	s.recordErr(nil)

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Latest returns up to limit records, newest first.
func (s *SQLiteStore) Latest(ctx context.Context, limit int) ([]*eventstore.Record, error) {
	if s.isClosed() {
		return nil, eventstore.ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM events ORDER BY received_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		s.recordErr(err)
		return nil, fmt.Errorf("query latest events: %w", err)
	}
	defer rows.Close()

	var records []*eventstore.Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
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
func (s *SQLiteStore) Get(ctx context.Context, eventID string) (*eventstore.Record, error) {
	if s.isClosed() {
		return nil, eventstore.ErrClosed
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM events WHERE event_id = ?`, eventID)
	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eventstore.ErrNotFound
	}
	if err != nil {
		s.recordErr(err)
		return nil, err
	}
	return rec, nil
}

// Stats groups the stored records by source, kind and namespace.
func (s *SQLiteStore) Stats(ctx context.Context) (eventstore.Stats, error) {
	if s.isClosed() {
		return eventstore.Stats{}, eventstore.ErrClosed
	}

	stats := eventstore.NewStats()
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM events`).Scan(&stats.EventsTotal); err != nil {
		s.recordErr(err)
		return eventstore.Stats{}, fmt.Errorf("count events: %w", err)
	}

	groups := []struct {
		column string
		into   map[string]int64
	}{
		{"source", stats.BySource},
		{"kind", stats.ByKind},
		{"namespace", stats.ByNamespace},
	}
	for _, g := range groups {
		if err := s.countBy(ctx, g.column, g.into); err != nil {
			return eventstore.Stats{}, err
		}
	}
	return stats, nil
}

func (s *SQLiteStore) countBy(ctx context.Context, column string, into map[string]int64) error {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %[1]s, count(*) FROM events WHERE %[1]s != '' GROUP BY %[1]s`, column))
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		into[key] = n
	}
	return rows.Err()
}

// Status pings the database and reports the last operation error, if any.
func (s *SQLiteStore) Status(ctx context.Context) eventstore.Status {
	status := eventstore.Status{Enabled: true, Backend: BackendSQLite}
	if s.isClosed() {
		status.Mode = eventstore.ModeDegraded
		status.Detail = "closed"
		return status
	}
	if err := s.db.PingContext(ctx); err != nil {
		status.Mode = eventstore.ModeDegraded
		status.Detail = err.Error()
		return status
	}

	status.Ready = true
	status.Mode = eventstore.ModeOK
	status.Detail = "path=" + s.path
	s.mu.Lock()
	if s.lastErr != nil {
		status.Detail = "last error: " + s.lastErr.Error()
	}
	s.mu.Unlock()
	return status
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *SQLiteStore) recordErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("sqlite event store error", "error", err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*eventstore.Record, error) {
	var (
		rec        eventstore.Record
		receivedAt string
		statusCode sql.NullInt64
		dedupeKey  sql.NullString
	)
	err := row.Scan(
		&rec.EventID, &rec.Kind, &rec.Source, &rec.Namespace, &rec.CorrelationID, &rec.ParentEventID,
		&receivedAt, &rec.Method, &rec.Host, &rec.Path, &rec.RemoteAddr, &statusCode,
		&rec.HeadersJSON, &rec.BodyRaw, &rec.BodySHA256, &rec.JSONParsed, &rec.VerifyStatus, &rec.VerifyReason,
		&dedupeKey,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}

	t, err := time.Parse(eventstore.TimeLayout, receivedAt)
	if err != nil {
		return nil, fmt.Errorf("parse received_at %q: %w", receivedAt, err)
	}
	rec.ReceivedAt = t
	rec.StatusCode = int(statusCode.Int64)
	rec.DedupeKey = dedupeKey.String
	return &rec, nil
}

func nullableStatus(code int) any {
	if code == 0 {
		return nil
	}
	return code
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
