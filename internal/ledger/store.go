package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"aggregator/internal/logger"
	pkgerrors "aggregator/pkg/errors"
	"aggregator/pkg/models"
)

// processedAtLayout is fixed-width so stored instants sort lexicographically.
const processedAtLayout = "2006-01-02T15:04:05.000000000Z"

// Store is the durable deduplication ledger. Admission is arbitrated solely
// by the UNIQUE(topic, event_id) constraint inside the storage engine; there
// is deliberately no exists-then-insert path anywhere in this package.
type Store struct {
	db     *sql.DB
	logger logger.Logger

	mu     sync.Mutex
	lastTS time.Time
}

// Open opens (creating if needed) the ledger database at path. ":memory:" is
// supported for tests. The schema is bootstrapped on every open so a fresh
// file is immediately usable.
func Open(path string, log logger.Logger) (*Store, error) {
	if path == "" {
		return nil, pkgerrors.ErrStorage.WithDetail("message", "ledger path is required")
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, pkgerrors.ErrStorage.WithCause(fmt.Errorf("create ledger directory: %w", err))
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.ErrStorage.WithCause(fmt.Errorf("open ledger database: %w", err))
	}

	// A single connection keeps the in-memory database coherent and serializes
	// file writes through the driver rather than through SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, pkgerrors.ErrStorage.WithCause(fmt.Errorf("enable WAL mode: %w", err))
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS processed_events (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			topic        TEXT NOT NULL,
			event_id     TEXT NOT NULL,
			timestamp    TEXT NOT NULL,
			source       TEXT NOT NULL,
			payload      TEXT NOT NULL,
			processed_at TEXT NOT NULL,
			UNIQUE(topic, event_id)
		)
	`); err != nil {
		db.Close()
		return nil, pkgerrors.ErrStorage.WithCause(fmt.Errorf("create processed_events table: %w", err))
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_processed_events_topic
		ON processed_events(topic)
	`); err != nil {
		db.Close()
		return nil, pkgerrors.ErrStorage.WithCause(fmt.Errorf("create topic index: %w", err))
	}

	log.Infow("Ledger opened", "path", path)

	return &Store{db: db, logger: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// TryInsert attempts to durably admit the event. It returns true when this
// call created the record and false when a record for the same
// (topic, event_id) already existed, whether pre-existing or written by a
// concurrent caller that won the race. A constraint violation is the normal
// duplicate signal, never an error.
func (s *Store) TryInsert(ctx context.Context, ev models.Event) (bool, error) {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return false, pkgerrors.ErrStorage.WithCause(fmt.Errorf("encode payload: %w", err))
	}

	processedAt := s.nextProcessedAt()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO processed_events (topic, event_id, timestamp, source, payload, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.Topic, ev.EventID, ev.Timestamp, ev.Source, string(body), processedAt)

	if err != nil {
		if isUniqueViolation(err) {
			s.logger.DebugwCtx(ctx, "Duplicate event rejected by ledger",
				"topic", ev.Topic,
				"event_id", ev.EventID,
			)
			return false, nil
		}
		return false, pkgerrors.ErrStorage.WithCause(fmt.Errorf("insert event %s: %w", ev.Key(), err))
	}

	return true, nil
}

// Contains reports whether the key has been admitted. The result is advisory
// under concurrent writers; only TryInsert's return value is authoritative.
func (s *Store) Contains(ctx context.Context, topic, eventID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM processed_events
		WHERE topic = ? AND event_id = ?
		LIMIT 1
	`, topic, eventID).Scan(&one)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.ErrStorage.WithCause(fmt.Errorf("probe event %s:%s: %w", topic, eventID, err))
	}
	return true, nil
}

// List returns up to limit most-recently-admitted records, newest first,
// optionally filtered to one topic. Limit bounds are enforced by the caller.
func (s *Store) List(ctx context.Context, topic string, limit int) ([]Record, error) {
	query := `
		SELECT topic, event_id, timestamp, source, payload, processed_at
		FROM processed_events
		ORDER BY processed_at DESC, id DESC
		LIMIT ?
	`
	args := []interface{}{limit}

	if topic != "" {
		query = `
			SELECT topic, event_id, timestamp, source, payload, processed_at
			FROM processed_events
			WHERE topic = ?
			ORDER BY processed_at DESC, id DESC
			LIMIT ?
		`
		args = []interface{}{topic, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pkgerrors.ErrStorage.WithCause(fmt.Errorf("list events: %w", err))
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		var body string
		if err := rows.Scan(&rec.Topic, &rec.EventID, &rec.Timestamp, &rec.Source, &body, &rec.ProcessedAt); err != nil {
			return nil, pkgerrors.ErrStorage.WithCause(fmt.Errorf("scan event row: %w", err))
		}
		if err := json.Unmarshal([]byte(body), &rec.Payload); err != nil {
			return nil, pkgerrors.ErrStorage.WithCause(fmt.Errorf("decode payload for %s:%s: %w", rec.Topic, rec.EventID, err))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.ErrStorage.WithCause(fmt.Errorf("iterate event rows: %w", err))
	}

	return records, nil
}

// Topics returns the distinct topics with at least one admitted record.
func (s *Store) Topics(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT topic FROM processed_events ORDER BY topic`)
	if err != nil {
		return nil, pkgerrors.ErrStorage.WithCause(fmt.Errorf("list topics: %w", err))
	}
	defer rows.Close()

	topics := make([]string, 0)
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, pkgerrors.ErrStorage.WithCause(fmt.Errorf("scan topic row: %w", err))
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.ErrStorage.WithCause(fmt.Errorf("iterate topic rows: %w", err))
	}

	return topics, nil
}

// Counts reports the total number of admitted records and how many
// distinct topics they span.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var counts Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT topic) FROM processed_events
	`).Scan(&counts.Total, &counts.TopicCount)
	if err != nil {
		return Counts{}, pkgerrors.ErrStorage.WithCause(fmt.Errorf("count events: %w", err))
	}
	return counts, nil
}

// Clear wipes every record. Administrative use only; steady-state operation
// never deletes from the ledger.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM processed_events`); err != nil {
		return pkgerrors.ErrStorage.WithCause(fmt.Errorf("clear ledger: %w", err))
	}
	s.logger.Warnw("Ledger cleared")
	return nil
}

// nextProcessedAt assigns the admission instant, clamped so successive
// inserts never move backwards even if the wall clock does.
func (s *Store) nextProcessedAt() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if !now.After(s.lastTS) {
		now = s.lastTS.Add(time.Nanosecond)
	}
	s.lastTS = now

	return now.Format(processedAtLayout)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
