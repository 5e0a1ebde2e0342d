package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store manages the SQLite connection and schema.
type Store struct {
	db *sql.DB
}

// NewStore initializes the SQLite database connection.
// It enables WAL mode for concurrency and durability.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the necessary tables if they don't exist.
func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		ts_event DATETIME NOT NULL,
		ts_ingest DATETIME NOT NULL,

		origin_kind TEXT,
		origin_id TEXT,
		writer_id TEXT,

		correlation_id TEXT,
		causation_id TEXT,

		payload JSON NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_ts_ingest ON events(ts_ingest);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);

	CREATE TABLE IF NOT EXISTS system_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leases (
		name TEXT PRIMARY KEY,
		holder_id TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		version INTEGER NOT NULL
	);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// AppendEvent stores one event. TsIngest defaults to now.
func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	if e.EventID == "" {
		return errors.New("event id is required")
	}
	if e.TsIngest.IsZero() {
		e.TsIngest = time.Now().UTC()
	}
	if e.TsEvent.IsZero() {
		e.TsEvent = e.TsIngest
	}
	payload := []byte(e.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (
			event_id, event_type, schema_version, ts_event, ts_ingest,
			origin_kind, origin_id, writer_id,
			correlation_id, causation_id, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(e.EventID), string(e.EventType), e.SchemaVersion, e.TsEvent.UTC(), e.TsIngest.UTC(),
		e.Source.OriginKind, e.Source.OriginID, e.Source.WriterID,
		e.Correlation.CorrelationID, e.Correlation.CausationID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append event %s: %w", e.EventID, err)
	}
	return nil
}

const eventColumns = `event_id, event_type, schema_version, ts_event, ts_ingest,
	origin_kind, origin_id, writer_id, correlation_id, causation_id, payload`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*Event, error) {
	var (
		e                                        Event
		id, typ, payload                         string
		originKind, originID, writerID, corr, cs sql.NullString
	)
	if err := row.Scan(&id, &typ, &e.SchemaVersion, &e.TsEvent, &e.TsIngest,
		&originKind, &originID, &writerID, &corr, &cs, &payload); err != nil {
		return nil, err
	}
	e.EventID = EventID(id)
	e.EventType = EventType(typ)
	e.Source = EventSource{OriginKind: originKind.String, OriginID: originID.String, WriterID: writerID.String}
	e.Correlation = EventCorrelation{CorrelationID: corr.String, CausationID: cs.String}
	e.Payload = []byte(payload)
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	defer rows.Close()
	events := make([]*Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// GetEvent returns one event by id, or ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, id EventID) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE event_id = ?`, string(id))
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get event %s: %w", id, err)
	}
	return e, nil
}

// ReadRecentEvents returns up to limit events, newest first.
func (s *Store) ReadRecentEvents(ctx context.Context, limit int) ([]*Event, error) {
	return s.QueryEvents(ctx, EventFilter{Limit: limit})
}

// QueryEvents returns events matching the filter, newest first.
func (s *Store) QueryEvents(ctx context.Context, f EventFilter) ([]*Event, error) {
	var (
		where []string
		args  []interface{}
	)
	if !f.From.IsZero() {
		where = append(where, "ts_ingest >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "ts_ingest < ?")
		args = append(args, f.To.UTC())
	}
	if len(f.EventTypes) > 0 {
		marks := make([]string, len(f.EventTypes))
		for i, t := range f.EventTypes {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "event_type IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts_ingest DESC, rowid DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return scanEvents(rows)
}

// ReadCandidateEvents returns up to limit events ingested before cutoff,
// oldest first. The archive worker consumes them in this order.
func (s *Store) ReadCandidateEvents(ctx context.Context, cutoff time.Time, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE ts_ingest < ?
		ORDER BY ts_ingest ASC, rowid ASC
		LIMIT ?
	`, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidate events: %w", err)
	}
	return scanEvents(rows)
}

// DeleteEvents removes the given events in one transaction.
func (s *Store) DeleteEvents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM events WHERE event_id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete event %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// PruneEvents deletes events older than retention. An empty eventType
// matches every type. It returns the number of rows removed.
func (s *Store) PruneEvents(ctx context.Context, retention time.Duration, eventType EventType) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %v", retention)
	}
	cutoff := time.Now().UTC().Add(-retention)

	query := "DELETE FROM events WHERE ts_ingest < ?"
	args := []interface{}{cutoff}
	if eventType != "" {
		query += " AND event_type = ?"
		args = append(args, string(eventType))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}

// CountEvents returns the number of stored events of a type; an empty type
// counts everything.
func (s *Store) CountEvents(ctx context.Context, eventType EventType) (int64, error) {
	query := "SELECT COUNT(*) FROM events"
	var args []interface{}
	if eventType != "" {
		query += " WHERE event_type = ?"
		args = append(args, string(eventType))
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// ReadEventsSince returns up to limit events ingested strictly after since,
// oldest first, optionally restricted to some types.
func (s *Store) ReadEventsSince(ctx context.Context, since time.Time, limit int, types ...EventType) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + eventColumns + ` FROM events WHERE ts_ingest > ?`
	args := []interface{}{since.UTC()}
	if len(types) > 0 {
		marks := make([]string, len(types))
		for i, t := range types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		query += " AND event_type IN (" + strings.Join(marks, ", ") + ")"
	}
	query += " ORDER BY ts_ingest ASC, rowid ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read events since %v: %w", since, err)
	}
	return scanEvents(rows)
}

// GetSystemState returns a persisted daemon value, or ErrNotFound.
func (s *Store) GetSystemState(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM system_state WHERE key = ?", key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("system state %s: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("failed to get system state %s: %w", key, err)
	}
	return v, nil
}

// SetSystemState upserts a persisted daemon value.
func (s *Store) SetSystemState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set system state %s: %w", key, err)
	}
	return nil
}
