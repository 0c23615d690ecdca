package tracker

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// Store persists finished traces to SQLite so utterances can be inspected
// after the process exits.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS traces (
	msg_id      TEXT PRIMARY KEY,
	query       TEXT NOT NULL DEFAULT '',
	response    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	ended_at    INTEGER NOT NULL,
	entries     TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_traces_started ON traces(started_at);
`

// OpenStore opens (creating if needed) the trace database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create trace schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveTrace upserts a finished trace.
func (s *Store) SaveTrace(tr TraceSnapshot) error {
	entries, err := json.Marshal(tr.Entries)
	if err != nil {
		return fmt.Errorf("failed to encode trace entries: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO traces (msg_id, query, response, status, started_at, ended_at, entries)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(msg_id) DO UPDATE SET
			query = excluded.query,
			response = excluded.response,
			status = excluded.status,
			ended_at = excluded.ended_at,
			entries = excluded.entries`,
		tr.MessageID, tr.Query, tr.Response, string(tr.Status),
		tr.StartedAt.UnixMilli(), tr.EndedAt.UnixMilli(), string(entries))
	if err != nil {
		return fmt.Errorf("failed to save trace: %w", err)
	}
	return nil
}

// LoadTrace reads one persisted trace back.
func (s *Store) LoadTrace(msgID string) (TraceSnapshot, error) {
	var tr TraceSnapshot
	var status string
	var started, ended int64
	var entries string

	row := s.db.QueryRow(`
		SELECT msg_id, query, response, status, started_at, ended_at, entries
		FROM traces WHERE msg_id = ?`, msgID)
	if err := row.Scan(&tr.MessageID, &tr.Query, &tr.Response, &status, &started, &ended, &entries); err != nil {
		return TraceSnapshot{}, fmt.Errorf("failed to load trace: %w", err)
	}

	tr.Status = Status(status)
	tr.StartedAt = msToTime(started)
	tr.EndedAt = msToTime(ended)
	if err := json.Unmarshal([]byte(entries), &tr.Entries); err != nil {
		return TraceSnapshot{}, fmt.Errorf("failed to decode trace entries: %w", err)
	}
	return tr, nil
}

// Count returns the number of persisted traces.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM traces`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count traces: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
