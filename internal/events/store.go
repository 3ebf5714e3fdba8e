package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/cascade/pkg/models"
)

// Store persists cascade events in a local SQLite database so the CLI
// can query the audit trail. Rows are append-only: there is no update or
// delete path.
type Store struct {
	conn *sql.DB
	path string
}

// OpenStore opens an SQLite event store at the given path, creating
// parent directories and applying schema migrations as needed.
// WAL mode is enabled for concurrent reads.
func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.path
}

// migrate applies all pending schema migrations.
func (s *Store) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Events},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Events = `
CREATE TABLE events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL UNIQUE,
	event_type TEXT NOT NULL,
	task_id TEXT NOT NULL,
	tier TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	duration_ms INTEGER,
	reason TEXT,
	metrics TEXT,
	escalation_path TEXT,
	message_count INTEGER
);
CREATE INDEX idx_events_task ON events(task_id, seq);
`

// Append inserts one event. Rows preserve emission order via the seq
// column.
func (s *Store) Append(event models.CascadeEvent) error {
	var metricsJSON, pathJSON []byte
	var err error

	if event.Metrics != nil {
		metricsJSON, err = json.Marshal(event.Metrics)
		if err != nil {
			return fmt.Errorf("marshal metrics: %w", err)
		}
	}
	if len(event.EscalationPath) > 0 {
		pathJSON, err = json.Marshal(event.EscalationPath)
		if err != nil {
			return fmt.Errorf("marshal escalation path: %w", err)
		}
	}

	_, err = s.conn.Exec(`
		INSERT INTO events (event_id, event_type, task_id, tier, timestamp,
			duration_ms, reason, metrics, escalation_path, message_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.EventID, string(event.Type), event.TaskID, string(event.Tier),
		event.Timestamp.UTC().Format(time.RFC3339Nano), event.DurationMS,
		event.Reason, nullable(metricsJSON), nullable(pathJSON), event.MessageCount,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ByTask returns all events for a task in emission order.
func (s *Store) ByTask(taskID string) ([]models.CascadeEvent, error) {
	rows, err := s.conn.Query(`
		SELECT event_id, event_type, task_id, tier, timestamp,
			duration_ms, reason, metrics, escalation_path, message_count
		FROM events WHERE task_id = ? ORDER BY seq
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Recent returns the most recent n events, oldest first.
func (s *Store) Recent(n int) ([]models.CascadeEvent, error) {
	rows, err := s.conn.Query(`
		SELECT event_id, event_type, task_id, tier, timestamp,
			duration_ms, reason, metrics, escalation_path, message_count
		FROM (
			SELECT * FROM events ORDER BY seq DESC LIMIT ?
		) ORDER BY seq
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]models.CascadeEvent, error) {
	var out []models.CascadeEvent
	for rows.Next() {
		var ev models.CascadeEvent
		var eventType, tier, ts string
		var durationMS, messageCount sql.NullInt64
		var reason, metrics, path sql.NullString

		if err := rows.Scan(&ev.EventID, &eventType, &ev.TaskID, &tier, &ts,
			&durationMS, &reason, &metrics, &path, &messageCount); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		ev.Type = models.EventType(eventType)
		ev.Tier = models.Tier(tier)
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		ev.Timestamp = parsed
		ev.DurationMS = durationMS.Int64
		ev.Reason = reason.String
		ev.MessageCount = int(messageCount.Int64)

		if metrics.Valid && metrics.String != "" {
			var m models.ComplexityMetrics
			if err := json.Unmarshal([]byte(metrics.String), &m); err != nil {
				return nil, fmt.Errorf("unmarshal metrics: %w", err)
			}
			ev.Metrics = &m
		}
		if path.Valid && path.String != "" {
			if err := json.Unmarshal([]byte(path.String), &ev.EscalationPath); err != nil {
				return nil, fmt.Errorf("unmarshal escalation path: %w", err)
			}
		}

		out = append(out, ev)
	}
	return out, rows.Err()
}

// nullable maps empty byte slices to NULL.
func nullable(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
