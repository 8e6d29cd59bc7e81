// Package audit keeps a SQLite trail of control-plane operations.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/teslashibe/go-skycam/internal/log"
	"github.com/teslashibe/go-skycam/pkg/control"
)

const (
	dirPermissions    = 0750
	connectionTimeout = 5 * time.Second
	writeTimeout      = 2 * time.Second

	// DefaultLimit and MaxLimit bound List.
	DefaultLimit = 50
	MaxLimit     = 500

	// timeLayout is fixed width so created_at sorts as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

const schema = `
CREATE TABLE IF NOT EXISTS control_audit (
	id         TEXT PRIMARY KEY,
	event_id   TEXT NOT NULL,
	operation  TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	preset     TEXT,
	params     TEXT,
	reasons    TEXT,
	error      TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_control_audit_created ON control_audit(created_at);
`

// Entry is one recorded operation.
type Entry struct {
	ID        string          `json:"id"`
	EventID   string          `json:"event_id"`
	Operation string          `json:"operation"`
	Outcome   string          `json:"outcome"`
	Preset    string          `json:"preset,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Reasons   []string        `json:"reasons,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store writes and reads audit entries.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("audit: empty database path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying audit schema: %w", err)
	}

	return &Store{db: db, path: path, logger: log.Component("audit")}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Record inserts one control event.
func (s *Store) Record(ctx context.Context, ev control.Event) (Entry, error) {
	e := Entry{
		ID:        "aud-" + uuid.NewString(),
		EventID:   ev.ID,
		Operation: string(ev.Operation),
		Outcome:   ev.Outcome.String(),
		Preset:    ev.Preset,
		Reasons:   ev.Reasons,
		Error:     ev.Err,
		CreatedAt: ev.At.UTC(),
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var params, reasons any
	if !ev.Params.Empty() {
		b, err := json.Marshal(ev.Params)
		if err != nil {
			return Entry{}, fmt.Errorf("marshalling params: %w", err)
		}
		e.Params = b
		params = string(b)
	}
	if len(ev.Reasons) > 0 {
		b, err := json.Marshal(ev.Reasons)
		if err != nil {
			return Entry{}, fmt.Errorf("marshalling reasons: %w", err)
		}
		reasons = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO control_audit (id, event_id, operation, outcome, preset, params, reasons, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EventID, e.Operation, e.Outcome,
		nullableString(e.Preset), params, reasons, nullableString(e.Error),
		e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("inserting audit entry: %w", err)
	}
	return e, nil
}

// HandleEvent is a control.Controller event handler. Failures are logged.
func (s *Store) HandleEvent(ev control.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := s.Record(ctx, ev); err != nil {
		s.logger.Error("failed to record audit entry", "event", ev.ID, "error", err)
	}
}

// List returns the most recent entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, operation, outcome, preset, params, reasons, error, created_at
		 FROM control_audit ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                               Entry
			preset, params, reasons, errStr sql.NullString
			createdAt                       string
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.Operation, &e.Outcome,
			&preset, &params, &reasons, &errStr, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Preset = preset.String
		e.Error = errStr.String
		if params.Valid && params.String != "" {
			e.Params = json.RawMessage(params.String)
		}
		if reasons.Valid && reasons.String != "" {
			if err := json.Unmarshal([]byte(reasons.String), &e.Reasons); err != nil {
				return nil, fmt.Errorf("decoding reasons of %s: %w", e.ID, err)
			}
		}
		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
