package internal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	_ "modernc.org/sqlite"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Kinds of lifecycle events recorded in the journal.
const (
	EventStarted   = "started"
	EventAdopted   = "adopted"
	EventHealthy   = "healthy"
	EventUnhealthy = "unhealthy"
	EventSkipped   = "skipped"
	EventExited    = "exited"
	EventRestarted = "restarted"
	EventStopped   = "stopped"
)

// Event is a lifecycle change of one service during one run.
type Event struct {
	RunID   string
	Service string
	Kind    string
	Detail  string
	At      time.Time
}

// Recorder receives lifecycle events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// EventFilter narrows down Store.Events. Zero values match everything.
type EventFilter struct {
	RunID   string
	Service string
	Limit   int
}

// Store is a SQLite-backed event journal.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

// NewStore opens the journal at path, creating it if needed.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Supervisors of different services write concurrently.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return errors.New("db not initialized")
	}
	return s.db.Close()
}

// Record appends an event to the journal.
func (s *Store) Record(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (run_id, service, kind, detail, at) VALUES (?, ?, ?, ?, ?)`,
		ev.RunID, ev.Service, ev.Kind, ev.Detail, ev.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Events returns matching events, oldest first. With a limit, the most recent ones are kept.
func (s *Store) Events(ctx context.Context, filter EventFilter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Service != "" {
		where = append(where, "service = ?")
		args = append(args, filter.Service)
	}

	query := `SELECT run_id, service, kind, detail, at FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev Event
			at int64
		)
		if err := rows.Scan(&ev.RunID, &ev.Service, &ev.Kind, &ev.Detail, &at); err != nil {
			return nil, err
		}
		ev.At = time.Unix(0, at)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// LastRun returns the ID of the most recently recorded run, or "" if the journal is empty.
func (s *Store) LastRun(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `SELECT run_id FROM events ORDER BY id DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return runID, err
}
