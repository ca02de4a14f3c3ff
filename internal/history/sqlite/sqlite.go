package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/procbuilder/internal/history"
)

// Sink writes history events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared between calls
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS launch_history(
			occurred_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
			event TEXT NOT NULL,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			command_line TEXT NOT NULL,
			dir TEXT,
			exit_code INTEGER NOT NULL,
			timed_out BOOLEAN NOT NULL,
			duration_ms INTEGER NOT NULL,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_launch_history_name ON launch_history(name);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	rec := e.Record
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO launch_history(occurred_at, event, name, pid, command_line, dir, exit_code, timed_out, duration_ms, error)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), string(e.Type), rec.Name, rec.PID, rec.CommandLine,
		history.Nullable(rec.Dir), rec.ExitCode, rec.TimedOut, rec.Duration.Milliseconds(), history.Nullable(rec.Error))
	return err
}

// Count returns the number of stored events for name, or all events when name is empty.
func (s *Sink) Count(ctx context.Context, name string) (int, error) {
	var n int
	var err error
	if name == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM launch_history`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM launch_history WHERE name = ?`, name).Scan(&n)
	}
	return n, err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
