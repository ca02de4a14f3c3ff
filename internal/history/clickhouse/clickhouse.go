package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/procbuilder/internal/history"
)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to the native ClickHouse endpoint at addr (host:port) and
// creates table when it does not exist.
func New(addr, table string) (*Sink, error) {
	if table == "" {
		table = history.DefaultTable
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx := context.Background()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureTable(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureTable(ctx context.Context) error {
	err := s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			event String,
			occurred_at DateTime64(6),
			name String,
			pid Int64,
			command_line String,
			dir String,
			exit_code Int32,
			timed_out Bool,
			duration_ms Int64,
			error String
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, name)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse table %s: %w", s.table, err)
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (event, occurred_at, name, pid, command_line, dir, exit_code, timed_out, duration_ms, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	rec := e.Record
	err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt,
		rec.Name,
		int64(rec.PID),
		rec.CommandLine,
		rec.Dir,
		int32(rec.ExitCode),
		rec.TimedOut,
		rec.Duration.Milliseconds(),
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}

// Count returns the number of stored events for name.
func (s *Sink) Count(ctx context.Context, name string) (uint64, error) {
	var n uint64
	err := s.conn.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE name = ?", s.table), name).Scan(&n)
	return n, err
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
