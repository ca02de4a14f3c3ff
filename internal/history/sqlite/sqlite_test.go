package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/procbuilder/internal/history"
)

func TestSQLiteSink_FileDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	rec := history.Record{
		Name:        "php",
		PID:         12345,
		CommandLine: "'/usr/bin/php' '-v'",
		Dir:         "/tmp",
	}
	if err := sink.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: time.Now(), Record: rec}); err != nil {
		t.Fatalf("Failed to send start event: %v", err)
	}

	rec.ExitCode = 1
	rec.Duration = 1500 * time.Millisecond
	rec.Error = "exit status 1"
	if err := sink.Send(ctx, history.Event{Type: history.EventExit, OccurredAt: time.Now(), Record: rec}); err != nil {
		t.Fatalf("Failed to send exit event: %v", err)
	}

	n, err := sink.Count(ctx, "php")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	for _, name := range []string{"a", "b", "a"} {
		ev := history.Event{Type: history.EventFailed, OccurredAt: time.Now(), Record: history.Record{Name: name, Error: "not found"}}
		if err := sink.Send(ctx, ev); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if n, _ := sink.Count(ctx, ""); n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
	if n, _ := sink.Count(ctx, "a"); n != 2 {
		t.Fatalf("expected 2 rows for a, got %d", n)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}

func TestSQLiteSink_ContextCancellation(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = sink.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: time.Now(), Record: history.Record{Name: "cancelled"}})
	if err != nil {
		t.Logf("Expected error with cancelled context: %v", err)
	}
}
