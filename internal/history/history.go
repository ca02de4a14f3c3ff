package history

import (
	"context"
	"time"
)

// EventType defines the kind of launch event.
type EventType string

const (
	EventStart  EventType = "start"  // process spawned
	EventExit   EventType = "exit"   // process reaped
	EventFailed EventType = "failed" // spawn failed
)

// DefaultTable is the table (or ClickHouse table) history rows are written to.
const DefaultTable = "launch_history"

// Record describes one launched invocation.
type Record struct {
	Name        string        `json:"name"`
	PID         int           `json:"pid"`
	CommandLine string        `json:"command_line"`
	Dir         string        `json:"dir,omitempty"`
	ExitCode    int           `json:"exit_code"`
	TimedOut    bool          `json:"timed_out"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// Event is a launch lifecycle event exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Nullable returns nil for an empty string so it is stored as SQL NULL.
func Nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
