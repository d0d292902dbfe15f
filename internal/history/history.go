package history

import (
	"context"
	"time"

	"github.com/meterdock/meterdock/internal/execution"
)

// EventType defines the kind of execution lifecycle event.
type EventType string

const (
	EventSubmitted EventType = "submitted"
	EventStarted   EventType = "started"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType        `json:"type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Record     execution.Record `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use. Send failures are logged
// by callers and never affect the execution outcome.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// SinkConfig selects and configures one sink.
type SinkConfig struct {
	Type  string `toml:"type" mapstructure:"type"` // "clickhouse" or "opensearch"
	DSN   string `toml:"dsn" mapstructure:"dsn"`
	Table string `toml:"table" mapstructure:"table"`
	URL   string `toml:"url" mapstructure:"url"`
	Index string `toml:"index" mapstructure:"index"`
}
