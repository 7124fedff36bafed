package history

import (
	"context"
	"log/slog"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart       EventType = "start"
	EventStop        EventType = "stop"
	EventStartFailed EventType = "start_failed"
	// EventStale is emitted when a recorded server is found dead on start.
	EventStale EventType = "stale"
)

// Run identifies one supervised server run.
type Run struct {
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"started_at"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Run        Run       `json:"run"`
	Error      string    `json:"error,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Publish delivers e to every sink. Failures are logged and never returned:
// history is an audit trail, not part of the lifecycle.
func Publish(ctx context.Context, log *slog.Logger, sinks []Sink, e Event) {
	if log == nil {
		log = slog.Default()
	}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, e); err != nil {
			log.Warn("history sink failed", "event", e.Type, "run_id", e.Run.ID, "error", err)
		}
	}
}
