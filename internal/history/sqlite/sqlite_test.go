package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/srvkeeper/internal/history"
)

func TestSQLiteSink_Integration(t *testing.T) {
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
	run := history.Run{ID: "run-1", PID: 12345, URL: "ws://10.0.0.5:3016", StartedAt: time.Now().Add(-time.Minute).UTC()}

	if err := sink.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), Run: run}); err != nil {
		t.Fatalf("Failed to send start event: %v", err)
	}
	if err := sink.Send(ctx, history.Event{Type: history.EventStop, OccurredAt: time.Now().UTC(), Run: run}); err != nil {
		t.Fatalf("Failed to send stop event: %v", err)
	}
	if err := sink.Send(ctx, history.Event{Type: history.EventStartFailed, OccurredAt: time.Now().UTC(), Error: "missing"}); err != nil {
		t.Fatalf("Failed to send failure event: %v", err)
	}

	for typ, want := range map[history.EventType]int{history.EventStart: 1, history.EventStop: 1, history.EventStartFailed: 1, history.EventStale: 0} {
		got, err := sink.Count(ctx, typ)
		if err != nil {
			t.Fatalf("count %s: %v", typ, err)
		}
		if got != want {
			t.Fatalf("count %s = %d, want %d", typ, got, want)
		}
	}
}

func TestSQLiteSink_InMemoryAndEmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()
	if err := sink.Send(context.Background(), history.Event{Type: history.EventStale, OccurredAt: time.Now()}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if n, _ := sink.Count(context.Background(), history.EventStale); n != 1 {
		t.Fatalf("expected 1 stale event, got %d", n)
	}
}
