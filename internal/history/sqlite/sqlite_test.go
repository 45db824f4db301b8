package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/procstream/internal/history"
)

func testEvent(op string, success bool) history.Event {
	now := time.Now().UTC()
	rec := history.Record{
		OperationID: op,
		Command:     "/opt/tool",
		Args:        []string{"flash", "--image", "boot.img"},
		WorkDir:     "/tmp",
		PID:         12345,
		State:       "completed",
		Success:     success,
		StartedAt:   now.Add(-time.Minute),
		FinishedAt:  now,
		Lines:       42,
	}
	if !success {
		rec.ExitCode = 2
		rec.Error = "device not found"
	}
	return history.Event{Type: history.EventComplete, OccurredAt: now, Record: rec}
}

func TestSQLiteSink_Integration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	sink, err := New("file:" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	if err := sink.Send(ctx, testEvent("op-1", true)); err != nil {
		t.Fatalf("Failed to send success event: %v", err)
	}
	if err := sink.Send(ctx, testEvent("op-1", false)); err != nil {
		t.Fatalf("Failed to send failure event: %v", err)
	}

	n, err := sink.Count(ctx, "op-1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 records, got %d", n)
	}

	var errText string
	if err := sink.db.QueryRowContext(ctx, `SELECT error FROM operation_history WHERE success = 0`).Scan(&errText); err != nil {
		t.Fatalf("query failure row: %v", err)
	}
	if errText != "device not found" {
		t.Errorf("unexpected error column %q", errText)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New("sqlite://:memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	if err := sink.Send(ctx, testEvent("mem-op", true)); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}
	if n, _ := sink.Count(ctx, "mem-op"); n != 1 {
		t.Errorf("Expected 1 record, got %d", n)
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
	if err := sink.Send(ctx, testEvent("cancelled", true)); err == nil {
		t.Error("expected error with cancelled context")
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Error("expected error for empty DSN")
	}
}
