package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loykin/procstream/internal/history"
)

type captured struct {
	method string
	path   string
	body   map[string]any
}

func recordingServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.method = r.Method
		c.path = r.URL.EscapedPath()
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &c.body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestSink_IndexesOperationByID(t *testing.T) {
	srv, got := recordingServer(t, http.StatusCreated)
	sink := New(srv.URL+"/", "operation-history")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := sink.Send(context.Background(), history.Event{
		Type:       history.EventComplete,
		OccurredAt: at,
		Record: history.Record{
			OperationID: "flash/42",
			Command:     "/opt/tool",
			Args:        []string{"erase"},
			PID:         12345,
			State:       "killed",
			Error:       "cancelled",
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.method != http.MethodPut {
		t.Errorf("method = %s, want PUT", got.method)
	}
	if got.path != "/operation-history/_doc/flash%2F42" {
		t.Errorf("path = %s", got.path)
	}
	if got.body["operation_id"] != "flash/42" || got.body["state"] != "killed" || got.body["event"] != "complete" {
		t.Errorf("unexpected document: %v", got.body)
	}
	if got.body["@timestamp"] != at.Format(time.RFC3339) {
		t.Errorf("@timestamp = %v", got.body["@timestamp"])
	}
	if _, nested := got.body["record"]; nested {
		t.Errorf("record should be flattened: %v", got.body)
	}
}

func TestSink_WithoutIDPosts(t *testing.T) {
	srv, got := recordingServer(t, http.StatusCreated)
	sink := New(srv.URL, "ops")
	if err := sink.Send(context.Background(), history.Event{Type: history.EventComplete, OccurredAt: time.Now()}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.method != http.MethodPost || got.path != "/ops/_doc" {
		t.Errorf("got %s %s", got.method, got.path)
	}
}

func TestSink_StatusError(t *testing.T) {
	srv, _ := recordingServer(t, http.StatusBadRequest)
	sink := New(srv.URL, "ops")
	err := sink.Send(context.Background(), history.Event{Type: history.EventComplete, Record: history.Record{OperationID: "x"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "opensearch sink status 400") {
		t.Errorf("unexpected error: %v", err)
	}
}
