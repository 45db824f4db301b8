// Package opensearch indexes operation outcomes in OpenSearch.
//
// Each completed operation becomes one flat document (the Record fields plus
// "@timestamp" and "event") stored under its operation id, so re-sending the
// same outcome overwrites instead of duplicating it.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loykin/procstream/internal/history"
)

type document struct {
	Timestamp time.Time         `json:"@timestamp"`
	Event     history.EventType `json:"event"`
	history.Record
}

type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	return &Sink{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
	}
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	body, err := json.Marshal(document{Timestamp: e.OccurredAt, Event: e.Type, Record: e.Record})
	if err != nil {
		return err
	}
	method, u := http.MethodPost, s.baseURL+"/"+url.PathEscape(s.index)+"/_doc"
	if id := e.Record.OperationID; id != "" {
		method, u = http.MethodPut, u+"/"+url.PathEscape(id)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("opensearch sink status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
