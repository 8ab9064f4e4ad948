// Package opensearch indexes history events as OpenSearch documents over
// the REST API.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/gambit/internal/history"
)

// maxErrorBody bounds how much of an error response ends up in the error.
const maxErrorBody = 512

// Sink POSTs one document per event to {baseURL}/{index}/_doc.
type Sink struct {
	client   *http.Client
	baseURL  string
	index    string
	daily    bool
	user     string
	password string
}

type Option func(*Sink)

// WithDailyIndex appends the event date to the index name, e.g.
// engine-history-2024.05.01.
func WithDailyIndex() Option { return func(s *Sink) { s.daily = true } }

func WithBasicAuth(user, password string) Option {
	return func(s *Sink) { s.user, s.password = user, password }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.client.Timeout = d
		}
	}
}

// New creates a sink. An empty index defaults to "engine-history".
func New(baseURL, index string, opts ...Option) *Sink {
	if index == "" {
		index = strings.ReplaceAll(history.Table, "_", "-")
	}
	s := &Sink{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// document is the indexed shape of an event: flat, with the timestamp under
// the field name dashboards expect.
type document struct {
	Timestamp time.Time         `json:"@timestamp"`
	Type      history.EventType `json:"type"`
	history.Record
}

func (s *Sink) indexFor(e history.Event) string {
	if !s.daily {
		return s.index
	}
	t := e.OccurredAt
	if t.IsZero() {
		t = time.Now()
	}
	return s.index + "-" + t.UTC().Format("2006.01.02")
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(document{Timestamp: e.OccurredAt, Type: e.Type, Record: e.Record})
	if err != nil {
		return fmt.Errorf("encode history event: %w", err)
	}
	index := s.indexFor(e)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+index+"/_doc", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.user != "" {
		req.SetBasicAuth(s.user, s.password)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch index %s: status %d: %s", index, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
