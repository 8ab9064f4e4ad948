// Package history exports engine lifecycle and game events to external
// stores for later analysis.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of history event.
type EventType string

const (
	EventStart  EventType = "start"
	EventStop   EventType = "stop"
	EventFail   EventType = "fail"
	EventMove   EventType = "move"
	EventResult EventType = "result"
)

// Record describes the engine an event is about, plus the event payload.
type Record struct {
	EngineID string `json:"engine_id"`
	Name     string `json:"name"`
	PID      int    `json:"pid"`
	Side     string `json:"side"`
	Move     string `json:"move,omitempty"`
	Result   string `json:"result,omitempty"`
	Comment  string `json:"comment,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Event represents a history event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Table is the table or index name sinks use unless configured otherwise.
const Table = "engine_history"
