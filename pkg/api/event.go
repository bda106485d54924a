package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type (
	// Topic is a named channel events are published to. Topics are
	// implicit; they exist as soon as a step subscribes to or emits them
	Topic string

	// TraceID correlates every event in one invocation's cascade. It is
	// minted once per entry invocation and propagated unchanged
	TraceID string

	// Event is the unit of dispatch. Events are transient; the runtime
	// never persists them
	Event struct {
		Timestamp time.Time       `json:"timestamp"`
		Topic     Topic           `json:"topic"`
		TraceID   TraceID         `json:"trace_id"`
		Data      json.RawMessage `json:"data,omitempty"`
	}
)

// NewTraceID mints a fresh trace identifier
func NewTraceID() TraceID {
	return TraceID(uuid.NewString())
}

// NewEvent builds an event for the given topic, JSON-encoding the payload
// and stamping the trace identifier and current time
func NewEvent(topic Topic, data any, traceID TraceID) (*Event, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	return &Event{
		Topic:     topic,
		Data:      raw,
		TraceID:   traceID,
		Timestamp: time.Now(),
	}, nil
}
