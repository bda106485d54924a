package api

import (
	"context"
	"log/slog"
)

type (
	// EmitFunc publishes an event on behalf of a handler. It returns only
	// after the full downstream cascade triggered by the event has settled
	// or failed
	EmitFunc func(ctx context.Context, topic Topic, data any) error

	// Context is the per-invocation handle passed to every handler. It
	// carries the trace identifier, an emit closure bound to that trace,
	// a state accessor, and a logger pre-enriched with invocation
	// identifiers. Contexts are built by the engine and never reused
	// across invocations
	Context struct {
		emit    EmitFunc
		state   State
		logger  *slog.Logger
		traceID TraceID
		depth   int
	}
)

// NewContext assembles an execution context. Construction is pure; the
// context holds no mutable shared state
func NewContext(
	traceID TraceID, depth int, emit EmitFunc, state State,
	logger *slog.Logger,
) *Context {
	return &Context{
		traceID: traceID,
		depth:   depth,
		emit:    emit,
		state:   state,
		logger:  logger,
	}
}

// TraceID returns the correlation identifier for this invocation's cascade
func (c *Context) TraceID() TraceID {
	return c.traceID
}

// Depth reports how many emit hops separate this invocation from its
// entry trigger
func (c *Context) Depth() int {
	return c.depth
}

// Emit publishes an event carrying this invocation's trace identifier and
// waits for the resulting cascade to settle
func (c *Context) Emit(ctx context.Context, topic Topic, data any) error {
	return c.emit(ctx, topic, data)
}

// State returns the runtime's state store
func (c *Context) State() State {
	return c.state
}

// Logger returns the invocation-scoped logger
func (c *Context) Logger() *slog.Logger {
	return c.logger
}
