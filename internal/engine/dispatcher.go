package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loomworks/loom/pkg/api"
	"github.com/loomworks/loom/pkg/log"
)

// Dispatcher routes events to the handlers subscribed to their topic.
// Subscribers for one event run concurrently with each other; a publish
// call returns only after every subscriber handler, and everything it
// transitively emits, has settled or failed
type Dispatcher struct {
	index    *Index
	state    api.State
	logger   *slog.Logger
	hub      *Hub
	maxDepth int
}

// NewDispatcher wires a dispatcher over a frozen index. maxDepth of zero
// leaves cascade depth unguarded
func NewDispatcher(
	index *Index, state api.State, logger *slog.Logger, hub *Hub,
	maxDepth int,
) *Dispatcher {
	return &Dispatcher{
		index:    index,
		state:    state,
		logger:   logger,
		hub:      hub,
		maxDepth: maxDepth,
	}
}

// Publish dispatches an event to its subscribers and waits for the full
// cascade to settle. An unmatched topic is not an error. If any
// subscriber fails, the others still run to completion and the aggregate
// failure is returned as a *api.PartialDispatchError
func (d *Dispatcher) Publish(ctx context.Context, ev *api.Event) error {
	return d.publish(ctx, ev, 0)
}

func (d *Dispatcher) publish(
	ctx context.Context, ev *api.Event, depth int,
) error {
	started := time.Now()
	subs := d.index.Subscribers(ev.Topic)

	runnable := make([]*api.Step, 0, len(subs))
	for _, step := range subs {
		// noop steps exist for graph visualization only
		if step.Kind == api.TriggerNoop || step.Handler == nil {
			continue
		}
		runnable = append(runnable, step)
	}

	errs := make([]error, len(runnable))
	var wg sync.WaitGroup
	for i, step := range runnable {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = d.invoke(ctx, step, ev, depth)
		}()
	}
	wg.Wait()

	var failures []api.SubscriberError
	for i, err := range errs {
		if err != nil {
			failures = append(failures, api.SubscriberError{
				Step: runnable[i].Name,
				Err:  err,
			})
		}
	}

	d.hub.Publish(DispatchRecord{
		Topic:       ev.Topic,
		TraceID:     ev.TraceID,
		Subscribers: len(runnable),
		Failed:      failedNames(failures),
		Duration:    time.Since(started),
		Timestamp:   started,
	})

	if len(failures) == 0 {
		return nil
	}
	return &api.PartialDispatchError{
		Topic:    ev.Topic,
		TraceID:  ev.TraceID,
		Failures: failures,
	}
}

// invoke runs one subscriber handler with a fresh execution context.
// Failures are logged here and surface again in the aggregate dispatch
// error; one subscriber cannot take down its siblings
func (d *Dispatcher) invoke(
	ctx context.Context, step *api.Step, ev *api.Event, depth int,
) error {
	ec := d.newContext(ev.TraceID, depth, step)

	if err := invokeHandler(ctx, step, ev.Data, ec); err != nil {
		d.logger.Error("Subscriber handler failed",
			log.TraceID(ev.TraceID),
			log.StepName(step.Name),
			log.Topic(ev.Topic),
			log.Error(err))
		return err
	}
	return nil
}

// NewEntryContext builds the execution context for an entry invocation
// (an API request, a cron tick, or an injected event)
func (d *Dispatcher) NewEntryContext(
	traceID api.TraceID, step *api.Step,
) *api.Context {
	return d.newContext(traceID, 0, step)
}

func (d *Dispatcher) newContext(
	traceID api.TraceID, depth int, step *api.Step,
) *api.Context {
	logger := d.logger.With(
		log.TraceID(traceID),
		log.StepName(step.Name),
		log.Flows(step.Flows),
		log.Source("handler"))

	emit := func(ctx context.Context, topic api.Topic, data any) error {
		if d.maxDepth > 0 && depth >= d.maxDepth {
			return fmt.Errorf("%w: %s at depth %d",
				api.ErrEmitDepthExceeded, topic, depth)
		}
		ev, err := api.NewEvent(topic, data, traceID)
		if err != nil {
			return err
		}
		return d.publish(ctx, ev, depth+1)
	}

	return api.NewContext(traceID, depth, emit, d.state, logger)
}

func failedNames(failures []api.SubscriberError) []api.Name {
	if len(failures) == 0 {
		return nil
	}
	names := make([]api.Name, len(failures))
	for i, f := range failures {
		names[i] = f.Step
	}
	return names
}
