package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/state"
	"github.com/loomworks/loom/pkg/api"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newDispatcher(
	t *testing.T, maxDepth int, steps ...*api.Step,
) (*engine.Dispatcher, api.State) {
	t.Helper()
	r := engine.NewRegistry()
	for _, step := range steps {
		require.NoError(t, r.Register(step))
	}
	store := state.NewMemoryStore()
	d := engine.NewDispatcher(
		r.BuildIndex(), store, discardLogger(), engine.NewHub(), maxDepth,
	)
	return d, store
}

func publishEvent(
	t *testing.T, d *engine.Dispatcher, topic api.Topic, data any,
	traceID api.TraceID,
) error {
	t.Helper()
	ev, err := api.NewEvent(topic, data, traceID)
	require.NoError(t, err)
	return d.Publish(context.Background(), ev)
}

func TestPublishInvokesOnlySubscribers(t *testing.T) {
	var mu sync.Mutex
	invoked := map[api.Name]bool{}
	record := func(name api.Name) api.Handler {
		return func(
			context.Context, json.RawMessage, *api.Context,
		) (*api.Response, error) {
			mu.Lock()
			defer mu.Unlock()
			invoked[name] = true
			return nil, nil
		}
	}

	d, _ := newDispatcher(t, 0,
		&api.Step{
			Name: "wanted", Kind: api.TriggerEvent,
			Subscribes: []api.Topic{"data.received"},
			Handler:    record("wanted"),
		},
		&api.Step{
			Name: "also-wanted", Kind: api.TriggerEvent,
			Subscribes: []api.Topic{"data.received"},
			Handler:    record("also-wanted"),
		},
		&api.Step{
			Name: "unwanted", Kind: api.TriggerEvent,
			Subscribes: []api.Topic{"other.topic"},
			Handler:    record("unwanted"),
		},
	)

	require.NoError(t, publishEvent(t, d, "data.received", nil, "t1"))
	assert.True(t, invoked["wanted"])
	assert.True(t, invoked["also-wanted"])
	assert.False(t, invoked["unwanted"])
}

func TestPublishUnmatchedTopic(t *testing.T) {
	d, _ := newDispatcher(t, 0, eventStep("first", "a"))
	assert.NoError(t, publishEvent(t, d, "nobody.listens", nil, "t2"))
}

func TestPublishSkipsNoopSteps(t *testing.T) {
	ran := false
	d, _ := newDispatcher(t, 0,
		&api.Step{
			Name: "marker", Kind: api.TriggerNoop,
			Subscribes: []api.Topic{"data.received"},
		},
		&api.Step{
			Name: "worker", Kind: api.TriggerEvent,
			Subscribes: []api.Topic{"data.received"},
			Handler: func(
				context.Context, json.RawMessage, *api.Context,
			) (*api.Response, error) {
				ran = true
				return nil, nil
			},
		},
	)

	require.NoError(t, publishEvent(t, d, "data.received", nil, "t1"))
	assert.True(t, ran)
}

func TestPublishPartialFailure(t *testing.T) {
	boom := errors.New("boom")
	d, store := newDispatcher(t, 0,
		&api.Step{
			Name: "failing", Kind: api.TriggerEvent,
			Subscribes: []api.Topic{"data.received"},
			Handler: func(
				context.Context, json.RawMessage, *api.Context,
			) (*api.Response, error) {
				return nil, boom
			},
		},
		&api.Step{
			Name: "healthy", Kind: api.TriggerEvent,
			Subscribes: []api.Topic{"data.received"},
			Handler: func(
				ctx context.Context, _ json.RawMessage, ec *api.Context,
			) (*api.Response, error) {
				return nil, ec.State().Set(
					ctx, string(ec.TraceID()), "seen", true,
				)
			},
		},
	)

	err := publishEvent(t, d, "data.received", map[string]any{}, "t1")

	var partial *api.PartialDispatchError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []api.Name{"failing"}, partial.FailedSteps())
	assert.Equal(t, api.Topic("data.received"), partial.Topic)
	assert.Equal(t, api.TraceID("t1"), partial.TraceID)
	assert.ErrorIs(t, err, boom)

	// the healthy subscriber still ran to completion
	val, err := store.Get(context.Background(), "t1", "seen")
	require.NoError(t, err)
	assert.Equal(t, "true", string(val))
}

func TestPublishRecoversPanics(t *testing.T) {
	d, _ := newDispatcher(t, 0,
		&api.Step{
			Name: "panicky", Kind: api.TriggerEvent,
			Subscribes: []api.Topic{"data.received"},
			Handler: func(
				context.Context, json.RawMessage, *api.Context,
			) (*api.Response, error) {
				panic("kaboom")
			},
		},
	)

	err := publishEvent(t, d, "data.received", nil, "t1")

	var partial *api.PartialDispatchError
	require.ErrorAs(t, err, &partial)
	require.Len(t, partial.Failures, 1)
	assert.Contains(t, partial.Failures[0].Err.Error(), "kaboom")
}

func TestEmitCascadeSettlesBeforePublishReturns(t *testing.T) {
	d, store := newDispatcher(t, 0,
		&api.Step{
			Name: "relay", Kind: api.TriggerEvent,
			Subscribes: []api.Topic{"order.created"},
			Emits:      []api.Topic{"order.enriched"},
			Handler: func(
				ctx context.Context, input json.RawMessage, ec *api.Context,
			) (*api.Response, error) {
				return nil, ec.Emit(ctx, "order.enriched", json.RawMessage(input))
			},
		},
		&api.Step{
			Name: "sink", Kind: api.TriggerEvent,
			Subscribes: []api.Topic{"order.enriched"},
			Handler: func(
				ctx context.Context, input json.RawMessage, ec *api.Context,
			) (*api.Response, error) {
				return nil, ec.State().Set(
					ctx, string(ec.TraceID()), "order", input,
				)
			},
		},
	)

	payload := map[string]any{"items": []any{"p1"}}
	require.NoError(t, publishEvent(t, d, "order.created", payload, "t9"))

	val, err := store.Get(context.Background(), "t9", "order")
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":["p1"]}`, string(val))
}

func TestEmitPropagatesTraceAndDepth(t *testing.T) {
	var depths []int
	var traces []api.TraceID
	var mu sync.Mutex

	note := func(ec *api.Context) {
		mu.Lock()
		defer mu.Unlock()
		depths = append(depths, ec.Depth())
		traces = append(traces, ec.TraceID())
	}

	d, _ := newDispatcher(t, 0,
		&api.Step{
			Name: "hop-one", Kind: api.TriggerEvent,
			Subscribes: []api.Topic{"start"},
			Handler: func(
				ctx context.Context, _ json.RawMessage, ec *api.Context,
			) (*api.Response, error) {
				note(ec)
				return nil, ec.Emit(ctx, "middle", nil)
			},
		},
		&api.Step{
			Name: "hop-two", Kind: api.TriggerEvent,
			Subscribes: []api.Topic{"middle"},
			Handler: func(
				ctx context.Context, _ json.RawMessage, ec *api.Context,
			) (*api.Response, error) {
				note(ec)
				return nil, nil
			},
		},
	)

	require.NoError(t, publishEvent(t, d, "start", nil, "t3"))
	assert.Equal(t, []int{0, 1}, depths)
	assert.Equal(t, []api.TraceID{"t3", "t3"}, traces)
}

func TestEmitDepthGuard(t *testing.T) {
	d, _ := newDispatcher(t, 3,
		&api.Step{
			Name: "looper", Kind: api.TriggerEvent,
			Subscribes: []api.Topic{"loop"},
			Emits:      []api.Topic{"loop"},
			Handler: func(
				ctx context.Context, _ json.RawMessage, ec *api.Context,
			) (*api.Response, error) {
				return nil, ec.Emit(ctx, "loop", nil)
			},
		},
	)

	err := publishEvent(t, d, "loop", nil, "t1")
	assert.ErrorIs(t, err, api.ErrEmitDepthExceeded)
}

func TestEntryContextEnrichment(t *testing.T) {
	d, _ := newDispatcher(t, 0, eventStep("first", "a"))
	step := &api.Step{
		Name:  "entry",
		Kind:  api.TriggerAPI,
		Flows: []api.FlowLabel{"orders"},
	}

	ec := d.NewEntryContext("t7", step)
	assert.Equal(t, api.TraceID("t7"), ec.TraceID())
	assert.Zero(t, ec.Depth())
	assert.NotNil(t, ec.Logger())
	assert.NotNil(t, ec.State())
}
