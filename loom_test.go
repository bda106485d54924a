package loom_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom"
)

func greetingSteps(t *testing.T) []*loom.Step {
	t.Helper()
	return []*loom.Step{
		{
			Name: "greeter", Kind: loom.TriggerEvent,
			Subscribes: []loom.Topic{"person.arrived"},
			Handler: func(
				ctx context.Context, in json.RawMessage, ec *loom.Context,
			) (*loom.Response, error) {
				return nil, ec.State().Set(
					ctx, string(ec.TraceID()), "greeting", in,
				)
			},
		},
	}
}

func TestRuntimeInject(t *testing.T) {
	rt, err := loom.New(loom.DefaultConfig(), greetingSteps(t)...)
	require.NoError(t, err)

	traceID, err := rt.Inject(
		context.Background(), "person.arrived", map[string]any{"name": "Ada"},
	)
	require.NoError(t, err)

	val, err := rt.State().Get(
		context.Background(), string(traceID), "greeting",
	)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ada"}`, string(val))
}

func TestRuntimeRejectsBadConfig(t *testing.T) {
	cfg := loom.DefaultConfig()
	cfg.StateBackend = "carrier-pigeon"

	_, err := loom.New(cfg, greetingSteps(t)...)
	assert.Error(t, err)
}

func TestRuntimeRejectsBadStep(t *testing.T) {
	_, err := loom.New(loom.DefaultConfig(), &loom.Step{
		Name: "dangling", Kind: loom.TriggerEvent,
	})
	assert.ErrorIs(t, err, loom.ErrInvalidStep)
}

func TestRuntimeRouter(t *testing.T) {
	rt, err := loom.New(loom.DefaultConfig(), greetingSteps(t)...)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rt.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRuntimeStartStop(t *testing.T) {
	rt, err := loom.New(loom.DefaultConfig(), greetingSteps(t)...)
	require.NoError(t, err)

	rt.Start()
	assert.NoError(t, rt.Stop())
}

func TestRuntimeServeStopsOnStop(t *testing.T) {
	cfg := loom.DefaultConfig()
	cfg.APIHost = "127.0.0.1"
	cfg.APIPort = 0 // ephemeral port

	rt, err := loom.NewWithStore(
		cfg, loom.NewMemoryStore(), greetingSteps(t)...,
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- rt.Serve() }()

	// let the listener come up before shutting down
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, rt.Stop())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("STATE_BACKEND", "memory")
	t.Setenv("MAX_EMIT_DEPTH", "32")

	cfg, err := loom.ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, 32, cfg.MaxEmitDepth)
}

func TestConfigFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("API_PORT", "lots")

	_, err := loom.ConfigFromEnv()
	assert.Error(t, err)
}
