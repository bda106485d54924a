// Package engine implements the orchestration core: the step registry
// and its frozen topic index, the dispatcher that fans events out to
// subscribers, the execution-context factory, and the cron trigger
// adapter.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loomworks/loom/internal/config"
	"github.com/loomworks/loom/pkg/api"
	"github.com/loomworks/loom/pkg/log"
)

// Engine wires the frozen registry, the dispatcher, the state store, and
// the cron runner into one lifecycle
type Engine struct {
	ctx        context.Context
	cancel     context.CancelFunc
	cfg        *config.Config
	index      *Index
	dispatcher *Dispatcher
	state      api.State
	hub        *Hub
	cron       *CronRunner
	logger     *slog.Logger
	wg         sync.WaitGroup
}

var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// New registers the given steps, freezes the registry, and validates
// every cron expression. Any registration failure is fatal
func New(
	cfg *config.Config, store api.State, logger *slog.Logger,
	steps ...*api.Step,
) (*Engine, error) {
	registry := NewRegistry()
	for _, step := range steps {
		if err := registry.Register(step); err != nil {
			return nil, err
		}
	}
	index := registry.BuildIndex()

	hub := NewHub()
	dispatcher := NewDispatcher(index, store, logger, hub, cfg.MaxEmitDepth)

	cron, err := NewCronRunner(
		dispatcher, index.CronSteps(), logger, time.Now, NewTimer,
	)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		index:      index,
		dispatcher: dispatcher,
		state:      store,
		hub:        hub,
		cron:       cron,
		logger:     logger,
	}, nil
}

// Start launches the cron runner and the periodic state sweep
func (e *Engine) Start() {
	e.logger.Info("Engine starting",
		slog.Int("steps", len(e.index.Steps())),
		slog.Int("cron_steps", len(e.index.CronSteps())))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.cron.Run(e.ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.sweepLoop()
	}()
}

// Stop cancels background work and waits for in-flight cascades to
// settle, up to the configured shutdown timeout
func (e *Engine) Stop() error {
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("Engine stopped")
		return nil
	case <-time.After(e.cfg.ShutdownTimeout):
		return ErrShutdownTimeout
	}
}

// Inject publishes an externally produced event under a freshly minted
// trace identifier and waits for its cascade to settle
func (e *Engine) Inject(
	ctx context.Context, topic api.Topic, data any,
) (api.TraceID, error) {
	traceID := api.NewTraceID()
	ev, err := api.NewEvent(topic, data, traceID)
	if err != nil {
		return traceID, err
	}
	return traceID, e.dispatcher.Publish(ctx, ev)
}

// InvokeAPI runs an API step's handler as a direct entry point. API
// steps are not subscribers; the handler is invoked with the raw request
// body and a fresh entry context
func (e *Engine) InvokeAPI(
	ctx context.Context, step *api.Step, body json.RawMessage,
) (*api.Response, api.TraceID, error) {
	traceID := api.NewTraceID()
	ec := e.dispatcher.NewEntryContext(traceID, step)
	resp, err := safeInvoke(ctx, step, body, ec)
	return resp, traceID, err
}

// Index exposes the frozen registry for introspection
func (e *Engine) Index() *Index {
	return e.index
}

// Hub exposes the dispatch observer hub
func (e *Engine) Hub() *Hub {
	return e.hub
}

// State exposes the configured state store
func (e *Engine) State() api.State {
	return e.state
}

// CronRunner exposes the cron adapter, primarily so callers can fire a
// tick on demand
func (e *Engine) CronRunner() *CronRunner {
	return e.cron
}

func (e *Engine) sweepLoop() {
	ticker := time.NewTicker(e.cfg.StateSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if err := e.state.Cleanup(e.ctx); err != nil {
				e.logger.Warn("State sweep failed", log.Error(err))
			}
		}
	}
}

// safeInvoke runs a handler, converting panics into errors
func safeInvoke(
	ctx context.Context, step *api.Step, input json.RawMessage,
	ec *api.Context,
) (resp *api.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return step.Handler(ctx, input, ec)
}

func invokeHandler(
	ctx context.Context, step *api.Step, input json.RawMessage,
	ec *api.Context,
) error {
	_, err := safeInvoke(ctx, step, input, ec)
	return err
}
