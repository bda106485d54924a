package loom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/loomworks/loom/internal/config"
	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/server"
	"github.com/loomworks/loom/internal/state"
	"github.com/loomworks/loom/pkg/api"
	"github.com/loomworks/loom/pkg/log"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Step          = api.Step
	Handler       = api.Handler
	Context       = api.Context
	Response      = api.Response
	Event         = api.Event
	Topic         = api.Topic
	TraceID       = api.TraceID
	Name          = api.Name
	FlowLabel     = api.FlowLabel
	TriggerKind   = api.TriggerKind
	State         = api.State
	EmitFunc      = api.EmitFunc
	Config        = config.Config
	RedisConfig   = config.RedisConfig
	ErrorResponse = api.ErrorResponse

	PartialDispatchError = api.PartialDispatchError
	SubscriberError      = api.SubscriberError

	// Runtime bundles a configured engine with its HTTP surface
	Runtime struct {
		engine     *engine.Engine
		server     *server.Server
		httpServer *http.Server
		cfg        *config.Config
		logger     *slog.Logger
		mu         sync.Mutex
	}
)

const version = "0.1.0"

// Re-export trigger kinds for convenience.

const (
	TriggerEvent = api.TriggerEvent
	TriggerAPI   = api.TriggerAPI
	TriggerCron  = api.TriggerCron
	TriggerNoop  = api.TriggerNoop
)

// Re-export common errors so callers can test with errors.Is.

var (
	ErrInvalidStep       = api.ErrInvalidStep
	ErrStepExists        = api.ErrStepExists
	ErrInvalidCron       = api.ErrInvalidCron
	ErrEmitDepthExceeded = api.ErrEmitDepthExceeded
	ErrStateBackend      = api.ErrStateBackend
)

// DefaultConfig returns the runtime defaults, before environment
// overrides
func DefaultConfig() *Config {
	return config.NewDefaultConfig()
}

// ConfigFromEnv builds a config from defaults plus environment
// variables, validated
func ConfigFromEnv() (*Config, error) {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Store constructors
// These wrap the internal/state package so external callers never need
// to import internal packages.

// NewMemoryStore returns a non-durable in-process state store, best for
// tests and single-node deployments
func NewMemoryStore() State {
	return state.NewMemoryStore()
}

// NewFileStore returns a state store persisting to a local directory
func NewFileStore(dir string) (State, error) {
	return state.NewFileStore(dir)
}

// NewBlobStore returns a state store persisting to a cloud blob bucket
// addressed by URL (s3://, gs://, azblob://, file://)
func NewBlobStore(ctx context.Context, bucketURL string) (State, error) {
	return state.NewBlobStore(ctx, bucketURL)
}

// NewRedisStore returns a state store persisting in Redis under the
// given key prefix
func NewRedisStore(client *redis.Client, prefix string) State {
	return state.NewRedisStore(client, prefix)
}

// New builds a runtime with the store implied by cfg.StateBackend
func New(cfg *Config, steps ...*Step) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithStore(cfg, store, steps...)
}

// NewWithStore builds a runtime over a caller-provided state store
func NewWithStore(
	cfg *Config, store State, steps ...*Step,
) (*Runtime, error) {
	logger := log.NewWithLevel("loom", version, log.ParseLevel(cfg.LogLevel))

	eng, err := engine.New(cfg, store, logger, steps...)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		engine: eng,
		server: server.NewServer(eng, logger),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Start launches the cron runner and background maintenance
func (r *Runtime) Start() {
	r.engine.Start()
}

// Stop shuts the runtime down: the HTTP listener first so no new work
// arrives, then the websockets and the engine, waiting for in-flight
// cascades up to the configured shutdown timeout
func (r *Runtime) Stop() error {
	r.mu.Lock()
	srv := r.httpServer
	r.httpServer = nil
	r.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), r.cfg.ShutdownTimeout,
		)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			r.logger.Error("HTTP shutdown failed", log.Error(err))
		}
	}

	r.server.CloseWebSockets()
	return r.engine.Stop()
}

// Inject publishes an external event and waits for its cascade to settle
func (r *Runtime) Inject(
	ctx context.Context, topic Topic, data any,
) (TraceID, error) {
	return r.engine.Inject(ctx, topic, data)
}

// State returns the runtime's state store
func (r *Runtime) State() State {
	return r.engine.State()
}

// Router returns the configured HTTP handler, for embedding in an
// existing server
func (r *Runtime) Router() http.Handler {
	return r.server.SetupRoutes()
}

// Serve starts the runtime and blocks serving HTTP on the configured
// host and port until Stop shuts the listener down
func (r *Runtime) Serve() error {
	r.Start()

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", r.cfg.APIHost, r.cfg.APIPort),
		Handler: r.Router(),
	}
	r.mu.Lock()
	r.httpServer = srv
	r.mu.Unlock()

	r.logger.Info("HTTP server listening", slog.String("addr", srv.Addr))
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openStore(cfg *Config) (State, error) {
	switch cfg.StateBackend {
	case config.BackendFile:
		if cfg.StateBucketURL != "" {
			return state.NewBlobStore(context.Background(), cfg.StateBucketURL)
		}
		return state.NewFileStore(cfg.StateDir)
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return state.NewRedisStore(client, cfg.Redis.Prefix), nil
	default:
		return state.NewMemoryStore(), nil
	}
}
