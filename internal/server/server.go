package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/pkg/api"
	"github.com/loomworks/loom/pkg/util"
)

// Server exposes the runtime over HTTP: the API trigger routes declared
// by registered steps, plus introspection and the dispatch event stream
type Server struct {
	engine   *engine.Engine
	logger   *slog.Logger
	validate *validator.Validate
	sockets  util.Set[*Client]
	mu       sync.Mutex
}

var (
	ErrInvalidJSON  = errors.New("invalid JSON request")
	ErrInvalidInput = errors.New("input validation failed")
	ErrStepNotFound = errors.New("step not found")
	ErrReadState    = errors.New("failed to read state")
	ErrClearState   = errors.New("failed to clear state")
)

// NewServer creates the HTTP surface over a running engine
func NewServer(eng *engine.Engine, logger *slog.Logger) *Server {
	return &Server{
		engine:   eng,
		logger:   logger,
		validate: validator.New(),
		sockets:  util.Set[*Client]{},
	}
}

// SetupRoutes configures and returns the HTTP router: one route per API
// trigger step, plus the fixed introspection endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return s.logger
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods",
			"GET, POST, PUT, DELETE, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", s.handleHealth)

	// One route per API trigger step
	for _, step := range s.engine.Index().Steps() {
		if step.Kind != api.TriggerAPI {
			continue
		}
		router.Handle(step.Method, step.Path, s.handleTrigger(step))
	}

	// Engine introspection
	eng := router.Group("/engine")
	{
		eng.GET("/steps", s.listSteps)
		eng.GET("/steps/:name", s.getStep)
		eng.GET("/flows", s.listFlows)
		eng.GET("/topics", s.listTopics)

		eng.GET("/state/:scope/:key", s.getState)
		eng.DELETE("/state/:scope", s.clearState)

		// WebSocket
		eng.GET("/ws", s.handleWebSocket)
	}

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Service: "loom",
		Status:  "healthy",
		Steps:   len(s.engine.Index().Steps()),
	})
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

// CloseWebSockets closes all active WebSocket connections.
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := s.sockets.Values()
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
