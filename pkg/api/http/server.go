package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aescanero/taskdag/internal/application/orchestrator"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP API server.
type Server struct {
	router       *gin.Engine
	server       *http.Server
	orchestrator *orchestrator.Manager
	validator    *orchestrator.Validator
	logger       *zap.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Addr         string
	Orchestrator *orchestrator.Manager
	Logger       *zap.Logger
}

// NewServer creates a new HTTP server.
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))
	router.Use(corsMiddleware())

	s := &Server{
		router:       router,
		orchestrator: cfg.Orchestrator,
		validator:    orchestrator.NewValidator(),
		logger:       cfg.Logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	return s
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/graph", s.handleLoadGraph)
		v1.GET("/graph", s.handleGetGraph)
		v1.POST("/graph/validate", s.handleValidateGraph)

		v1.POST("/execute", s.handleExecute)
		v1.POST("/execute/parallel", s.handleExecuteParallel)

		v1.GET("/status", s.handleAllStatuses)
		v1.GET("/results", s.handleAllResults)
		v1.GET("/events", s.handleEvents)

		v1.GET("/tasks/:id/status", s.handleTaskStatus)
		v1.GET("/tasks/:id/result", s.handleTaskResult)
		v1.GET("/tasks/:id/context", s.handleTaskContext)
		v1.POST("/tasks/:id/cancel", s.handleCancelTask)

		v1.POST("/cancel", s.handleCancelAll)
		v1.POST("/reset", s.handleReset)
	}
}

// SetupWebSocket adds a WebSocket handler to the server.
func (s *Server) SetupWebSocket(handler interface {
	HandleEventStream(*gin.Context)
}) {
	s.router.GET("/api/v1/events/ws", handler.HandleEventStream)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

// requestLogger is a middleware for request logging.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
