// Package api exposes an agent's lifecycle and state over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"solana-mm-agent/internal/config"
	"solana-mm-agent/internal/domain"
	"solana-mm-agent/internal/observability"
)

// Controller is the agent surface the server drives.
type Controller interface {
	Name() string
	Address() string
	Start(ctx context.Context) error
	Stop()
	State() domain.AgentState
}

// Server is the host HTTP control surface.
type Server struct {
	router  *gin.Engine
	agent   Controller
	addr    string
	server  *http.Server
	logger  zerolog.Logger
	started time.Time
}

// NewServer creates a server bound to addr.
func NewServer(addr string, agent Controller) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:  gin.New(),
		agent:   agent,
		addr:    addr,
		logger:  config.NewLogger("api"),
		started: time.Now(),
	}
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggerMiddleware())
	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/state", s.handleState)
	s.router.POST("/start", s.handleStart)
	s.router.POST("/stop", s.handleStop)
	s.router.GET("/metrics", gin.WrapH(observability.Handler()))
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("Stopping API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := s.logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = s.logger.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("API request")
	}
}
