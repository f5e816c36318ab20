// Package api provides the HTTP REST API for a meshlink node.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldlink/meshlink/pkg/router"
	"github.com/fieldlink/meshlink/pkg/storage"
)

// Server exposes the routing core over HTTP.
type Server struct {
	node       *router.Router
	store      *storage.MessageStore
	engine     *gin.Engine
	addr       string
	httpServer *http.Server
}

// Config holds server configuration.
type Config struct {
	Addr         string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:         ":8080",
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// NewServer creates the HTTP API server.
func NewServer(node *router.Router, store *storage.MessageStore, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(LoggingMiddleware())
	engine.Use(gin.Recovery())
	if config.EnableCORS {
		engine.Use(CORSMiddleware())
	}

	s := &Server{
		node:   node,
		store:  store,
		engine: engine,
		addr:   config.Addr,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/status", s.handleStatus)

		channels := v1.Group("/channels")
		{
			channels.GET("", s.handleListChannels)
			channels.POST("/join", s.handleJoinChannel)
			channels.POST("/leave", s.handleLeaveChannel)
			channels.POST("/invite", s.handleInviteChannel)
			channels.DELETE("/:channelID", s.handleDeleteChannel)
		}

		messages := v1.Group("/messages")
		{
			messages.POST("", s.handleSendMessage)
			messages.GET("/:channelID", s.handleListMessages)
		}
	}
}

// Handler returns the underlying HTTP handler, for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start runs the server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("🌐 HTTP API listening on %s\n", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Stop shuts the server down immediately with a short grace period.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
