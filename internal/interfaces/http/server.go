// Package http assembles the gin router and owns the HTTP server
// lifecycle.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/interfaces/http/handlers"
)

// Server wraps the standard HTTP server around the gin router.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config is the HTTP listener configuration.
type Config struct {
	Host string
	Port int
	Mode string // debug, release
}

// Handlers bundles the endpoint handlers the router mounts. Chat is the
// optional websocket endpoint; nil disables it.
type Handlers struct {
	Health        *handlers.HealthHandler
	Agents        *handlers.AgentHandler
	Conversations *handlers.ConversationHandler
	Memories      *handlers.MemoryHandler
	Tools         *handlers.ToolHandler
	Chat          gin.HandlerFunc
}

// NewServer builds the router and the server. Nothing listens until
// Start.
func NewServer(cfg Config, h Handlers, logger *zap.Logger) *Server {
	if cfg.Mode == "release" || cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	setupRoutes(router, h)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		logger: logger,
	}
}

// Start launches the listener in the background.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func setupRoutes(router *gin.Engine, h Handlers) {
	router.GET("/", h.Health.Root)
	router.GET("/health", h.Health.Health)
	router.GET("/health/llm", h.Health.HealthLLM)

	v1 := router.Group("/api/v1")
	{
		agents := v1.Group("/agents")
		{
			agents.GET("", h.Agents.List)
			agents.POST("", h.Agents.Create)
			agents.GET("/:id", h.Agents.Get)
			agents.PUT("/:id", h.Agents.Update)
			agents.DELETE("/:id", h.Agents.Delete)
		}

		conversations := v1.Group("/conversations")
		{
			conversations.GET("", h.Conversations.List)
			conversations.POST("", h.Conversations.Create)
			conversations.GET("/:id", h.Conversations.Get)
			conversations.PATCH("/:id", h.Conversations.Update)
			conversations.DELETE("/:id", h.Conversations.Delete)
			conversations.POST("/:id/messages", h.Conversations.SendMessage)
		}

		memories := v1.Group("/memories")
		{
			memories.GET("", h.Memories.List)
			memories.POST("", h.Memories.Create)
			memories.POST("/search", h.Memories.Search)
			memories.POST("/extract/:conversation_id", h.Memories.Extract)
			memories.GET("/:id", h.Memories.Get)
			memories.PATCH("/:id", h.Memories.Update)
			memories.DELETE("/:id", h.Memories.Delete)
		}

		tools := v1.Group("/tools")
		{
			tools.GET("", h.Tools.List)
			tools.GET("/stats", h.Tools.Stats)
			tools.POST("/execute", h.Tools.Execute)
			tools.GET("/servers", h.Tools.ListServers)
			tools.POST("/servers", h.Tools.AddServer)
			tools.DELETE("/servers/:id", h.Tools.RemoveServer)
			tools.GET("/servers/:id/tools", h.Tools.ServerTools)
		}

		if h.Chat != nil {
			v1.GET("/ws", h.Chat)
		}
	}
}

// ginLogger logs one line per request through zap.
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
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
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
