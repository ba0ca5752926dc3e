package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/riftgate/llmgateway/internal/infrastructure/backpressure"
	"github.com/riftgate/llmgateway/internal/infrastructure/monitoring"
	"github.com/riftgate/llmgateway/internal/infrastructure/ratelimit"
	"github.com/riftgate/llmgateway/internal/interfaces/http/handlers"
)

// Config configures the HTTP server, including the admission-control knobs
// wired ahead of the route handlers.
type Config struct {
	Host            string
	Port            int
	Mode            string // debug, release
	SharedSecret    string // empty disables auth middleware
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

// Handlers bundles every handler the router wires in, constructed by the
// composition root (internal/application.App) and passed in fully formed.
type Handlers struct {
	Chat      *handlers.ChatHandler
	Responses *handlers.ResponsesHandler
	Sessions  *handlers.SessionsHandler
	Tools     *handlers.ToolsHandler
	Health    *handlers.HealthHandler
	Models    *handlers.ModelsHandler
	WSDebug   *handlers.WSDebugHandler
}

// Server wraps gin's engine in an http.Server so Start/Stop can be driven
// independently of route construction.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer builds the gin engine, registers middleware in order (request
// id → access log → auth → backpressure → rate limit), and registers every
// route the gateway exposes.
func NewServer(cfg Config, h Handlers, limiter *ratelimit.Limiter, gate *backpressure.Gate, monitor *monitoring.Monitor, logger *zap.Logger) *Server {
	cfg = cfg.withDefaults()

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(zapLogger(logger))
	router.Use(sharedSecretAuth(cfg.SharedSecret))

	router.GET("/health", h.Health.Health)
	router.GET("/health/ready", h.Health.Ready)
	if monitor != nil {
		router.GET("/metrics", gin.WrapH(monitor.PrometheusHandler()))
	}

	v1 := router.Group("/v1")
	v1.Use(backpressureGate(gate))
	v1.Use(rateLimit(limiter))
	{
		v1.POST("/chat/completions", h.Chat.ChatCompletions)
		v1.POST("/responses", h.Responses.CreateResponse)
		v1.GET("/models", h.Models.ListModels)

		v1.POST("/sessions", h.Sessions.CreateSession)
		v1.GET("/sessions/:id", h.Sessions.GetSession)
		v1.DELETE("/sessions/:id", h.Sessions.DeleteSession)

		v1.GET("/tools", h.Tools.ListTools)
		v1.POST("/tools/execute", h.Tools.ExecuteTool)

		v1.GET("/stream/ws", h.WSDebug.Stream)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		server: &http.Server{Addr: addr, Handler: router},
		logger: logger,
	}
}

// Start runs the server in the background; a non-shutdown failure is
// logged rather than returned.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop drains in-flight requests within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
