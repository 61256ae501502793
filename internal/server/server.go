package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nixmate/internal/history"
	"nixmate/internal/metrics"
	"nixmate/internal/operation"
	"nixmate/internal/progress"
	"nixmate/pkg/logging"
)

const (
	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second
)

// Runner executes operations. *orchestrator.Orchestrator implements it.
type Runner interface {
	Execute(ctx context.Context, op operation.Operation, cb progress.Callback) operation.Result
}

// HistorySource lists journal records. *history.Journal implements it.
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

// Status describes the running service.
type Status struct {
	Executor       string    `json:"executor"`
	Enhanced       bool      `json:"enhanced"`
	ResolverSource string    `json:"resolver_source,omitempty"`
	ProfileDir     string    `json:"profile_dir,omitempty"`
	CacheEntries   int       `json:"cache_entries"`
	StartedAt      time.Time `json:"started_at"`
}

// Config holds the dependencies of a Server. Runner and Metrics are required.
type Config struct {
	Listen  string
	Runner  Runner
	Metrics *metrics.Collector
	// Status is called on every /v1/status request.
	Status func() Status
	// History is optional; /v1/history answers 404 without it.
	History HistorySource
}

// Server is the HTTP front end.
type Server struct {
	cfg        Config
	engine     *gin.Engine
	httpServer *http.Server
}

// New creates a Server and registers its routes.
func New(cfg Config) *Server {
	if cfg.Status == nil {
		cfg.Status = func() Status { return Status{} }
	}
	// Route listings and debug warnings would end up on stdout.
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{cfg: cfg, engine: engine}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	h := &handlers{cfg: s.cfg}

	v1 := s.engine.Group("/v1")
	v1.POST("/operations", h.executeOperation)
	v1.GET("/metrics", h.metricsSnapshot)
	v1.GET("/status", h.status)
	v1.GET("/history", h.history)

	s.engine.GET("/metrics", gin.WrapH(s.cfg.Metrics.Handler()))
	s.engine.GET("/health", h.health)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address and serves in the background. The
// returned address is the one actually bound.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return "", err
	}
	// No write timeout: updates and builds hold the request open for as long
	// as the operation runs.
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Server", err, "HTTP server stopped")
		}
	}()
	logging.Info("Server", "Listening on %s", ln.Addr())
	return ln.Addr().String(), nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if !logging.Enabled(logging.LevelDebug) {
			return
		}
		logging.Debug("Server", "%s %s %d %s", c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
