// Package server exposes the simulation engine and trace inspection over HTTP.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/cxd309/junction-walk/internal/config"
	"github.com/cxd309/junction-walk/internal/engine"
	"github.com/cxd309/junction-walk/internal/graph"
	"github.com/cxd309/junction-walk/internal/mobility"
	"github.com/cxd309/junction-walk/internal/tracecache"
)

// errTraceOutsideDir is returned for trace names that are absolute or climb
// out of the trace directory.
var errTraceOutsideDir = errors.New("trace must be a relative path inside the trace directory")

// errNoTraceDir is returned for file traces when no trace directory is set.
var errNoTraceDir = errors.New("file traces are disabled; send trace_data")

// Server is the HTTP API. Simulations run against their own registry so
// visit ledgers never leak between requests; inspection uses the long-lived
// registry passed to New.
type Server struct {
	router   *gin.Engine
	traces   *tracecache.Registry
	traceDir string
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds the router. traces serves GET /v1/graphs.
func New(traces *tracecache.Registry, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		router:   gin.New(),
		traces:   traces,
		traceDir: cfg.TraceDir,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(gin.Recovery(), s.requestLogger())
	if len(cfg.CORSOrigins) > 0 {
		cc := cors.DefaultConfig()
		if lo.Contains(cfg.CORSOrigins, "*") {
			cc.AllowAllOrigins = true
		} else {
			cc.AllowOrigins = cfg.CORSOrigins
		}
		cc.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		s.router.Use(cors.New(cc))
	}

	v1 := s.router.Group("/v1")
	v1.GET("/health", s.health)
	v1.POST("/simulate", s.simulate)
	v1.GET("/graphs", s.inspect)
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) simulate(c *gin.Context) {
	var input engine.SimulationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid input JSON: %v", err)})
		return
	}
	if input.TraceData == "" {
		path, err := s.resolve(input.Mobility.TraceFile)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		input.Mobility.TraceFile = path
	}

	log, err := engine.Simulate(c.Request.Context(), input, s.logger)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, log)
}

// GraphReport is the GET /v1/graphs response.
type GraphReport struct {
	Trace  string           `json:"trace"`
	Report graph.Report     `json:"report"`
	Parse  graph.ParseStats `json:"parse"`
	Cache  tracecache.Stats `json:"cache"`
}

func (s *Server) inspect(c *gin.Context) {
	name := c.Query("trace")
	path, err := s.resolve(name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, err := s.traces.GetFile(c.Request.Context(), path)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ps, _ := s.traces.ParseStats(path)
	c.JSON(http.StatusOK, GraphReport{
		Trace:  name,
		Report: graph.Analyze(g, 0),
		Parse:  ps,
		Cache:  s.traces.Stats(),
	})
}

// resolve maps a client trace name to a path under the trace directory.
func (s *Server) resolve(name string) (string, error) {
	if s.traceDir == "" {
		return "", errNoTraceDir
	}
	if name == "" || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%q: %w", name, errTraceOutsideDir)
	}
	return filepath.Join(s.traceDir, name), nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, config.ErrInvalid), errors.Is(err, mobility.ErrEmptyGraph):
		return http.StatusUnprocessableEntity
	case errors.Is(err, mobility.ErrInconsistentTime):
		return http.StatusInternalServerError
	case errors.Is(err, tracecache.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
