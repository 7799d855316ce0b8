// Package api serves the meteor engine's read and control surface over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/meteor-showers/core"
	"github.com/signalsfoundry/meteor-showers/engine"
	"github.com/signalsfoundry/meteor-showers/internal/logging"
	"github.com/signalsfoundry/meteor-showers/internal/observability"
)

// RequestIDHeader carries the request id in and out of the API.
const RequestIDHeader = "X-Request-ID"

const shutdownTimeout = 10 * time.Second

// Server bundles the router and the engine it exposes.
type Server struct {
	addr     string
	engine   *engine.Engine
	metrics  *observability.Collector
	observer *core.Observer
	log      logging.Logger
	router   *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address used by Run.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithMetrics records request metrics and serves /metrics.
func WithMetrics(c *observability.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithObserver adds local altitude and azimuth to shower responses.
func WithObserver(o core.Observer) Option {
	return func(s *Server) { s.observer = &o }
}

// WithLogger sets the base request logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New constructs a server with routes and middleware.
func New(e *engine.Engine, opts ...Option) *Server {
	s := &Server{
		addr:   ":8080",
		engine: e,
		log:    logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.log = s.log.With(logging.String("component", "api"))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	if s.metrics != nil {
		router.Use(s.recordMetrics())
	}
	s.router = router
	s.registerRoutes()
	return s
}

// Router exposes the underlying gin engine (for tests).
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info(ctx, "http api listening", logging.String("addr", s.addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.router.Group("/v1")
	{
		v1.GET("/showers", s.handleListShowers)
		v1.GET("/showers/:id", s.handleGetShower)
		v1.GET("/showers/:id/activity", s.handleShowerActivity)
		v1.GET("/active", s.handleActive)

		v1.GET("/search/around", s.handleSearchAround)
		v1.GET("/search/complete", s.handleComplete)

		v1.GET("/streams", s.handleStreams)
		v1.PUT("/streams/visible", s.handleSetVisible)

		v1.GET("/update/status", s.handleUpdateStatus)
		v1.POST("/update", s.handleRequestUpdate)

		v1.GET("/messages", s.handleMessages)
	}
}

// requestLogger attaches a request id and a request-scoped logger, honouring
// an id supplied by the caller.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(RequestIDHeader); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, log := logging.WithRequestLogger(ctx, s.log)
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, logging.RequestIDFromContext(ctx))

		start := time.Now()
		c.Next()

		log.Debug(ctx, "http request",
			logging.String("method", c.Request.Method),
			logging.String("route", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("took", time.Since(start)),
		)
	}
}

func (s *Server) recordMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.metrics.ObserveHTTP(c.FullPath(), c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

func errorJSON(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}
