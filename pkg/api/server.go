package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/daybreaklabs/daybreak/pkg/clock"
	"github.com/daybreaklabs/daybreak/pkg/engine"
	"github.com/daybreaklabs/daybreak/pkg/events"
	"github.com/daybreaklabs/daybreak/pkg/log"
	"github.com/daybreaklabs/daybreak/pkg/metrics"
	"github.com/daybreaklabs/daybreak/pkg/sweep"
	"github.com/gin-gonic/gin"
)

// Server fronts the engine's operations over HTTP. Any RPC shape
// could sit here; the engine contracts do not change.
type Server struct {
	engine *engine.Engine
	clock  clock.Clock
	broker *events.Broker
	expiry *sweep.ExpiryReconciler
	retry  *sweep.RetrySweeper

	http *http.Server
}

// NewServer creates a new API server
func NewServer(eng *engine.Engine, clk clock.Clock, broker *events.Broker, expiry *sweep.ExpiryReconciler, retry *sweep.RetrySweeper) *Server {
	return &Server{
		engine: eng,
		clock:  clk,
		broker: broker,
		expiry: expiry,
		retry:  retry,
	}
}

// Router builds the gin handler. Split out so tests can drive it with
// httptest directly.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.observe())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/challenges", s.handleSchedule)
		v1.GET("/challenges/:id", s.handleGetStatus)
		v1.POST("/challenges/:id/arrival", s.handleArrival)
		v1.POST("/attempts/:id/retry", s.handleManualRetry)
		v1.POST("/sweeps/expiry", s.handleExpirySweep)
		v1.POST("/sweeps/retry", s.handleRetrySweep)
		v1.GET("/events", s.handleEvents)
	}

	return r
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger := log.WithComponent("api")
	logger.Info().Str("addr", addr).Msg("HTTP API listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// observe records per-route request metrics.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := metrics.NewTimer()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		timer.ObserveDurationVec(metrics.APIRequestDuration, route)
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   s.clock.Now().Format(time.RFC3339),
	})
}
