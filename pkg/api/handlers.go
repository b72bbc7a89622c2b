package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/daybreaklabs/daybreak/pkg/engine"
	"github.com/daybreaklabs/daybreak/pkg/storage"
	"github.com/daybreaklabs/daybreak/pkg/types"
	"github.com/gin-gonic/gin"
)

// maxUsableAccuracyMeters is the post-filter bound: a fix looser than
// this is stored but never trusted for judgment.
const maxUsableAccuracyMeters = 500

type scheduleRequest struct {
	UserRef        string         `json:"user_ref" binding:"required"`
	CustomerRef    string         `json:"customer_ref" binding:"required"`
	StartAt        time.Time      `json:"start_at" binding:"required"`
	EndAt          time.Time      `json:"end_at" binding:"required"`
	HomeLocation   types.GeoPoint `json:"home_location"`
	TargetLocation types.GeoPoint `json:"target_location" binding:"required"`
	RadiusMeters   float64        `json:"target_radius_meters"`
	PenaltyAmount  int64          `json:"penalty_amount"`
	Currency       string         `json:"currency" binding:"required"`
}

func (s *Server) handleSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ch := &types.Challenge{
		UserRef:            req.UserRef,
		CustomerRef:        req.CustomerRef,
		StartAt:            req.StartAt,
		EndAt:              req.EndAt,
		HomeLocation:       req.HomeLocation,
		TargetLocation:     req.TargetLocation,
		TargetRadiusMeters: req.RadiusMeters,
		PenaltyAmount:      req.PenaltyAmount,
		Currency:           req.Currency,
	}

	created, err := s.engine.Schedule(c.Request.Context(), ch)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

type arrivalRequest struct {
	Lat            float64          `json:"lat"`
	Lng            float64          `json:"lng"`
	AccuracyMeters float64          `json:"accuracy_meters"`
	ObservedAt     time.Time        `json:"observed_at" binding:"required"`
	Source         types.PingSource `json:"source"`
	ClientTime     *time.Time       `json:"client_time,omitempty"`
}

func (s *Server) handleArrival(c *gin.Context) {
	var req arrivalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	source := req.Source
	if source == "" {
		source = types.PingSourceGPS
	}

	ping := &types.LocationPing{
		Lat:            req.Lat,
		Lng:            req.Lng,
		AccuracyMeters: req.AccuracyMeters,
		ObservedAt:     req.ObservedAt.UTC(),
		Source:         source,
		IsValid:        req.AccuracyMeters > 0 && req.AccuracyMeters <= maxUsableAccuracyMeters,
	}

	out, err := s.engine.RecordArrival(c.Request.Context(), c.Param("id"), ping)
	if err != nil {
		// A terminal settlement failure still carries the judged
		// outcome; surface both.
		if engine.IsTerminalSettlement(err) && out != nil {
			c.JSON(http.StatusOK, withSkew(gin.H{"outcome": out, "settlement_error": err.Error()}, s.skewMillis(req.ClientTime)))
			return
		}
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, withSkew(gin.H{"outcome": out}, s.skewMillis(req.ClientTime)))
}

func (s *Server) handleGetStatus(c *gin.Context) {
	out, err := s.engine.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleManualRetry(c *gin.Context) {
	attempt, err := s.engine.RetryAttempt(c.Request.Context(), c.Param("id"))
	if err != nil {
		if engine.IsTerminalSettlement(err) {
			c.JSON(http.StatusConflict, gin.H{"attempt": attempt, "error": err.Error()})
			return
		}
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempt": attempt})
}

// Cron-style triggers. The in-process tickers cover the normal path;
// these exist for external schedulers and operators. Redundant firing
// is harmless by design.
func (s *Server) handleExpirySweep(c *gin.Context) {
	s.expiry.RunOnce(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

func (s *Server) handleRetrySweep(c *gin.Context) {
	s.retry.RunOnce(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

// renderError maps the engine's error taxonomy onto HTTP statuses.
// AlreadyResolved never reaches here: it is a success payload.
func (s *Server) renderError(c *gin.Context, err error) {
	switch {
	case engine.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrStatusConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case engine.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retryable": true})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// skewMillis reports client clock skew for diagnostics. Correctness
// decisions never use it.
func (s *Server) skewMillis(clientTime *time.Time) *int64 {
	if clientTime == nil {
		return nil
	}
	ms := s.clock.SkewOffset(*clientTime).Milliseconds()
	return &ms
}

func withSkew(h gin.H, skew *int64) gin.H {
	if skew != nil {
		h["clock_skew_ms"] = *skew
	}
	return h
}
