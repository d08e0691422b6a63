package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"heatlens/api/ingest"
	"heatlens/api/normalizer"
)

// maxTrackBody bounds a single tracking request body.
const maxTrackBody = 1 << 20

type TrackHandlers struct {
	Gateway *ingest.Gateway
	log     zerolog.Logger
}

func NewTrackHandlers(gw *ingest.Gateway, logger zerolog.Logger) *TrackHandlers {
	return &TrackHandlers{Gateway: gw, log: logger}
}

// TrackEvents accepts a tracking beacon: a single event object, an
// {"events": [...]} batch, or a bare array. The batch is accepted or rejected
// whole.
func (h *TrackHandlers) TrackEvents(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTrackBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}
	if len(body) > maxTrackBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
		return
	}

	received, err := h.Gateway.Ingest(c.Request.Context(), c.ClientIP(), body)
	if err != nil {
		var rateErr *ingest.RateLimitError
		if errors.As(err, &rateErr) {
			retryAfter := int(time.Until(rateErr.ResetTime).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.Header("X-RateLimit-Remaining", "0")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		var valErr *normalizer.ValidationError
		if errors.As(err, &valErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Error()})
			return
		}
		h.log.Error().Err(err).Msg("tracking request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "received": received})
}

// Health reports liveness plus the ingestion degradation state. A degraded
// gateway still accepts events; this endpoint is what pagers watch.
func (h *TrackHandlers) Health(c *gin.Context) {
	status := "ok"
	code := http.StatusOK
	if h.Gateway.Degraded() {
		status = "degraded"
	}
	c.JSON(code, gin.H{
		"status":          status,
		"degraded":        h.Gateway.Degraded(),
		"buffered_events": h.Gateway.BufferedCount(),
	})
}
