package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"heatlens/api/sessions"
)

type SessionHandlers struct {
	Recon *sessions.Reconstructor
	log   zerolog.Logger
}

func NewSessionHandlers(recon *sessions.Reconstructor, logger zerolog.Logger) *SessionHandlers {
	return &SessionHandlers{Recon: recon, log: logger}
}

// GetFunnel returns one session's events in time order.
func (h *SessionHandlers) GetFunnel(c *gin.Context) {
	siteID := c.Query("site_id")
	if siteID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site_id query parameter is required"})
		return
	}
	sessionID := c.Param("session_id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	events, err := h.Recon.Funnel(ctx, siteID, sessionID)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("funnel query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve session funnel"})
		return
	}
	if len(events) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": events})
}

// GetFunnelOverview reconstructs the page funnels of the most recent sessions
// and folds them into a page-to-page transition matrix.
func (h *SessionHandlers) GetFunnelOverview(c *gin.Context) {
	siteID := c.Query("site_id")
	if siteID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site_id query parameter is required"})
		return
	}
	limit, ok := parseLimit(c, 200)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	funnels, err := h.Recon.RecentFunnels(ctx, siteID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("site_id", siteID).Msg("funnel overview failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve funnel overview"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"funnels":     funnels,
		"transitions": sessions.Transitions(funnels),
	})
}
