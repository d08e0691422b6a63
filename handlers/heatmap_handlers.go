package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"heatlens/api/models"
	"heatlens/api/query"
)

// HeatmapSource resolves heatmap requests and reports whether the result was
// served from cache.
type HeatmapSource interface {
	Heatmap(ctx context.Context, req models.HeatmapRequest) (query.Result, bool, error)
}

type HeatmapHandlers struct {
	Resolver HeatmapSource
	log      zerolog.Logger
	now      func() time.Time
}

func NewHeatmapHandlers(resolver HeatmapSource, logger zerolog.Logger) *HeatmapHandlers {
	return &HeatmapHandlers{Resolver: resolver, log: logger, now: time.Now}
}

var validRanges = map[string]bool{"all": true, "7d": true, "30d": true}

// GetHeatmap resolves one heatmap. Either a named range or explicit
// start_date/end_date select the window; the named form is preferred because
// it shares cache entries with the warmer.
func (h *HeatmapHandlers) GetHeatmap(c *gin.Context) {
	req := models.HeatmapRequest{
		SiteID:      c.Query("site_id"),
		PageURL:     c.Query("page_url"),
		DeviceType:  c.Query("device_type"),
		HeatmapType: c.DefaultQuery("heatmap_type", models.HeatmapClick),
		Range:       c.Query("range"),
	}
	if req.SiteID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site_id query parameter is required"})
		return
	}
	if req.PageURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_url query parameter is required"})
		return
	}
	switch req.HeatmapType {
	case models.HeatmapClick, models.HeatmapScroll, models.HeatmapRead:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "heatmap_type must be one of 'click', 'scroll', 'read'"})
		return
	}

	if req.Range != "" {
		if !validRanges[req.Range] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "range must be one of 'all', '7d', '30d'"})
			return
		}
		req.ApplyRange(h.now())
	} else {
		var ok bool
		if req.Start, ok = parseDateParam(c, "start_date"); !ok {
			return
		}
		if req.End, ok = parseDateParam(c, "end_date"); !ok {
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	res, cached, err := h.Resolver.Heatmap(ctx, req)
	if err != nil {
		h.log.Error().Err(err).Str("site_id", req.SiteID).Str("type", req.HeatmapType).Msg("heatmap resolution failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve heatmap"})
		return
	}

	resp := gin.H{
		"success":        true,
		"data":           res.Points,
		"cached":         cached,
		"from_aggregate": res.FromAggregate,
	}
	if !res.LastUpdated.IsZero() {
		resp["last_updated"] = res.LastUpdated
	}
	c.JSON(http.StatusOK, resp)
}

// parseDateParam reads an optional date query parameter, accepting RFC3339 or
// a bare date. A false return means the handler already wrote the error.
func parseDateParam(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid '" + name + "' format. Use RFC3339 or YYYY-MM-DD"})
	return time.Time{}, false
}
