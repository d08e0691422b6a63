package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"heatlens/api/cache"
	"heatlens/api/store"
)

// Dashboard statistics endpoints. Results go through the stats cache; keys
// are built from the literal query parameters, so the default windows cache
// under the empty-parameter key and only drift by the cache TTL.
type StatsHandlers struct {
	Events   *store.EventStore
	Sessions *store.SessionStore
	Cache    *cache.StatsCache
	log      zerolog.Logger
}

func NewStatsHandlers(events *store.EventStore, sessions *store.SessionStore, statsCache *cache.StatsCache, logger zerolog.Logger) *StatsHandlers {
	return &StatsHandlers{Events: events, Sessions: sessions, Cache: statsCache, log: logger}
}

// parseTimeRange reads optional start/end query parameters, defaulting to the
// trailing 7 days. A false return means the error response was already
// written.
func parseTimeRange(c *gin.Context) (time.Time, time.Time, bool) {
	var start, end time.Time
	var err error

	if raw := c.Query("start"); raw != "" {
		start, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'start' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
	} else {
		start = time.Now().UTC().Add(-7 * 24 * time.Hour)
	}

	if raw := c.Query("end"); raw != "" {
		end, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'end' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
	} else {
		end = time.Now().UTC()
	}
	return start, end, true
}

func parseLimit(c *gin.Context, fallback uint64) (uint64, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return fallback, true
	}
	limit, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || limit == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
		return 0, false
	}
	return limit, true
}

func (h *StatsHandlers) GetEventCountsOverTime(c *gin.Context) {
	siteID := c.Query("site_id")
	if siteID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site_id query parameter is required"})
		return
	}
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return
	}
	eventTypeFilter := c.Query("event_type")

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	key := cache.StatsKey(siteID, "event-counts", interval, eventTypeFilter, c.Query("start"), c.Query("end"))
	data, cached, err := h.Cache.Fetch(key, func() (any, error) {
		return h.Events.EventCountsOverTime(ctx, siteID, interval, start, end, eventTypeFilter)
	})
	if err != nil {
		h.log.Error().Err(err).Str("site_id", siteID).Msg("event counts query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "cached": cached})
}

func (h *StatsHandlers) GetUniqueSessionsOverTime(c *gin.Context) {
	siteID := c.Query("site_id")
	if siteID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site_id query parameter is required"})
		return
	}
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return
	}

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	key := cache.StatsKey(siteID, "unique-sessions", interval, c.Query("start"), c.Query("end"))
	data, cached, err := h.Cache.Fetch(key, func() (any, error) {
		return h.Events.UniqueSessionsOverTime(ctx, siteID, interval, start, end)
	})
	if err != nil {
		h.log.Error().Err(err).Str("site_id", siteID).Msg("unique sessions query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve unique session statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "cached": cached})
}

func (h *StatsHandlers) GetTopPages(c *gin.Context) {
	siteID := c.Query("site_id")
	if siteID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site_id query parameter is required"})
		return
	}

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c, 10)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	key := cache.StatsKey(siteID, "top-pages", c.Query("start"), c.Query("end"), c.Query("limit"))
	data, cached, err := h.Cache.Fetch(key, func() (any, error) {
		return h.Events.TopPagesForSite(ctx, siteID, start, end, limit)
	})
	if err != nil {
		h.log.Error().Err(err).Str("site_id", siteID).Msg("top pages query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top pages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "cached": cached})
}

func (h *StatsHandlers) ListSessions(c *gin.Context) {
	siteID := c.Query("site_id")
	if siteID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site_id query parameter is required"})
		return
	}

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c, 100)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	key := cache.StatsKey(siteID, "sessions", c.Query("start"), c.Query("end"), c.Query("limit"))
	data, cached, err := h.Cache.Fetch(key, func() (any, error) {
		return h.Sessions.ListSessions(ctx, siteID, start, end, limit)
	})
	if err != nil {
		h.log.Error().Err(err).Str("site_id", siteID).Msg("session list query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "cached": cached})
}
