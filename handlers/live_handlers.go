package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"heatlens/api/realtime"
)

const liveWriteTimeout = 10 * time.Second

type LiveHandlers struct {
	Hub      *realtime.Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewLiveHandlers(hub *realtime.Hub, logger zerolog.Logger) *LiveHandlers {
	return &LiveHandlers{
		Hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The dashboard origin varies per deployment and the stream is
			// read-only, so origin filtering happens at the auth middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: logger,
	}
}

// Stream upgrades the connection and relays the site's live event stream
// until either side disconnects.
func (h *LiveHandlers) Stream(c *gin.Context) {
	siteID := c.Param("site_id")
	if siteID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site_id is required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	messages, err := h.Hub.Subscribe(ctx, siteID)
	if err != nil {
		h.log.Error().Err(err).Str("site_id", siteID).Msg("live subscription failed")
		return
	}
	h.log.Info().Str("site_id", siteID).Msg("live stream opened")

	// Drain client frames so close/ping handling works; the stream itself is
	// one-directional.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				msg.Nack()
				h.log.Debug().Err(err).Str("site_id", siteID).Msg("live stream write failed, closing")
				return
			}
			msg.Ack()
		}
	}
}
