package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"heatlens/api/metrics"
	"heatlens/api/models"
)

// Hub fans accepted events out to realtime subscribers, one topic per site.
// Publishes are fire-and-forget: a slow or absent subscriber never holds up
// ingestion.
type Hub struct {
	pubsub *gochannel.GoChannel
	log    zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, &loggerAdapter{log: logger}),
		log: logger,
	}
}

func topicFor(siteID string) string {
	return fmt.Sprintf("events.%s", siteID)
}

// Publish sends the event to the site's topic without blocking the caller.
func (h *Hub) Publish(ev models.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("event_id", ev.ID).Msg("failed to marshal realtime event")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	go func() {
		if err := h.pubsub.Publish(topicFor(ev.SiteID), msg); err != nil {
			h.log.Warn().Err(err).Str("site_id", ev.SiteID).Msg("realtime publish failed")
			return
		}
		metrics.RealtimePublished.Inc()
	}()
}

// Subscribe returns the live event stream for a site. The stream closes when
// ctx is cancelled; consumers must Ack every message.
func (h *Hub) Subscribe(ctx context.Context, siteID string) (<-chan *message.Message, error) {
	return h.pubsub.Subscribe(ctx, topicFor(siteID))
}

func (h *Hub) Close() {
	if err := h.pubsub.Close(); err != nil {
		h.log.Warn().Err(err).Msg("error closing realtime hub")
	}
}

// loggerAdapter bridges watermill's logging interface onto zerolog.
type loggerAdapter struct {
	log zerolog.Logger
}

func (a *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.event(a.log.Error().Err(err), msg, fields)
}

func (a *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.event(a.log.Info(), msg, fields)
}

func (a *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.event(a.log.Debug(), msg, fields)
}

func (a *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.event(a.log.Trace(), msg, fields)
}

func (a *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	child := a.log
	for k, v := range fields {
		child = child.With().Interface(k, v).Logger()
	}
	return &loggerAdapter{log: child}
}

func (a *loggerAdapter) event(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
