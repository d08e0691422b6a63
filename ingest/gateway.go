package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"heatlens/api/metrics"
	"heatlens/api/models"
	"heatlens/api/normalizer"
	"heatlens/api/ratelimit"
)

// EventWriter is the durable sink for accepted batches.
type EventWriter interface {
	InsertEvents(ctx context.Context, events []models.Event) error
}

// SiteRegistry answers whether a site is registered and active.
type SiteRegistry interface {
	Exists(ctx context.Context, siteID string) (bool, error)
}

// Publisher is the realtime fan-out. Publishes must never block.
type Publisher interface {
	Publish(ev models.Event)
}

// RateLimitError is returned when the client's window is exhausted; the
// handler turns it into a 429 with Retry-After.
type RateLimitError struct {
	ratelimit.Result
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, window resets at %s", e.ResetTime.Format(time.RFC3339))
}

// Gateway is the ingestion pipeline: rate limit, normalize, verify the site,
// write durably, fan out. A batch is accepted or rejected whole; partial
// acceptance would silently corrupt aggregate counts.
type Gateway struct {
	writer  EventWriter
	sites   SiteRegistry
	limiter ratelimit.Limiter
	hub     Publisher
	buffer  *Buffer

	timeout   time.Duration
	retryWait time.Duration
	log       zerolog.Logger
	degraded  atomic.Bool
	now       func() time.Time
}

type GatewayConfig struct {
	WriteTimeout    time.Duration
	BufferCapacity  int
	BufferRetryWait time.Duration
}

func NewGateway(writer EventWriter, sites SiteRegistry, limiter ratelimit.Limiter, hub Publisher, cfg GatewayConfig, logger zerolog.Logger) *Gateway {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.BufferRetryWait <= 0 {
		cfg.BufferRetryWait = 30 * time.Second
	}
	return &Gateway{
		writer:    writer,
		sites:     sites,
		limiter:   limiter,
		hub:       hub,
		buffer:    NewBuffer(cfg.BufferCapacity),
		timeout:   cfg.WriteTimeout,
		retryWait: cfg.BufferRetryWait,
		log:       logger,
		now:       time.Now,
	}
}

// Ingest runs one request through the pipeline and returns how many events
// were accepted. A store outage does not fail the request: events divert to
// the fallback buffer and the gateway reports itself degraded until the
// buffer drains.
func (g *Gateway) Ingest(ctx context.Context, clientIP string, body []byte) (int, error) {
	res := g.limiter.Check(ratelimit.ClientKey(clientIP))
	if !res.Allowed {
		metrics.RateLimited.Inc()
		return 0, &RateLimitError{res}
	}

	events, err := normalizer.Normalize(body, g.now())
	if err != nil {
		metrics.BatchesRejected.WithLabelValues("validation").Inc()
		return 0, err
	}

	if err := g.checkSites(ctx, events); err != nil {
		metrics.BatchesRejected.WithLabelValues("unknown_site").Inc()
		return 0, err
	}

	wctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.writer.InsertEvents(wctx, events); err != nil {
		g.buffer.Add(events)
		g.degraded.Store(true)
		metrics.EventsBuffered.Add(float64(len(events)))
		g.log.Warn().Err(err).Int("count", len(events)).
			Msg("durable write failed, events diverted to fallback buffer")
	} else {
		metrics.EventsIngested.Add(float64(len(events)))
	}

	for _, ev := range events {
		g.hub.Publish(ev)
	}
	return len(events), nil
}

// checkSites verifies every distinct site in the batch against the registry.
// A registry outage does not reject the batch: dropping telemetry over a
// lookup failure is worse than briefly accepting an unknown site.
func (g *Gateway) checkSites(ctx context.Context, events []models.Event) error {
	seen := make(map[string]bool, 1)
	for _, ev := range events {
		if seen[ev.SiteID] {
			continue
		}
		seen[ev.SiteID] = true

		ok, err := g.sites.Exists(ctx, ev.SiteID)
		if err != nil {
			g.log.Warn().Err(err).Str("site_id", ev.SiteID).Msg("site registry lookup failed, accepting batch")
			continue
		}
		if !ok {
			return &normalizer.ValidationError{Field: "site_id", Reason: "unknown site " + ev.SiteID}
		}
	}
	return nil
}

// RunBufferDrain retries buffered events against the durable store until ctx
// is cancelled. The gateway leaves degraded mode once the buffer is empty.
func (g *Gateway) RunBufferDrain(ctx context.Context) {
	ticker := time.NewTicker(g.retryWait)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.drainOnce(ctx)
		}
	}
}

func (g *Gateway) drainOnce(ctx context.Context) {
	for g.buffer.Len() > 0 {
		batch := g.buffer.Take(500)
		wctx, cancel := context.WithTimeout(ctx, g.timeout)
		err := g.writer.InsertEvents(wctx, batch)
		cancel()
		if err != nil {
			g.buffer.Requeue(batch)
			g.log.Warn().Err(err).Int("buffered", g.buffer.Len()).Msg("fallback buffer drain failed, will retry")
			return
		}
		metrics.EventsIngested.Add(float64(len(batch)))
		g.log.Info().Int("count", len(batch)).Int("remaining", g.buffer.Len()).Msg("drained buffered events")
	}
	if g.degraded.CompareAndSwap(true, false) {
		g.log.Info().Msg("fallback buffer empty, leaving degraded mode")
	}
}

// Degraded reports whether a store write has failed and its events are still
// waiting in the fallback buffer. Surfaced by the health endpoint.
func (g *Gateway) Degraded() bool {
	return g.degraded.Load()
}

// BufferedCount is the number of events currently in the fallback buffer.
func (g *Gateway) BufferedCount() int {
	return g.buffer.Len()
}
