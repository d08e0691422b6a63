package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"heatlens/api/metrics"
	"heatlens/api/models"
	"heatlens/api/query"
)

// HeatmapResolver is the uncached resolution path.
type HeatmapResolver interface {
	Heatmap(ctx context.Context, req models.HeatmapRequest) (query.Result, error)
}

// Resolver is the read-through cache in front of the query resolver: it is
// the sole writer on miss, while the warmer writes proactively. A cache
// failure never fails the query; it only costs the recompute.
type Resolver struct {
	inner HeatmapResolver
	store *Store
	ttl   time.Duration
	log   zerolog.Logger
}

func NewResolver(inner HeatmapResolver, store *Store, ttl time.Duration, logger zerolog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Resolver{inner: inner, store: store, ttl: ttl, log: logger}
}

// Heatmap resolves the request, serving from cache when possible. The bool
// reports whether the result came from cache.
func (r *Resolver) Heatmap(ctx context.Context, req models.HeatmapRequest) (query.Result, bool, error) {
	key := Key(req)
	if data, ok := r.store.Get(key); ok {
		var res query.Result
		if err := json.Unmarshal(data, &res); err == nil {
			metrics.CacheHits.Inc()
			return res, true, nil
		}
		// An unreadable entry is treated as a miss and overwritten below.
		r.log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	}
	metrics.CacheMisses.Inc()

	res, err := r.inner.Heatmap(ctx, req)
	if err != nil {
		return query.Result{}, false, err
	}

	if data, err := json.Marshal(res); err == nil {
		if err := r.store.Set(key, data, r.ttl); err != nil {
			r.log.Warn().Err(err).Str("key", key).Msg("caching query result failed")
		}
	}
	return res, false, nil
}
