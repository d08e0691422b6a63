package cache

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"heatlens/api/metrics"
)

// StatsCache is the read-through cache in front of the dashboard statistics
// queries. The fill result type varies per endpoint, so entries hold the JSON
// encoding and hand it back verbatim.
type StatsCache struct {
	store *Store
	ttl   time.Duration
	log   zerolog.Logger
}

func NewStatsCache(store *Store, ttl time.Duration, logger zerolog.Logger) *StatsCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &StatsCache{store: store, ttl: ttl, log: logger}
}

// Fetch returns the JSON-encoded result for key, computing and caching it via
// fill on a miss. The bool reports whether the result came from cache. A
// cache write failure never fails the query; it only costs the recompute.
func (s *StatsCache) Fetch(key string, fill func() (any, error)) (json.RawMessage, bool, error) {
	if data, ok := s.store.Get(key); ok {
		metrics.CacheHits.Inc()
		return data, true, nil
	}
	metrics.CacheMisses.Inc()

	result, err := fill()
	if err != nil {
		return nil, false, err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, false, err
	}
	if err := s.store.Set(key, data, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("caching stats result failed")
	}
	return data, false, nil
}
