package cache

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"heatlens/api/models"
)

// Store is the badger-backed query cache. Entries expire by TTL only; the
// aggregation engine never invalidates eagerly. Staleness is therefore
// bounded by TTL on top of the daily aggregation cadence.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

func NewStore(db *badger.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, log: logger}
}

// Key builds the cache key for a heatmap request:
// site|page|device|type|range.
func Key(req models.HeatmapRequest) string {
	return fmt.Sprintf("hm|%s|%s|%s|%s|%s",
		req.SiteID, req.PageURL, req.DeviceType, req.HeatmapType, req.RangeLabel())
}

// StatsKey builds the cache key for a statistics query.
func StatsKey(siteID, kind string, parts ...string) string {
	key := fmt.Sprintf("st|%s|%s", siteID, kind)
	for _, p := range parts {
		key += "|" + p
	}
	return key
}

// Get returns the stored bytes for key, or false on a miss. Expired entries
// are misses.
func (s *Store) Get(key string) ([]byte, bool) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			s.log.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
		}
		return nil, false
	}
	return value, true
}

// Set stores value under key with the given TTL, overwriting any previous
// entry.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache write for %s failed: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
