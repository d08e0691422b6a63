package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// SiteStore reads the site registry from PostgreSQL. The registry is owned by
// the site-management service; the core only checks that inbound events
// belong to a known, active site and enumerates active sites for the cache
// warmer. Lookups are memoized briefly so ingestion does not hit Postgres per
// request.
type SiteStore struct {
	DB *sql.DB

	mu       sync.RWMutex
	known    map[string]siteEntry
	cacheTTL time.Duration
	now      func() time.Time
}

type siteEntry struct {
	active  bool
	fetched time.Time
}

func NewSiteStore(db *sql.DB) *SiteStore {
	return &SiteStore{
		DB:       db,
		known:    make(map[string]siteEntry),
		cacheTTL: 5 * time.Minute,
		now:      time.Now,
	}
}

// Exists reports whether the site is registered and active.
func (s *SiteStore) Exists(ctx context.Context, siteID string) (bool, error) {
	s.mu.RLock()
	entry, ok := s.known[siteID]
	s.mu.RUnlock()
	if ok && s.now().Sub(entry.fetched) < s.cacheTTL {
		return entry.active, nil
	}

	var active bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT is_active FROM sites WHERE site_id = $1`, siteID,
	).Scan(&active)
	if err == sql.ErrNoRows {
		active = false
	} else if err != nil {
		return false, fmt.Errorf("failed to look up site %s: %w", siteID, err)
	}

	s.mu.Lock()
	s.known[siteID] = siteEntry{active: active, fetched: s.now()}
	s.mu.Unlock()
	return active, nil
}

// ActiveSites lists every active site ID.
func (s *SiteStore) ActiveSites(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT site_id FROM sites WHERE is_active = true`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sites: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan site row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during site query: %w", err)
	}
	return ids, nil
}
