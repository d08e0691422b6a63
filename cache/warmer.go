package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"heatlens/api/models"
)

// warmRanges are the windows pre-computed for every warmed page.
var warmRanges = []string{"all", "7d", "30d"}

// PageSource enumerates the most active pages.
type PageSource interface {
	TopPages(ctx context.Context, since time.Time, limit int) ([]models.SitePage, error)
}

// Warmer proactively populates the cache for the busiest pages so their
// dashboard loads always hit. Each iteration overwrites idempotently; a crash
// mid-run is safe to resume from scratch on the next schedule tick. Cold
// pages simply fall back to on-demand resolution.
type Warmer struct {
	pages  PageSource
	inner  HeatmapResolver
	store  *Store
	ttl    time.Duration
	topN   int
	window time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

func NewWarmer(pages PageSource, inner HeatmapResolver, store *Store, ttl time.Duration, topN int, logger zerolog.Logger) *Warmer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if topN <= 0 {
		topN = 20
	}
	return &Warmer{
		pages:  pages,
		inner:  inner,
		store:  store,
		ttl:    ttl,
		topN:   topN,
		window: 30 * 24 * time.Hour,
		log:    logger,
		now:    time.Now,
	}
}

// Run warms click heatmaps for the top pages across every warm range at the
// all-devices default. Individual failures are logged and skipped; the rest
// of the sweep continues.
func (w *Warmer) Run(ctx context.Context) error {
	now := w.now()
	pages, err := w.pages.TopPages(ctx, now.Add(-w.window), w.topN)
	if err != nil {
		return err
	}

	warmed := 0
	for _, page := range pages {
		for _, rangeLabel := range warmRanges {
			req := models.HeatmapRequest{
				SiteID:      page.SiteID,
				PageURL:     page.PageURL,
				HeatmapType: models.HeatmapClick,
				Range:       rangeLabel,
			}
			req.ApplyRange(now)

			res, err := w.inner.Heatmap(ctx, req)
			if err != nil {
				w.log.Warn().Err(err).Str("site_id", page.SiteID).Str("page_url", page.PageURL).
					Str("range", rangeLabel).Msg("cache warm resolution failed, skipping")
				continue
			}
			data, err := json.Marshal(res)
			if err != nil {
				continue
			}
			if err := w.store.Set(Key(req), data, w.ttl); err != nil {
				w.log.Warn().Err(err).Str("site_id", page.SiteID).Msg("cache warm write failed")
				continue
			}
			warmed++
		}
	}

	w.log.Info().Int("pages", len(pages)).Int("entries", warmed).Msg("cache warm sweep complete")
	return nil
}
