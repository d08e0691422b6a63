package aggregation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"heatlens/api/metrics"
	"heatlens/api/models"
)

// ErrAggregationRunning is returned when a daily run and a rebuild would
// overlap. The two jobs write the same tables; running them concurrently
// risks partial or duplicated partitions.
var ErrAggregationRunning = errors.New("an aggregation job is already running")

// RawSource supplies the raw events a day is aggregated from.
type RawSource interface {
	ClickEventsForDay(ctx context.Context, day time.Time) ([]models.Event, error)
	SessionDepthsForDay(ctx context.Context, day time.Time) ([]models.SessionDepth, error)
	EventDates(ctx context.Context) ([]time.Time, error)
}

// AggregateSink receives the computed daily rows. ReplaceDay and
// ReplaceScrollDay must be idempotent per date.
type AggregateSink interface {
	ReplaceDay(ctx context.Context, day time.Time, rows []models.PixelRow) error
	ReplaceScrollDay(ctx context.Context, day time.Time, rows []models.ScrollRow) error
	Truncate(ctx context.Context) error
}

// Engine folds raw events into the daily click and scroll aggregates. All
// entry points share one job lock: at most one aggregation writes the
// aggregate tables at a time.
type Engine struct {
	raw  RawSource
	sink AggregateSink
	log  zerolog.Logger

	jobLock sync.Mutex
	now     func() time.Time
}

func NewEngine(raw RawSource, sink AggregateSink, logger zerolog.Logger) *Engine {
	return &Engine{raw: raw, sink: sink, log: logger, now: time.Now}
}

// AggregateDay recomputes the aggregates for one date. Re-running the same
// date produces identical rows: the sink replaces the date's partition
// wholesale, never appends. A failure leaves the old partition in place or
// the date empty; the next scheduled run retries the whole date.
func (e *Engine) AggregateDay(ctx context.Context, day time.Time) error {
	if !e.jobLock.TryLock() {
		return ErrAggregationRunning
	}
	defer e.jobLock.Unlock()

	start := e.now()
	err := e.aggregateDayLocked(ctx, day)
	e.observe("daily", start, err)
	return err
}

// Rebuild truncates both aggregate tables and re-aggregates every date in
// the raw store. Expensive and rare; triggered manually after a logic or
// schema change.
func (e *Engine) Rebuild(ctx context.Context) error {
	if !e.jobLock.TryLock() {
		return ErrAggregationRunning
	}
	defer e.jobLock.Unlock()

	start := e.now()
	err := e.rebuildLocked(ctx)
	e.observe("rebuild", start, err)
	return err
}

func (e *Engine) rebuildLocked(ctx context.Context) error {
	if err := e.sink.Truncate(ctx); err != nil {
		return fmt.Errorf("rebuild truncate failed: %w", err)
	}
	dates, err := e.raw.EventDates(ctx)
	if err != nil {
		return fmt.Errorf("rebuild date listing failed: %w", err)
	}

	e.log.Info().Int("dates", len(dates)).Msg("rebuilding aggregates for full history")
	for _, day := range dates {
		if err := e.aggregateDayLocked(ctx, day); err != nil {
			return fmt.Errorf("rebuild failed at %s: %w", day.Format("2006-01-02"), err)
		}
	}
	return nil
}

func (e *Engine) aggregateDayLocked(ctx context.Context, day time.Time) error {
	day = day.Truncate(24 * time.Hour)

	clicks, err := e.raw.ClickEventsForDay(ctx, day)
	if err != nil {
		return fmt.Errorf("loading click events failed: %w", err)
	}
	pixelRows := e.foldClicks(clicks, day)

	depths, err := e.raw.SessionDepthsForDay(ctx, day)
	if err != nil {
		return fmt.Errorf("loading scroll depths failed: %w", err)
	}
	scrollRows := e.foldDepths(depths, day)

	if err := e.sink.ReplaceDay(ctx, day, pixelRows); err != nil {
		return fmt.Errorf("replacing click aggregate failed: %w", err)
	}
	if err := e.sink.ReplaceScrollDay(ctx, day, scrollRows); err != nil {
		return fmt.Errorf("replacing scroll aggregate failed: %w", err)
	}

	e.log.Info().Str("date", day.Format("2006-01-02")).
		Int("click_pixels", len(pixelRows)).Int("scroll_buckets", len(scrollRows)).
		Msg("aggregated day")
	return nil
}

type pixelKey struct {
	siteID     string
	pageURL    string
	deviceType string
	x, y       int32
}

func (e *Engine) foldClicks(events []models.Event, day time.Time) []models.PixelRow {
	type acc struct {
		count    uint64
		sessions map[string]struct{}
	}
	groups := make(map[pixelKey]*acc)
	for _, ev := range events {
		// Off-page and instrumentation artifacts carry non-positive
		// coordinates; they never reach the aggregate.
		if ev.ClickX <= 0 || ev.ClickY <= 0 {
			continue
		}
		key := pixelKey{ev.SiteID, ev.URL, ev.DeviceType, ev.ClickX, ev.ClickY}
		a, ok := groups[key]
		if !ok {
			a = &acc{sessions: make(map[string]struct{})}
			groups[key] = a
		}
		a.count++
		if ev.SessionID != "" {
			a.sessions[ev.SessionID] = struct{}{}
		}
	}

	updated := e.now().UTC().Truncate(time.Second)
	rows := make([]models.PixelRow, 0, len(groups))
	for key, a := range groups {
		rows = append(rows, models.PixelRow{
			SiteID:         key.siteID,
			PageURL:        key.pageURL,
			DeviceType:     key.deviceType,
			EventType:      models.EventClick,
			Date:           day,
			X:              key.x,
			Y:              key.y,
			ClickCount:     a.count,
			UniqueSessions: uint64(len(a.sessions)),
			LastUpdated:    updated,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.SiteID != b.SiteID {
			return a.SiteID < b.SiteID
		}
		if a.PageURL != b.PageURL {
			return a.PageURL < b.PageURL
		}
		if a.DeviceType != b.DeviceType {
			return a.DeviceType < b.DeviceType
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
	return rows
}

type bucketKey struct {
	siteID     string
	pageURL    string
	deviceType string
	bucket     int32
}

func (e *Engine) foldDepths(depths []models.SessionDepth, day time.Time) []models.ScrollRow {
	groups := make(map[bucketKey]uint64)
	for _, d := range depths {
		if d.MaxDepth <= 0 {
			continue
		}
		depth := d.MaxDepth
		if depth > 100 {
			depth = 100
		}
		key := bucketKey{d.SiteID, d.PageURL, d.DeviceType, (depth / 10) * 10}
		groups[key]++
	}

	updated := e.now().UTC().Truncate(time.Second)
	rows := make([]models.ScrollRow, 0, len(groups))
	for key, sessions := range groups {
		rows = append(rows, models.ScrollRow{
			SiteID:      key.siteID,
			PageURL:     key.pageURL,
			DeviceType:  key.deviceType,
			Date:        day,
			DepthBucket: key.bucket,
			Sessions:    sessions,
			LastUpdated: updated,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.SiteID != b.SiteID {
			return a.SiteID < b.SiteID
		}
		if a.PageURL != b.PageURL {
			return a.PageURL < b.PageURL
		}
		if a.DeviceType != b.DeviceType {
			return a.DeviceType < b.DeviceType
		}
		return a.DepthBucket < b.DepthBucket
	})
	return rows
}

func (e *Engine) observe(job string, start time.Time, err error) {
	metrics.AggregationDuration.Observe(e.now().Sub(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
		e.log.Error().Err(err).Str("job", job).Msg("aggregation job failed, will retry on next tick")
	}
	metrics.AggregationRuns.WithLabelValues(job, status).Inc()
}
