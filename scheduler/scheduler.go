package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Aggregator runs the aggregate jobs. Both are single-flight within the
// engine; the scheduler additionally funnels rebuild triggers through one
// goroutine so a burst of admin calls cannot stack runs.
type Aggregator interface {
	AggregateDay(ctx context.Context, day time.Time) error
	Rebuild(ctx context.Context) error
}

// SessionAggregator rebuilds session rollups for one site and window.
type SessionAggregator interface {
	AggregateSessions(ctx context.Context, siteID string, start, end time.Time) (int, error)
}

// CacheWarmer runs one warm sweep.
type CacheWarmer interface {
	Run(ctx context.Context) error
}

// SiteSource lists the sites whose sessions get reconstructed daily.
type SiteSource interface {
	ActiveSites(ctx context.Context) ([]string, error)
}

// Scheduler owns the cron contracts: daily aggregation for the prior day,
// cache warming every six hours, and the on-demand full rebuild.
type Scheduler struct {
	cron     *cron.Cron
	engine   Aggregator
	sessions SessionAggregator
	warmer   CacheWarmer
	sites    SiteSource
	log      zerolog.Logger

	rebuildCh chan struct{}
	// runMu serializes daily runs. cron starts every tick on a fresh
	// goroutine, so a run outlasting the schedule interval would otherwise
	// interleave with the next one and race on failedDates.
	runMu sync.Mutex
	// failedDates are dates whose daily run failed; they are retried ahead
	// of the regular date on the next tick instead of being silently
	// skipped. Guarded by runMu.
	failedDates map[string]time.Time
	jobTimeout  time.Duration
	now         func() time.Time
}

func New(engine Aggregator, sessions SessionAggregator, warmer CacheWarmer, sites SiteSource, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		engine:      engine,
		sessions:    sessions,
		warmer:      warmer,
		sites:       sites,
		log:         logger,
		rebuildCh:   make(chan struct{}, 1),
		failedDates: make(map[string]time.Time),
		jobTimeout:  30 * time.Minute,
		now:         time.Now,
	}
}

// Start registers the cron entries and begins dispatching. The rebuild loop
// runs until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, dailySpec, warmSpec string) error {
	if _, err := s.cron.AddFunc(dailySpec, func() { s.RunDaily(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(warmSpec, func() { s.RunWarm(ctx) }); err != nil {
		return err
	}
	go s.rebuildLoop(ctx)
	s.cron.Start()
	s.log.Info().Str("daily", dailySpec).Str("warm", warmSpec).Msg("scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// TriggerRebuild enqueues a full rebuild. Returns false when one is already
// pending.
func (s *Scheduler) TriggerRebuild() bool {
	select {
	case s.rebuildCh <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) rebuildLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.rebuildCh:
			jctx, cancel := context.WithTimeout(ctx, s.jobTimeout)
			err := s.engine.Rebuild(jctx)
			cancel()
			if err != nil {
				s.log.Error().Err(err).Msg("full rebuild failed")
				continue
			}
			s.log.Info().Msg("full rebuild complete")
		}
	}
}

// RunDaily aggregates the prior day and reconstructs sessions for it. Dates
// whose previous run failed are retried first.
func (s *Scheduler) RunDaily(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	yesterday := s.now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)

	days := make([]time.Time, 0, len(s.failedDates)+1)
	for _, d := range s.failedDates {
		days = append(days, d)
	}
	days = append(days, yesterday)

	for _, day := range days {
		key := day.Format("2006-01-02")
		jctx, cancel := context.WithTimeout(ctx, s.jobTimeout)
		err := s.engine.AggregateDay(jctx, day)
		cancel()
		if err != nil {
			s.failedDates[key] = day
			s.log.Error().Err(err).Str("date", key).Msg("daily aggregation failed, queued for retry")
			continue
		}
		delete(s.failedDates, key)
	}

	s.reconstructSessions(ctx, yesterday)
}

func (s *Scheduler) reconstructSessions(ctx context.Context, day time.Time) {
	sites, err := s.sites.ActiveSites(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("listing sites for session reconstruction failed")
		return
	}

	start := day
	end := day.AddDate(0, 0, 1)
	for _, siteID := range sites {
		jctx, cancel := context.WithTimeout(ctx, s.jobTimeout)
		n, err := s.sessions.AggregateSessions(jctx, siteID, start, end)
		cancel()
		if err != nil {
			s.log.Error().Err(err).Str("site_id", siteID).Msg("session reconstruction failed")
			continue
		}
		s.log.Debug().Str("site_id", siteID).Int("sessions", n).Msg("sessions reconstructed")
	}
}

// RunWarm runs one cache warm sweep.
func (s *Scheduler) RunWarm(ctx context.Context) {
	jctx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()
	if err := s.warmer.Run(jctx); err != nil {
		s.log.Error().Err(err).Msg("cache warm sweep failed")
	}
}
