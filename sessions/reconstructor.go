package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"heatlens/api/models"
)

// RawSource supplies raw events in session order.
type RawSource interface {
	SessionEvents(ctx context.Context, siteID string, start, end time.Time) ([]models.Event, error)
	FunnelEvents(ctx context.Context, siteID, sessionID string) ([]models.Event, error)
	RecentSessionIDs(ctx context.Context, siteID string, limit uint64) ([]string, error)
}

// SessionSink persists the folded rollups.
type SessionSink interface {
	UpsertSessions(ctx context.Context, sessions []models.Session) error
}

// Funnel is the ordered page sequence of one session.
type Funnel struct {
	SessionID string   `json:"session_id"`
	Pages     []string `json:"pages"`
}

// Reconstructor folds raw events into per-session rollups and funnels. It
// shares the raw store's ordering guarantee: events arrive sorted by
// session_id, then timestamp.
type Reconstructor struct {
	raw  RawSource
	sink SessionSink
	log  zerolog.Logger
}

func NewReconstructor(raw RawSource, sink SessionSink, logger zerolog.Logger) *Reconstructor {
	return &Reconstructor{raw: raw, sink: sink, log: logger}
}

// AggregateSessions rebuilds the rollups for every session a site touched in
// the window and returns how many sessions were written. Zero start/end leave
// that bound open.
func (r *Reconstructor) AggregateSessions(ctx context.Context, siteID string, start, end time.Time) (int, error) {
	events, err := r.raw.SessionEvents(ctx, siteID, start, end)
	if err != nil {
		return 0, fmt.Errorf("loading session events failed: %w", err)
	}

	var rollups []models.Session
	var current []models.Event
	for _, ev := range events {
		if ev.SessionID == "" {
			continue
		}
		if len(current) > 0 && current[0].SessionID != ev.SessionID {
			rollups = append(rollups, FoldSession(current))
			current = current[:0]
		}
		current = append(current, ev)
	}
	if len(current) > 0 {
		rollups = append(rollups, FoldSession(current))
	}

	for offset := 0; offset < len(rollups); offset += 1000 {
		limit := offset + 1000
		if limit > len(rollups) {
			limit = len(rollups)
		}
		if err := r.sink.UpsertSessions(ctx, rollups[offset:limit]); err != nil {
			return 0, fmt.Errorf("writing session rollups failed: %w", err)
		}
	}

	r.log.Info().Str("site_id", siteID).Int("sessions", len(rollups)).Msg("reconstructed sessions")
	return len(rollups), nil
}

// FoldSession computes one session's rollup from its time-ordered events.
// Landing page is the first pageview URL (first event URL when the session
// carries no pageview), exit page the URL of the temporally last event, and
// attribution the first non-empty value seen.
func FoldSession(events []models.Event) models.Session {
	first, last := events[0], events[len(events)-1]
	sess := models.Session{
		SiteID:    first.SiteID,
		SessionID: first.SessionID,
		StartTime: first.Timestamp,
		EndTime:   last.Timestamp,
		ExitPage:  last.URL,
	}
	sess.DurationSeconds = int64(sess.EndTime.Sub(sess.StartTime).Seconds())
	sess.EventsCount = uint64(len(events))

	for _, ev := range events {
		if ev.EventType == models.EventPageview {
			sess.PageViews++
			if sess.LandingPage == "" {
				sess.LandingPage = ev.URL
			}
		}
		sess.TotalRevenue += ev.EventRevenue

		if sess.UserID == "" {
			sess.UserID = ev.UserID
		}
		if sess.DeviceType == "" {
			sess.DeviceType = ev.DeviceType
		}
		if sess.UTMSource == "" {
			sess.UTMSource = ev.UTMSource
		}
		if sess.UTMMedium == "" {
			sess.UTMMedium = ev.UTMMedium
		}
		if sess.UTMCampaign == "" {
			sess.UTMCampaign = ev.UTMCampaign
		}
		if sess.GCLID == "" {
			sess.GCLID = ev.GCLID
		}
		if sess.FBCLID == "" {
			sess.FBCLID = ev.FBCLID
		}
	}
	if sess.LandingPage == "" {
		sess.LandingPage = first.URL
	}
	return sess
}

// Funnel returns one session's events in time order.
func (r *Reconstructor) Funnel(ctx context.Context, siteID, sessionID string) ([]models.Event, error) {
	events, err := r.raw.FunnelEvents(ctx, siteID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading funnel events failed: %w", err)
	}
	return events, nil
}

// RecentFunnels reconstructs the page sequences of the most recent sessions.
// Bounded by design: funnel aggregation is O(sessions x funnel length), so it
// runs over a sample, not the full history.
func (r *Reconstructor) RecentFunnels(ctx context.Context, siteID string, limit uint64) ([]Funnel, error) {
	ids, err := r.raw.RecentSessionIDs(ctx, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent sessions failed: %w", err)
	}

	funnels := make([]Funnel, 0, len(ids))
	for _, id := range ids {
		events, err := r.raw.FunnelEvents(ctx, siteID, id)
		if err != nil {
			return nil, fmt.Errorf("loading funnel for session %s failed: %w", id, err)
		}
		funnels = append(funnels, Funnel{SessionID: id, Pages: pageSequence(events)})
	}
	return funnels, nil
}

// pageSequence extracts the visited page URLs, collapsing consecutive
// repeats.
func pageSequence(events []models.Event) []string {
	var pages []string
	for _, ev := range events {
		if ev.EventType != models.EventPageview || ev.URL == "" {
			continue
		}
		if len(pages) > 0 && pages[len(pages)-1] == ev.URL {
			continue
		}
		pages = append(pages, ev.URL)
	}
	return pages
}

// Transitions folds funnels into a page-to-page transition count matrix.
func Transitions(funnels []Funnel) map[string]map[string]uint64 {
	matrix := make(map[string]map[string]uint64)
	for _, f := range funnels {
		for i := 0; i+1 < len(f.Pages); i++ {
			from, to := f.Pages[i], f.Pages[i+1]
			if matrix[from] == nil {
				matrix[from] = make(map[string]uint64)
			}
			matrix[from][to]++
		}
	}
	return matrix
}
