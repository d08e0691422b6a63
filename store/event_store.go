package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"heatlens/api/database"
	"heatlens/api/models"
)

// EventStore is the append-only raw event store. Events are written once and
// never mutated; everything downstream (aggregation, sessions, raw-fallback
// queries) reads from here.
type EventStore struct {
	DB  *database.ClickHouseClient
	log zerolog.Logger
}

func NewEventStore(chClient *database.ClickHouseClient, logger zerolog.Logger) *EventStore {
	return &EventStore{DB: chClient, log: logger}
}

const eventColumns = `id, site_id, session_id, user_id, event_type, timestamp, url, referrer,
		device_type, viewport_width, viewport_height,
		element_tag, element_id, element_class, element_text, element_href,
		click_x, click_y, scroll_percentage, read_y, read_duration_ms,
		utm_source, utm_medium, utm_campaign, utm_term, utm_content, gclid, fbclid,
		event_revenue`

func (s *EventStore) InsertEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO events (%s)`, eventColumns))
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, ev := range events {
		err := batch.Append(
			ev.ID, ev.SiteID, ev.SessionID, ev.UserID, ev.EventType, ev.Timestamp, ev.URL, ev.Referrer,
			ev.DeviceType, ev.ViewportWidth, ev.ViewportHeight,
			ev.ElementTag, ev.ElementID, ev.ElementClass, ev.ElementText, ev.ElementHref,
			ev.ClickX, ev.ClickY, ev.ScrollPercentage, ev.ReadY, ev.ReadDurationMs,
			ev.UTMSource, ev.UTMMedium, ev.UTMCampaign, ev.UTMTerm, ev.UTMContent, ev.GCLID, ev.FBCLID,
			ev.EventRevenue,
		)
		if err != nil {
			return fmt.Errorf("failed to append event %s to batch: %w", ev.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.log.Debug().Int("count", len(events)).Msg("inserted raw events")
	return nil
}

// ClickEventsForDay returns the day's click events with positive positions,
// carrying only the fields aggregation groups on.
func (s *EventStore) ClickEventsForDay(ctx context.Context, day time.Time) ([]models.Event, error) {
	query := `
		SELECT site_id, url, device_type, session_id, click_x, click_y
		FROM events
		WHERE toDate(timestamp) = ? AND event_type = 'click' AND click_x > 0 AND click_y > 0
	`
	rows, err := s.DB.Conn.Query(ctx, query, day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query click events for day: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		ev.EventType = models.EventClick
		if err := rows.Scan(&ev.SiteID, &ev.URL, &ev.DeviceType, &ev.SessionID, &ev.ClickX, &ev.ClickY); err != nil {
			return nil, fmt.Errorf("failed to scan click event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during click event query: %w", err)
	}
	return events, nil
}

// SessionDepthsForDay returns each session's deepest scroll position per page
// for one day, feeding the scroll pre-aggregate.
func (s *EventStore) SessionDepthsForDay(ctx context.Context, day time.Time) ([]models.SessionDepth, error) {
	query := `
		SELECT site_id, url, device_type, session_id, max(scroll_percentage) AS max_depth
		FROM events
		WHERE toDate(timestamp) = ?
			AND event_type IN ('scroll', 'scroll_depth')
			AND scroll_percentage > 0
		GROUP BY site_id, url, device_type, session_id
	`
	rows, err := s.DB.Conn.Query(ctx, query, day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query session scroll depths: %w", err)
	}
	defer rows.Close()

	var depths []models.SessionDepth
	for rows.Next() {
		var d models.SessionDepth
		if err := rows.Scan(&d.SiteID, &d.PageURL, &d.DeviceType, &d.SessionID, &d.MaxDepth); err != nil {
			return nil, fmt.Errorf("failed to scan scroll depth row: %w", err)
		}
		depths = append(depths, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during scroll depth query: %w", err)
	}
	return depths, nil
}

// EventDates lists every distinct date present in the raw store, oldest
// first. Used by the full rebuild to walk all of history.
func (s *EventStore) EventDates(ctx context.Context) ([]time.Time, error) {
	rows, err := s.DB.Conn.Query(ctx, `SELECT DISTINCT toDate(timestamp) AS d FROM events ORDER BY d ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query event dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan event date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event date query: %w", err)
	}
	return dates, nil
}

// SessionEvents streams a site's events ordered by session then time, the
// shape the session reconstructor folds over. Zero start/end leave that bound
// open.
func (s *EventStore) SessionEvents(ctx context.Context, siteID string, start, end time.Time) ([]models.Event, error) {
	query := `
		SELECT session_id, user_id, event_type, timestamp, url, device_type,
			utm_source, utm_medium, utm_campaign, gclid, fbclid, event_revenue
		FROM events
		WHERE site_id = ?`
	args := []interface{}{siteID}
	if !start.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, start)
	}
	if !end.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, end)
	}
	query += ` ORDER BY session_id ASC, timestamp ASC`

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev := models.Event{SiteID: siteID}
		if err := rows.Scan(&ev.SessionID, &ev.UserID, &ev.EventType, &ev.Timestamp, &ev.URL, &ev.DeviceType,
			&ev.UTMSource, &ev.UTMMedium, &ev.UTMCampaign, &ev.GCLID, &ev.FBCLID, &ev.EventRevenue); err != nil {
			return nil, fmt.Errorf("failed to scan session event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during session event query: %w", err)
	}
	return events, nil
}

// FunnelEvents returns one session's events in time order.
func (s *EventStore) FunnelEvents(ctx context.Context, siteID, sessionID string) ([]models.Event, error) {
	query := `
		SELECT id, event_type, timestamp, url, referrer, device_type
		FROM events
		WHERE site_id = ? AND session_id = ?
		ORDER BY timestamp ASC
	`
	rows, err := s.DB.Conn.Query(ctx, query, siteID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query funnel events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev := models.Event{SiteID: siteID, SessionID: sessionID}
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Timestamp, &ev.URL, &ev.Referrer, &ev.DeviceType); err != nil {
			return nil, fmt.Errorf("failed to scan funnel event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during funnel event query: %w", err)
	}
	return events, nil
}

// RecentSessionIDs returns the most recently active session IDs for a site,
// bounding funnel aggregation to a sample instead of the full history.
func (s *EventStore) RecentSessionIDs(ctx context.Context, siteID string, limit uint64) ([]string, error) {
	if limit == 0 {
		limit = 100
	}
	query := `
		SELECT session_id, max(timestamp) AS last_seen
		FROM events
		WHERE site_id = ? AND session_id != ''
		GROUP BY session_id
		ORDER BY last_seen DESC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		var lastSeen time.Time
		if err := rows.Scan(&id, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan recent session row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during recent session query: %w", err)
	}
	return ids, nil
}

// TopPages returns the most active (site, page) pairs since the given time,
// the cache warmer's work list.
func (s *EventStore) TopPages(ctx context.Context, since time.Time, limit int) ([]models.SitePage, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT site_id, url, count() AS events
		FROM events
		WHERE timestamp >= ? AND url != ''
		GROUP BY site_id, url
		ORDER BY events DESC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, since, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query top pages: %w", err)
	}
	defer rows.Close()

	var pages []models.SitePage
	for rows.Next() {
		var p models.SitePage
		if err := rows.Scan(&p.SiteID, &p.PageURL, &p.Events); err != nil {
			return nil, fmt.Errorf("failed to scan top page row: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during top page query: %w", err)
	}
	return pages, nil
}
