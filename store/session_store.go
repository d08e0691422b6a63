package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"heatlens/api/database"
	"heatlens/api/models"
)

// SessionStore persists the per-visit rollups built by the session
// reconstructor. The sessions table is a ReplacingMergeTree keyed by
// (site_id, session_id) and versioned by end_time, so re-running
// reconstruction over an overlapping window converges instead of duplicating.
type SessionStore struct {
	DB  *database.ClickHouseClient
	log zerolog.Logger
}

func NewSessionStore(chClient *database.ClickHouseClient, logger zerolog.Logger) *SessionStore {
	return &SessionStore{DB: chClient, log: logger}
}

func (s *SessionStore) UpsertSessions(ctx context.Context, sessions []models.Session) error {
	if len(sessions) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO sessions (
			site_id, session_id, user_id, start_time, end_time, duration_seconds,
			page_views, events_count, total_revenue, landing_page, exit_page, device_type,
			utm_source, utm_medium, utm_campaign, gclid, fbclid
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare session batch insert: %w", err)
	}

	for _, sess := range sessions {
		err := batch.Append(
			sess.SiteID, sess.SessionID, sess.UserID, sess.StartTime, sess.EndTime, sess.DurationSeconds,
			sess.PageViews, sess.EventsCount, sess.TotalRevenue, sess.LandingPage, sess.ExitPage, sess.DeviceType,
			sess.UTMSource, sess.UTMMedium, sess.UTMCampaign, sess.GCLID, sess.FBCLID,
		)
		if err != nil {
			return fmt.Errorf("failed to append session %s to batch: %w", sess.SessionID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send session batch: %w", err)
	}

	s.log.Info().Int("count", len(sessions)).Msg("upserted session rollups")
	return nil
}

// ListSessions returns a site's session rollups newest-first. FINAL collapses
// ReplacingMergeTree versions so callers always see the latest rollup.
func (s *SessionStore) ListSessions(ctx context.Context, siteID string, start, end time.Time, limit uint64) ([]models.Session, error) {
	if limit == 0 {
		limit = 100
	}
	query := `
		SELECT site_id, session_id, user_id, start_time, end_time, duration_seconds,
			page_views, events_count, total_revenue, landing_page, exit_page, device_type,
			utm_source, utm_medium, utm_campaign, gclid, fbclid
		FROM sessions FINAL
		WHERE site_id = ?`
	args := []interface{}{siteID}
	if !start.IsZero() {
		query += ` AND start_time >= ?`
		args = append(args, start)
	}
	if !end.IsZero() {
		query += ` AND start_time <= ?`
		args = append(args, end)
	}
	query += ` ORDER BY start_time DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var sess models.Session
		if err := rows.Scan(
			&sess.SiteID, &sess.SessionID, &sess.UserID, &sess.StartTime, &sess.EndTime, &sess.DurationSeconds,
			&sess.PageViews, &sess.EventsCount, &sess.TotalRevenue, &sess.LandingPage, &sess.ExitPage, &sess.DeviceType,
			&sess.UTMSource, &sess.UTMMedium, &sess.UTMCampaign, &sess.GCLID, &sess.FBCLID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during session query: %w", err)
	}
	return sessions, nil
}
