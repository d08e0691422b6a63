package store

import (
	"context"
	"fmt"
	"time"

	"heatlens/api/models"
	"heatlens/api/utils"
)

// Dashboard statistics computed from raw events: traffic over time, unique
// sessions, top pages. These are the interactive charts next to the heatmap;
// they read the raw store directly and lean on the statistics cache TTL
// rather than a pre-aggregate.

type CountByTime struct {
	Time      time.Time `json:"time"`
	EventType *string   `json:"event_type,omitempty"`
	Count     uint64    `json:"count"`
}

func (s *EventStore) EventCountsOverTime(ctx context.Context, siteID, interval string, start, end time.Time, eventTypeFilter string) ([]CountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	selectCols := fmt.Sprintf("toStartOf%s(timestamp) AS time_bucket, count() AS total_events", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE site_id = ? AND timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	args := []interface{}{siteID, start, end}
	isFilteringByType := eventTypeFilter != ""

	if isFilteringByType {
		selectCols += ", event_type"
		groupByCols += ", event_type"
		whereClause += " AND event_type = ?"
		args = append(args, eventTypeFilter)
		orderByCols += ", event_type ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM events
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	var results []CountByTime
	for rows.Next() {
		var (
			timeBucket  time.Time
			count       uint64
			eventTypeDB string
			current     CountByTime
		)
		if isFilteringByType {
			if err := rows.Scan(&timeBucket, &count, &eventTypeDB); err != nil {
				return nil, fmt.Errorf("failed to scan event count row: %w", err)
			}
			current.EventType = &eventTypeDB
		} else {
			if err := rows.Scan(&timeBucket, &count); err != nil {
				return nil, fmt.Errorf("failed to scan event count row: %w", err)
			}
		}
		current.Time = timeBucket
		current.Count = count
		results = append(results, current)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event count query: %w", err)
	}
	return results, nil
}

func (s *EventStore) UniqueSessionsOverTime(ctx context.Context, siteID, interval string, start, end time.Time) ([]CountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	query := fmt.Sprintf(`
		SELECT toStartOf%s(timestamp) AS time_bucket, uniq(session_id) AS unique_sessions
		FROM events
		WHERE site_id = ? AND timestamp >= ? AND timestamp <= ?
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.DB.Conn.Query(ctx, query, siteID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique sessions over time: %w", err)
	}
	defer rows.Close()

	var results []CountByTime
	for rows.Next() {
		var timeBucket time.Time
		var sessions uint64
		if err := rows.Scan(&timeBucket, &sessions); err != nil {
			return nil, fmt.Errorf("failed to scan unique session row: %w", err)
		}
		results = append(results, CountByTime{Time: timeBucket, Count: sessions})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for unique sessions: %w", err)
	}
	return results, nil
}

// TopPagesForSite ranks a site's pages by pageviews over a range.
func (s *EventStore) TopPagesForSite(ctx context.Context, siteID string, start, end time.Time, limit uint64) ([]models.SitePage, error) {
	if limit == 0 {
		limit = 10
	}

	query := `
		SELECT url, count() AS view_count
		FROM events
		WHERE site_id = ? AND event_type = 'pageview' AND timestamp >= ? AND timestamp <= ?
		GROUP BY url
		ORDER BY view_count DESC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, siteID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top pages: %w", err)
	}
	defer rows.Close()

	var results []models.SitePage
	for rows.Next() {
		p := models.SitePage{SiteID: siteID}
		if err := rows.Scan(&p.PageURL, &p.Events); err != nil {
			return nil, fmt.Errorf("failed to scan top page row: %w", err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top pages: %w", err)
	}
	return results, nil
}
