package store

import (
	"context"
	"fmt"

	"heatlens/api/models"
)

// Raw-event fallback queries for the query resolver. Clicks normally come
// from heatmap_daily; these paths serve ranges the aggregate does not cover
// yet, and the scroll/read types that have no (or only a partial)
// pre-aggregate.

func (s *EventStore) rangeClause(req models.HeatmapRequest) (string, []interface{}) {
	clause := ` AND site_id = ? AND url = ?`
	args := []interface{}{req.SiteID, req.PageURL}
	if req.DeviceType != "" {
		clause += ` AND device_type = ?`
		args = append(args, req.DeviceType)
	}
	if !req.Start.IsZero() {
		clause += ` AND timestamp >= ?`
		args = append(args, req.Start)
	}
	if !req.End.IsZero() {
		// The end bound is day-granular, matching the aggregate tables'
		// date <= predicate: an end date of 2025-01-01 includes the whole
		// of that day on both paths.
		clause += ` AND toDate(timestamp) <= ?`
		args = append(args, req.End.Format("2006-01-02"))
	}
	return clause, args
}

// GroupClicksRaw groups raw click events per pixel over the requested range.
// The noise-floor, ordering and cap policies are applied by the resolver.
func (s *EventStore) GroupClicksRaw(ctx context.Context, req models.HeatmapRequest) ([]models.Point, error) {
	clause, args := s.rangeClause(req)
	query := `
		SELECT click_x, click_y, count() AS clicks, uniq(session_id) AS sessions
		FROM events
		WHERE event_type = 'click' AND click_x > 0 AND click_y > 0` + clause + `
		GROUP BY click_x, click_y`

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw click groups: %w", err)
	}
	defer rows.Close()

	var points []models.Point
	for rows.Next() {
		var p models.Point
		if err := rows.Scan(&p.X, &p.Y, &p.Count, &p.UniqueSessions); err != nil {
			return nil, fmt.Errorf("failed to scan raw click row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during raw click query: %w", err)
	}
	return points, nil
}

// ScrollDepthsRaw buckets each session's deepest scroll position into 10%
// steps over the requested range. The resolver turns buckets into cumulative
// reach counts.
func (s *EventStore) ScrollDepthsRaw(ctx context.Context, req models.HeatmapRequest) ([]models.Point, error) {
	clause, args := s.rangeClause(req)
	query := `
		SELECT intDiv(least(max_depth, 100), 10) * 10 AS bucket, count() AS sessions
		FROM (
			SELECT session_id, max(scroll_percentage) AS max_depth
			FROM events
			WHERE event_type IN ('scroll', 'scroll_depth') AND scroll_percentage > 0` + clause + `
			GROUP BY session_id
		)
		GROUP BY bucket
		ORDER BY bucket ASC`

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw scroll depths: %w", err)
	}
	defer rows.Close()

	var points []models.Point
	for rows.Next() {
		var p models.Point
		if err := rows.Scan(&p.Y, &p.Count); err != nil {
			return nil, fmt.Errorf("failed to scan raw scroll row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during raw scroll query: %w", err)
	}
	return points, nil
}

// ReadIntensityRaw computes dwell intensity per page position: total dwell
// seconds and distinct sessions for each read_y.
func (s *EventStore) ReadIntensityRaw(ctx context.Context, req models.HeatmapRequest) ([]models.Point, error) {
	clause, args := s.rangeClause(req)
	query := `
		SELECT read_y, toUInt64(sum(read_duration_ms) / 1000) AS dwell_seconds, uniq(session_id) AS sessions
		FROM events
		WHERE event_type = 'read_area' AND read_y > 0` + clause + `
		GROUP BY read_y`

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query read intensity: %w", err)
	}
	defer rows.Close()

	var points []models.Point
	for rows.Next() {
		var p models.Point
		if err := rows.Scan(&p.Y, &p.Count, &p.UniqueSessions); err != nil {
			return nil, fmt.Errorf("failed to scan read intensity row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during read intensity query: %w", err)
	}
	return points, nil
}
