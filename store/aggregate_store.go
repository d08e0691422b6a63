package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"heatlens/api/database"
	"heatlens/api/models"
)

// AggregateStore owns the pre-aggregated heatmap tables. Both daily tables
// are partitioned by date, so replacing a day is a partition drop followed by
// a fresh batch insert, so re-running a day can never double count.
type AggregateStore struct {
	DB  *database.ClickHouseClient
	log zerolog.Logger
}

func NewAggregateStore(chClient *database.ClickHouseClient, logger zerolog.Logger) *AggregateStore {
	return &AggregateStore{DB: chClient, log: logger}
}

// ReplaceDay overwrites the click aggregate for one date with the given rows.
func (s *AggregateStore) ReplaceDay(ctx context.Context, day time.Time, rows []models.PixelRow) error {
	dateStr := day.Format("2006-01-02")
	dropStmt := fmt.Sprintf(`ALTER TABLE heatmap_daily DROP PARTITION '%s'`, dateStr)
	if err := s.DB.Conn.Exec(ctx, dropStmt); err != nil {
		return fmt.Errorf("failed to drop heatmap partition %s: %w", dateStr, err)
	}
	if len(rows) == 0 {
		s.log.Debug().Str("date", dateStr).Msg("no click pixels for day, partition left empty")
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO heatmap_daily (
			site_id, page_url, device_type, event_type, date, x, y,
			click_count, unique_sessions, last_updated
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare heatmap batch insert: %w", err)
	}
	for _, r := range rows {
		err := batch.Append(
			r.SiteID, r.PageURL, r.DeviceType, r.EventType, r.Date, r.X, r.Y,
			r.ClickCount, r.UniqueSessions, r.LastUpdated,
		)
		if err != nil {
			return fmt.Errorf("failed to append heatmap row to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send heatmap batch: %w", err)
	}

	s.log.Info().Str("date", dateStr).Int("rows", len(rows)).Msg("replaced click aggregate for day")
	return nil
}

// ReplaceScrollDay overwrites the scroll-reach aggregate for one date.
func (s *AggregateStore) ReplaceScrollDay(ctx context.Context, day time.Time, rows []models.ScrollRow) error {
	dateStr := day.Format("2006-01-02")
	dropStmt := fmt.Sprintf(`ALTER TABLE scroll_daily DROP PARTITION '%s'`, dateStr)
	if err := s.DB.Conn.Exec(ctx, dropStmt); err != nil {
		return fmt.Errorf("failed to drop scroll partition %s: %w", dateStr, err)
	}
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO scroll_daily (
			site_id, page_url, device_type, date, depth_bucket, sessions, last_updated
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare scroll batch insert: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(r.SiteID, r.PageURL, r.DeviceType, r.Date, r.DepthBucket, r.Sessions, r.LastUpdated); err != nil {
			return fmt.Errorf("failed to append scroll row to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send scroll batch: %w", err)
	}

	s.log.Info().Str("date", dateStr).Int("rows", len(rows)).Msg("replaced scroll aggregate for day")
	return nil
}

// Truncate empties both aggregate tables ahead of a full rebuild.
func (s *AggregateStore) Truncate(ctx context.Context) error {
	if err := s.DB.Conn.Exec(ctx, `TRUNCATE TABLE heatmap_daily`); err != nil {
		return fmt.Errorf("failed to truncate heatmap_daily: %w", err)
	}
	if err := s.DB.Conn.Exec(ctx, `TRUNCATE TABLE scroll_daily`); err != nil {
		return fmt.Errorf("failed to truncate scroll_daily: %w", err)
	}
	s.log.Warn().Msg("aggregate tables truncated for rebuild")
	return nil
}

// SumClickRange sums the click aggregate per pixel across the requested date
// range. unique_sessions is summed across days, an accepted overcount for
// sessions spanning midnight. The returned time is the newest last_updated of
// the rows read, zero when nothing matched.
func (s *AggregateStore) SumClickRange(ctx context.Context, req models.HeatmapRequest) ([]models.Point, time.Time, error) {
	query := `
		SELECT x, y, sum(click_count) AS clicks, sum(unique_sessions) AS sessions, max(last_updated) AS updated
		FROM heatmap_daily
		WHERE site_id = ? AND page_url = ? AND event_type = 'click'`
	args := []interface{}{req.SiteID, req.PageURL}
	if req.DeviceType != "" {
		query += ` AND device_type = ?`
		args = append(args, req.DeviceType)
	}
	if !req.Start.IsZero() {
		query += ` AND date >= ?`
		args = append(args, req.Start.Format("2006-01-02"))
	}
	if !req.End.IsZero() {
		query += ` AND date <= ?`
		args = append(args, req.End.Format("2006-01-02"))
	}
	query += ` GROUP BY x, y`

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query click aggregate: %w", err)
	}
	defer rows.Close()

	var points []models.Point
	var lastUpdated time.Time
	for rows.Next() {
		var p models.Point
		var updated time.Time
		if err := rows.Scan(&p.X, &p.Y, &p.Count, &p.UniqueSessions, &updated); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan click aggregate row: %w", err)
		}
		if updated.After(lastUpdated) {
			lastUpdated = updated
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("row error during click aggregate query: %w", err)
	}
	return points, lastUpdated, nil
}

// SumScrollRange sums scroll-reach buckets across the requested date range.
func (s *AggregateStore) SumScrollRange(ctx context.Context, req models.HeatmapRequest) ([]models.Point, time.Time, error) {
	query := `
		SELECT depth_bucket, sum(sessions) AS sessions, max(last_updated) AS updated
		FROM scroll_daily
		WHERE site_id = ? AND page_url = ?`
	args := []interface{}{req.SiteID, req.PageURL}
	if req.DeviceType != "" {
		query += ` AND device_type = ?`
		args = append(args, req.DeviceType)
	}
	if !req.Start.IsZero() {
		query += ` AND date >= ?`
		args = append(args, req.Start.Format("2006-01-02"))
	}
	if !req.End.IsZero() {
		query += ` AND date <= ?`
		args = append(args, req.End.Format("2006-01-02"))
	}
	query += ` GROUP BY depth_bucket ORDER BY depth_bucket ASC`

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query scroll aggregate: %w", err)
	}
	defer rows.Close()

	var points []models.Point
	var lastUpdated time.Time
	for rows.Next() {
		var p models.Point
		var updated time.Time
		if err := rows.Scan(&p.Y, &p.Count, &updated); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan scroll aggregate row: %w", err)
		}
		if updated.After(lastUpdated) {
			lastUpdated = updated
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("row error during scroll aggregate query: %w", err)
	}
	return points, lastUpdated, nil
}
