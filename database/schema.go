package database

import (
	"context"
	"fmt"
)

// Table DDL applied on startup. All statements are IF NOT EXISTS so repeated
// boots are safe. heatmap_daily and scroll_daily are partitioned by date:
// re-aggregating a day is a partition drop followed by a fresh insert.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id String,
		site_id String,
		session_id String,
		user_id String,
		event_type LowCardinality(String),
		timestamp DateTime64(3),
		url String,
		referrer String,
		device_type LowCardinality(String),
		viewport_width Int32,
		viewport_height Int32,
		element_tag String,
		element_id String,
		element_class String,
		element_text String,
		element_href String,
		click_x Int32,
		click_y Int32,
		scroll_percentage Int32,
		read_y Int32,
		read_duration_ms Int64,
		utm_source String,
		utm_medium String,
		utm_campaign String,
		utm_term String,
		utm_content String,
		gclid String,
		fbclid String,
		event_revenue Float64
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (site_id, timestamp, session_id)`,

	`CREATE TABLE IF NOT EXISTS heatmap_daily (
		site_id String,
		page_url String,
		device_type LowCardinality(String),
		event_type LowCardinality(String),
		date Date,
		x Int32,
		y Int32,
		click_count UInt64,
		unique_sessions UInt64,
		last_updated DateTime
	) ENGINE = MergeTree()
	PARTITION BY date
	ORDER BY (site_id, page_url, device_type, event_type, date, x, y)`,

	`CREATE TABLE IF NOT EXISTS scroll_daily (
		site_id String,
		page_url String,
		device_type LowCardinality(String),
		date Date,
		depth_bucket Int32,
		sessions UInt64,
		last_updated DateTime
	) ENGINE = MergeTree()
	PARTITION BY date
	ORDER BY (site_id, page_url, device_type, date, depth_bucket)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		site_id String,
		session_id String,
		user_id String,
		start_time DateTime64(3),
		end_time DateTime64(3),
		duration_seconds Int64,
		page_views UInt64,
		events_count UInt64,
		total_revenue Float64,
		landing_page String,
		exit_page String,
		device_type LowCardinality(String),
		utm_source String,
		utm_medium String,
		utm_campaign String,
		gclid String,
		fbclid String
	) ENGINE = ReplacingMergeTree(end_time)
	ORDER BY (site_id, session_id)`,
}

// EnsureSchema creates the analytics tables if they do not exist yet.
func (c *ClickHouseClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if err := c.Conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	c.log.Info().Int("tables", len(schemaStatements)).Msg("ClickHouse schema ensured")
	return nil
}
