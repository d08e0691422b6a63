package models

import "time"

// Heatmap types exposed by the query endpoint.
const (
	HeatmapClick  = "click"
	HeatmapScroll = "scroll"
	HeatmapRead   = "read"
)

// PixelRow is one pre-aggregated cell of the click heatmap, keyed by
// (site_id, page_url, device_type, event_type, date, x, y). Rows are written
// by the aggregation engine only.
type PixelRow struct {
	SiteID         string    `json:"site_id"`
	PageURL        string    `json:"page_url"`
	DeviceType     string    `json:"device_type"`
	EventType      string    `json:"event_type"`
	Date           time.Time `json:"date"`
	X              int32     `json:"x"`
	Y              int32     `json:"y"`
	ClickCount     uint64    `json:"click_count"`
	UniqueSessions uint64    `json:"unique_sessions"`
	LastUpdated    time.Time `json:"last_updated"`
}

// ScrollRow is one pre-aggregated scroll-reach cell: the number of sessions
// whose deepest scroll on the page landed in this 10% depth bucket on the
// given date.
type ScrollRow struct {
	SiteID      string    `json:"site_id"`
	PageURL     string    `json:"page_url"`
	DeviceType  string    `json:"device_type"`
	Date        time.Time `json:"date"`
	DepthBucket int32     `json:"depth_bucket"`
	Sessions    uint64    `json:"sessions"`
	LastUpdated time.Time `json:"last_updated"`
}

// Point is one entry of a heatmap query result. For click heatmaps X/Y are
// page coordinates; for scroll heatmaps Y is a depth percentage bucket and
// Count is the number of sessions that reached at least that depth; for read
// heatmaps Y is a page position and Count is total dwell seconds.
type Point struct {
	X              int32  `json:"x"`
	Y              int32  `json:"y"`
	Count          uint64 `json:"count"`
	UniqueSessions uint64 `json:"unique_sessions,omitempty"`
}

// SessionDepth is one session's deepest scroll position on a page for a day,
// the input the scroll pre-aggregate is bucketed from.
type SessionDepth struct {
	SiteID     string
	PageURL    string
	DeviceType string
	SessionID  string
	MaxDepth   int32
}

// SitePage identifies one tracked page and its recent activity.
type SitePage struct {
	SiteID  string `json:"site_id"`
	PageURL string `json:"page_url"`
	Events  uint64 `json:"events"`
}

// HeatmapRequest identifies one heatmap to resolve. Zero Start/End mean an
// unbounded range on that side; an empty DeviceType matches all devices.
// Range is an optional named window ("all", "7d", "30d"); named windows give
// warmable cache keys, while explicit dates cache under the concrete range.
type HeatmapRequest struct {
	SiteID      string
	PageURL     string
	DeviceType  string
	HeatmapType string
	Range       string
	Start       time.Time
	End         time.Time
}

// ApplyRange materializes a named window into Start/End relative to now.
func (r *HeatmapRequest) ApplyRange(now time.Time) {
	switch r.Range {
	case "7d":
		r.Start = now.AddDate(0, 0, -7)
		r.End = time.Time{}
	case "30d":
		r.Start = now.AddDate(0, 0, -30)
		r.End = time.Time{}
	case "all":
		r.Start, r.End = time.Time{}, time.Time{}
	}
}

// RangeLabel returns the cache range label: the named window when set, "all"
// when both bounds are zero, otherwise the concrete ISO date range.
func (r HeatmapRequest) RangeLabel() string {
	if r.Range != "" {
		return r.Range
	}
	if r.Start.IsZero() && r.End.IsZero() {
		return "all"
	}
	label := ""
	if !r.Start.IsZero() {
		label = r.Start.Format("2006-01-02")
	}
	label += ".."
	if !r.End.IsZero() {
		label += r.End.Format("2006-01-02")
	}
	return label
}
