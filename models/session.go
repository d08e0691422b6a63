package models

import "time"

// Session is the per-visit rollup built by the session reconstructor from all
// raw events sharing a (site_id, session_id) key.
type Session struct {
	SiteID    string    `json:"site_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	// DurationSeconds is always EndTime minus StartTime.
	DurationSeconds int64   `json:"duration_seconds"`
	PageViews       uint64  `json:"page_views"`
	EventsCount     uint64  `json:"events_count"`
	TotalRevenue    float64 `json:"total_revenue"`
	LandingPage     string  `json:"landing_page"`
	ExitPage        string  `json:"exit_page"`
	DeviceType      string  `json:"device_type"`

	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	GCLID       string `json:"gclid,omitempty"`
	FBCLID      string `json:"fbclid,omitempty"`
}
