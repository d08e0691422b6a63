package models

import (
	"time"
)

// Event types accepted by the ingestion endpoint.
const (
	EventClick       = "click"
	EventScroll      = "scroll"
	EventScrollDepth = "scroll_depth"
	EventReadArea    = "read_area"
	EventPageview    = "pageview"
	EventPageLeave   = "page_leave"
	EventConversion  = "conversion"
)

// Event is a single immutable interaction fact as written to ClickHouse.
// Click and read coordinates are page-absolute (viewport offset plus scroll
// offset), never viewport-relative, so pixels aggregate across scroll
// positions.
type Event struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url"`
	Referrer  string    `json:"referrer,omitempty"`

	DeviceType     string `json:"device_type"`
	ViewportWidth  int32  `json:"viewport_width"`
	ViewportHeight int32  `json:"viewport_height"`

	ElementTag   string `json:"element_tag,omitempty"`
	ElementID    string `json:"element_id,omitempty"`
	ElementClass string `json:"element_class,omitempty"`
	ElementText  string `json:"element_text,omitempty"`
	ElementHref  string `json:"element_href,omitempty"`

	ClickX           int32 `json:"click_x"`
	ClickY           int32 `json:"click_y"`
	ScrollPercentage int32 `json:"scroll_percentage"`
	ReadY            int32 `json:"read_y"`
	ReadDurationMs   int64 `json:"read_duration_ms"`

	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
	GCLID       string `json:"gclid,omitempty"`
	FBCLID      string `json:"fbclid,omitempty"`

	EventRevenue float64 `json:"event_revenue"`
}

// ValidEventType reports whether t is one of the accepted event types.
func ValidEventType(t string) bool {
	switch t {
	case EventClick, EventScroll, EventScrollDepth, EventReadArea,
		EventPageview, EventPageLeave, EventConversion:
		return true
	default:
		return false
	}
}
