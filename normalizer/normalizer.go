package normalizer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"heatlens/api/models"
)

// ValidationError reports a structurally invalid payload. The gateway rejects
// the whole request when any event in a batch fails validation; partial
// acceptance would silently skew aggregate counts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %s (%s)", e.Reason, e.Field)
}

// Normalize shapes an inbound tracking payload into canonical events. The
// body may be a single event object, a {"events": [...]} batch, or a bare
// array. Legacy camelCase field names are coalesced to the canonical
// snake_case form. Returns zero events and a *ValidationError on any
// structural violation.
func Normalize(body []byte, now time.Time) ([]models.Event, error) {
	var top any
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, &ValidationError{Field: "body", Reason: "not valid JSON"}
	}

	var rawEvents []any
	switch v := top.(type) {
	case map[string]any:
		if inner, ok := v["events"]; ok {
			arr, ok := inner.([]any)
			if !ok {
				return nil, &ValidationError{Field: "events", Reason: "events must be an array"}
			}
			rawEvents = arr
		} else {
			rawEvents = []any{v}
		}
	case []any:
		rawEvents = v
	default:
		return nil, &ValidationError{Field: "body", Reason: "payload must be an object or array"}
	}

	if len(rawEvents) == 0 {
		return nil, &ValidationError{Field: "events", Reason: "empty batch"}
	}

	events := make([]models.Event, 0, len(rawEvents))
	for i, raw := range rawEvents {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("events[%d]", i),
				Reason: "event must be an object",
			}
		}
		ev, err := normalizeOne(obj, now)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func normalizeOne(obj map[string]any, now time.Time) (models.Event, error) {
	siteID := str(obj, "site_id", "siteId")
	if siteID == "" {
		return models.Event{}, &ValidationError{Field: "site_id", Reason: "site_id is required"}
	}

	url := str(obj, "url", "page_url", "pageUrl", "page_path", "pagePath")

	eventType := str(obj, "event_type", "eventType")
	if eventType == "" {
		// Simple single-event shape: site_id + url implies a pageview.
		if url == "" {
			return models.Event{}, &ValidationError{Field: "event_type", Reason: "event_type is required"}
		}
		eventType = models.EventPageview
	}
	if !models.ValidEventType(eventType) {
		return models.Event{}, &ValidationError{Field: "event_type", Reason: "unknown event_type " + eventType}
	}

	ev := models.Event{
		ID:        str(obj, "id", "event_id", "eventId"),
		SiteID:    siteID,
		SessionID: str(obj, "session_id", "sessionId"),
		UserID:    str(obj, "user_id", "userId"),
		EventType: eventType,
		Timestamp: timestamp(obj, now),
		URL:       url,
		Referrer:  str(obj, "referrer"),

		DeviceType: str(obj, "device_type", "deviceType"),

		ElementTag:   str(obj, "element_tag", "elementTag", "tag"),
		ElementID:    str(obj, "element_id", "elementId"),
		ElementClass: str(obj, "element_class", "elementClass"),
		ElementText:  str(obj, "element_text", "elementText"),
		ElementHref:  str(obj, "element_href", "elementHref", "href"),

		ClickX:           num(obj, "click_x", "clickX"),
		ClickY:           num(obj, "click_y", "clickY"),
		ScrollPercentage: num(obj, "scroll_percentage", "scrollPercentage"),
		ReadY:            num(obj, "read_y", "readY"),
		ReadDurationMs:   i64(obj, "read_duration_ms", "read_duration", "readDuration"),

		UTMSource:   str(obj, "utm_source", "utmSource"),
		UTMMedium:   str(obj, "utm_medium", "utmMedium"),
		UTMCampaign: str(obj, "utm_campaign", "utmCampaign"),
		UTMTerm:     str(obj, "utm_term", "utmTerm"),
		UTMContent:  str(obj, "utm_content", "utmContent"),
		GCLID:       str(obj, "gclid"),
		FBCLID:      str(obj, "fbclid"),

		EventRevenue: f64(obj, "event_revenue", "eventRevenue", "revenue"),
	}

	if vp, ok := obj["viewport"].(map[string]any); ok {
		ev.ViewportWidth = num(vp, "w", "width")
		ev.ViewportHeight = num(vp, "h", "height")
	} else {
		ev.ViewportWidth = num(obj, "viewport_width", "viewportWidth")
		ev.ViewportHeight = num(obj, "viewport_height", "viewportHeight")
	}

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.DeviceType == "" {
		ev.DeviceType = deviceFromViewport(ev.ViewportWidth)
	}
	return ev, nil
}

// deviceFromViewport classifies by viewport width when the client did not
// label the device itself.
func deviceFromViewport(width int32) string {
	switch {
	case width == 0:
		return "desktop"
	case width < 768:
		return "mobile"
	case width < 1024:
		return "tablet"
	default:
		return "desktop"
	}
}

func str(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func num(obj map[string]any, keys ...string) int32 {
	for _, k := range keys {
		if v, ok := obj[k].(float64); ok {
			return int32(v)
		}
	}
	return 0
}

func i64(obj map[string]any, keys ...string) int64 {
	for _, k := range keys {
		if v, ok := obj[k].(float64); ok {
			return int64(v)
		}
	}
	return 0
}

func f64(obj map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := obj[k].(float64); ok {
			return v
		}
	}
	return 0
}

func timestamp(obj map[string]any, now time.Time) time.Time {
	switch v := obj["timestamp"].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC()
		}
	case float64:
		// Epoch milliseconds from the browser.
		if v > 0 {
			return time.UnixMilli(int64(v)).UTC()
		}
	}
	return now.UTC()
}
