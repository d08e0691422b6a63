package normalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatlens/api/models"
)

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestNormalizeSingleEvent(t *testing.T) {
	body := []byte(`{
		"site_id": "s1",
		"event_type": "click",
		"session_id": "sess-1",
		"url": "/pricing",
		"click_x": 100,
		"click_y": 200,
		"viewport": {"w": 1440, "h": 900}
	}`)

	events, err := Normalize(body, testNow)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "s1", ev.SiteID)
	assert.Equal(t, models.EventClick, ev.EventType)
	assert.Equal(t, int32(100), ev.ClickX)
	assert.Equal(t, int32(200), ev.ClickY)
	assert.Equal(t, int32(1440), ev.ViewportWidth)
	assert.Equal(t, "desktop", ev.DeviceType)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, testNow, ev.Timestamp)
}

func TestNormalizeBatch(t *testing.T) {
	body := []byte(`{"events": [
		{"site_id": "s1", "event_type": "pageview", "url": "/a"},
		{"site_id": "s1", "event_type": "scroll_depth", "url": "/a", "scroll_percentage": 75}
	]}`)

	events, err := Normalize(body, testNow)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int32(75), events[1].ScrollPercentage)
}

func TestNormalizeCoalescesLegacyFieldNames(t *testing.T) {
	body := []byte(`{
		"siteId": "s1",
		"eventType": "click",
		"sessionId": "sess-1",
		"pageUrl": "/legacy",
		"clickX": 10,
		"clickY": 20,
		"utmSource": "newsletter"
	}`)

	events, err := Normalize(body, testNow)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "s1", ev.SiteID)
	assert.Equal(t, "/legacy", ev.URL)
	assert.Equal(t, int32(10), ev.ClickX)
	assert.Equal(t, "newsletter", ev.UTMSource)
}

func TestNormalizeSimpleShapeDefaultsToPageview(t *testing.T) {
	body := []byte(`{"site_id": "s1", "url": "/landing"}`)

	events, err := Normalize(body, testNow)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventPageview, events[0].EventType)
}

func TestNormalizeRejectsMissingSiteID(t *testing.T) {
	body := []byte(`{"event_type": "click", "url": "/p"}`)

	events, err := Normalize(body, testNow)
	assert.Nil(t, events)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "site_id", verr.Field)
}

func TestNormalizeRejectsWholeBatchOnOneBadEvent(t *testing.T) {
	body := []byte(`{"events": [
		{"site_id": "s1", "event_type": "click", "url": "/a"},
		{"event_type": "click", "url": "/b"}
	]}`)

	events, err := Normalize(body, testNow)
	assert.Nil(t, events)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestNormalizeRejectsNonObjectPayloads(t *testing.T) {
	for _, body := range []string{`"just a string"`, `42`, `not json`, `{"events": {}}`, `[]`} {
		events, err := Normalize([]byte(body), testNow)
		assert.Nil(t, events, "payload: %s", body)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "payload: %s", body)
	}
}

func TestNormalizeRejectsUnknownEventType(t *testing.T) {
	body := []byte(`{"site_id": "s1", "event_type": "teleport", "url": "/p"}`)

	_, err := Normalize(body, testNow)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "event_type", verr.Field)
}

func TestNormalizeTimestampForms(t *testing.T) {
	body := []byte(`{"events": [
		{"site_id": "s1", "url": "/a", "timestamp": "2025-03-01T10:00:00Z"},
		{"site_id": "s1", "url": "/b", "timestamp": 1740823200000},
		{"site_id": "s1", "url": "/c"}
	]}`)

	events, err := Normalize(body, testNow)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), events[0].Timestamp)
	assert.Equal(t, time.UnixMilli(1740823200000).UTC(), events[1].Timestamp)
	assert.Equal(t, testNow, events[2].Timestamp)
}

func TestDeviceClassification(t *testing.T) {
	cases := []struct {
		width int32
		want  string
	}{
		{0, "desktop"},
		{375, "mobile"},
		{800, "tablet"},
		{1920, "desktop"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, deviceFromViewport(tc.width), "width %d", tc.width)
	}
}

func TestNormalizeKeepsLargeReadDurations(t *testing.T) {
	// Durations above the int32 range must survive intact.
	body := []byte(`{"site_id": "s1", "url": "/docs", "event_type": "read_area",
		"read_y": 1200, "read_duration_ms": 5000000000}`)

	events, err := Normalize(body, testNow)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(5000000000), events[0].ReadDurationMs)
}
