package aggregation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatlens/api/models"
)

type fakeRaw struct {
	clicks map[string][]models.Event
	depths map[string][]models.SessionDepth
}

func dayKey(day time.Time) string { return day.Format("2006-01-02") }

func (r *fakeRaw) ClickEventsForDay(_ context.Context, day time.Time) ([]models.Event, error) {
	return r.clicks[dayKey(day)], nil
}

func (r *fakeRaw) SessionDepthsForDay(_ context.Context, day time.Time) ([]models.SessionDepth, error) {
	return r.depths[dayKey(day)], nil
}

func (r *fakeRaw) EventDates(_ context.Context) ([]time.Time, error) {
	seen := map[string]time.Time{}
	for k := range r.clicks {
		d, _ := time.Parse("2006-01-02", k)
		seen[k] = d
	}
	for k := range r.depths {
		d, _ := time.Parse("2006-01-02", k)
		seen[k] = d
	}
	var dates []time.Time
	for _, d := range seen {
		dates = append(dates, d)
	}
	return dates, nil
}

type fakeSink struct {
	pixels    map[string][]models.PixelRow
	scrolls   map[string][]models.ScrollRow
	truncates int
	failOn    string
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		pixels:  make(map[string][]models.PixelRow),
		scrolls: make(map[string][]models.ScrollRow),
	}
}

func (s *fakeSink) ReplaceDay(_ context.Context, day time.Time, rows []models.PixelRow) error {
	if s.failOn == "clicks" {
		return errors.New("sink unavailable")
	}
	s.pixels[dayKey(day)] = rows
	return nil
}

func (s *fakeSink) ReplaceScrollDay(_ context.Context, day time.Time, rows []models.ScrollRow) error {
	if s.failOn == "scrolls" {
		return errors.New("sink unavailable")
	}
	s.scrolls[dayKey(day)] = rows
	return nil
}

func (s *fakeSink) Truncate(_ context.Context) error {
	s.truncates++
	s.pixels = make(map[string][]models.PixelRow)
	s.scrolls = make(map[string][]models.ScrollRow)
	return nil
}

var testDay = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func click(site, url, device, session string, x, y int32) models.Event {
	return models.Event{
		SiteID: site, URL: url, DeviceType: device, SessionID: session,
		EventType: models.EventClick, ClickX: x, ClickY: y,
	}
}

func fixedClock(e *Engine) {
	now := time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
}

func TestAggregateDayGroupsClicks(t *testing.T) {
	raw := &fakeRaw{clicks: map[string][]models.Event{
		dayKey(testDay): {
			click("s1", "/p", "desktop", "sess-1", 100, 200),
			click("s1", "/p", "desktop", "sess-1", 100, 200),
			click("s1", "/p", "desktop", "sess-2", 100, 200),
			click("s1", "/p", "desktop", "sess-2", 300, 400),
			click("s1", "/p", "mobile", "sess-3", 100, 200),
		},
	}}
	sink := newFakeSink()
	e := NewEngine(raw, sink, zerolog.Nop())
	fixedClock(e)

	require.NoError(t, e.AggregateDay(context.Background(), testDay))

	rows := sink.pixels[dayKey(testDay)]
	require.Len(t, rows, 3)

	first := rows[0]
	assert.Equal(t, "desktop", first.DeviceType)
	assert.Equal(t, int32(100), first.X)
	assert.Equal(t, int32(200), first.Y)
	assert.Equal(t, uint64(3), first.ClickCount)
	assert.Equal(t, uint64(2), first.UniqueSessions)
	assert.Equal(t, testDay, first.Date)
}

func TestAggregateDayIsIdempotent(t *testing.T) {
	raw := &fakeRaw{clicks: map[string][]models.Event{
		dayKey(testDay): {
			click("s1", "/p", "desktop", "sess-1", 100, 200),
			click("s1", "/p", "desktop", "sess-2", 100, 200),
			click("s1", "/q", "desktop", "sess-1", 50, 60),
		},
	}}
	sink := newFakeSink()
	e := NewEngine(raw, sink, zerolog.Nop())
	fixedClock(e)

	require.NoError(t, e.AggregateDay(context.Background(), testDay))
	snapshot1 := sink.pixels[dayKey(testDay)]

	require.NoError(t, e.AggregateDay(context.Background(), testDay))
	snapshot2 := sink.pixels[dayKey(testDay)]

	assert.Equal(t, snapshot1, snapshot2)
}

func TestAggregateDayExcludesNonPositivePositions(t *testing.T) {
	raw := &fakeRaw{clicks: map[string][]models.Event{
		dayKey(testDay): {
			click("s1", "/p", "desktop", "sess-1", 0, 200),
			click("s1", "/p", "desktop", "sess-1", 100, -5),
			click("s1", "/p", "desktop", "sess-1", 100, 200),
		},
	}}
	sink := newFakeSink()
	e := NewEngine(raw, sink, zerolog.Nop())
	fixedClock(e)

	require.NoError(t, e.AggregateDay(context.Background(), testDay))

	rows := sink.pixels[dayKey(testDay)]
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(1), rows[0].ClickCount)
	for _, r := range rows {
		assert.Positive(t, r.X)
		assert.Positive(t, r.Y)
	}
}

func TestAggregateDayBucketsScrollDepths(t *testing.T) {
	raw := &fakeRaw{depths: map[string][]models.SessionDepth{
		dayKey(testDay): {
			{SiteID: "s1", PageURL: "/p", DeviceType: "desktop", SessionID: "a", MaxDepth: 95},
			{SiteID: "s1", PageURL: "/p", DeviceType: "desktop", SessionID: "b", MaxDepth: 92},
			{SiteID: "s1", PageURL: "/p", DeviceType: "desktop", SessionID: "c", MaxDepth: 100},
			{SiteID: "s1", PageURL: "/p", DeviceType: "desktop", SessionID: "d", MaxDepth: 130},
			{SiteID: "s1", PageURL: "/p", DeviceType: "desktop", SessionID: "e", MaxDepth: 0},
		},
	}}
	sink := newFakeSink()
	e := NewEngine(raw, sink, zerolog.Nop())
	fixedClock(e)

	require.NoError(t, e.AggregateDay(context.Background(), testDay))

	rows := sink.scrolls[dayKey(testDay)]
	require.Len(t, rows, 2)
	assert.Equal(t, int32(90), rows[0].DepthBucket)
	assert.Equal(t, uint64(2), rows[0].Sessions)
	assert.Equal(t, int32(100), rows[1].DepthBucket)
	assert.Equal(t, uint64(2), rows[1].Sessions, "depths above 100 clamp into the top bucket")
}

func TestAggregationJobsAreSingleFlight(t *testing.T) {
	raw := &fakeRaw{}
	e := NewEngine(raw, newFakeSink(), zerolog.Nop())
	fixedClock(e)

	e.jobLock.Lock()
	defer e.jobLock.Unlock()

	assert.ErrorIs(t, e.AggregateDay(context.Background(), testDay), ErrAggregationRunning)
	assert.ErrorIs(t, e.Rebuild(context.Background()), ErrAggregationRunning)
}

func TestRebuildTruncatesAndWalksAllDates(t *testing.T) {
	day2 := testDay.AddDate(0, 0, 1)
	raw := &fakeRaw{clicks: map[string][]models.Event{
		dayKey(testDay): {click("s1", "/p", "desktop", "a", 1, 1)},
		dayKey(day2):    {click("s1", "/p", "desktop", "b", 2, 2)},
	}}
	sink := newFakeSink()
	e := NewEngine(raw, sink, zerolog.Nop())
	fixedClock(e)

	require.NoError(t, e.Rebuild(context.Background()))

	assert.Equal(t, 1, sink.truncates)
	assert.Len(t, sink.pixels[dayKey(testDay)], 1)
	assert.Len(t, sink.pixels[dayKey(day2)], 1)
}

func TestAggregateDayFailurePropagates(t *testing.T) {
	raw := &fakeRaw{clicks: map[string][]models.Event{
		dayKey(testDay): {click("s1", "/p", "desktop", "a", 1, 1)},
	}}
	sink := newFakeSink()
	sink.failOn = "clicks"
	e := NewEngine(raw, sink, zerolog.Nop())
	fixedClock(e)

	err := e.AggregateDay(context.Background(), testDay)
	require.Error(t, err)
	assert.Empty(t, sink.pixels)
}
