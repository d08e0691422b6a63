package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatlens/api/models"
)

type fakeRaw struct {
	events  []models.Event
	funnels map[string][]models.Event
	recent  []string
}

func (r *fakeRaw) SessionEvents(_ context.Context, _ string, _, _ time.Time) ([]models.Event, error) {
	return r.events, nil
}

func (r *fakeRaw) FunnelEvents(_ context.Context, _ string, sessionID string) ([]models.Event, error) {
	return r.funnels[sessionID], nil
}

func (r *fakeRaw) RecentSessionIDs(_ context.Context, _ string, _ uint64) ([]string, error) {
	return r.recent, nil
}

type fakeSink struct {
	sessions []models.Session
}

func (s *fakeSink) UpsertSessions(_ context.Context, sessions []models.Session) error {
	s.sessions = append(s.sessions, sessions...)
	return nil
}

func at(minute int) time.Time {
	return time.Date(2025, 1, 1, 10, minute, 0, 0, time.UTC)
}

func ev(session, eventType, url string, t time.Time) models.Event {
	return models.Event{
		SiteID: "s1", SessionID: session, EventType: eventType, URL: url, Timestamp: t,
	}
}

func TestFoldSessionLandingExitDuration(t *testing.T) {
	events := []models.Event{
		ev("sess-1", models.EventPageview, "/a", at(0)),
		ev("sess-1", models.EventPageview, "/b", at(2)),
		ev("sess-1", models.EventClick, "/c", at(5)),
	}

	sess := FoldSession(events)
	assert.Equal(t, "/a", sess.LandingPage)
	assert.Equal(t, "/c", sess.ExitPage)
	assert.Equal(t, int64(300), sess.DurationSeconds)
	assert.Equal(t, at(0), sess.StartTime)
	assert.Equal(t, at(5), sess.EndTime)
	assert.Equal(t, uint64(2), sess.PageViews)
	assert.Equal(t, uint64(3), sess.EventsCount)
}

func TestFoldSessionAttributionAndRevenue(t *testing.T) {
	e1 := ev("sess-1", models.EventPageview, "/a", at(0))
	e2 := ev("sess-1", models.EventConversion, "/a", at(1))
	e2.UTMSource = "newsletter"
	e2.EventRevenue = 49.90
	e3 := ev("sess-1", models.EventConversion, "/a", at(2))
	e3.UTMSource = "ads"
	e3.EventRevenue = 10.10

	sess := FoldSession([]models.Event{e1, e2, e3})
	assert.Equal(t, "newsletter", sess.UTMSource, "first non-empty attribution wins")
	assert.InDelta(t, 60.0, sess.TotalRevenue, 0.001)
}

func TestAggregateSessionsSplitsBySessionKey(t *testing.T) {
	raw := &fakeRaw{events: []models.Event{
		ev("sess-1", models.EventPageview, "/a", at(0)),
		ev("sess-1", models.EventPageLeave, "/a", at(1)),
		ev("sess-2", models.EventPageview, "/x", at(3)),
		ev("sess-2", models.EventPageview, "/y", at(4)),
		ev("", models.EventClick, "/noise", at(5)),
	}}
	sink := &fakeSink{}
	r := NewReconstructor(raw, sink, zerolog.Nop())

	n, err := r.AggregateSessions(context.Background(), "s1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, sink.sessions, 2)

	assert.Equal(t, "sess-1", sink.sessions[0].SessionID)
	assert.Equal(t, "/a", sink.sessions[0].ExitPage)
	assert.Equal(t, "sess-2", sink.sessions[1].SessionID)
	assert.Equal(t, "/x", sink.sessions[1].LandingPage)
	assert.Equal(t, "/y", sink.sessions[1].ExitPage)
}

func TestRecentFunnelsAndTransitions(t *testing.T) {
	raw := &fakeRaw{
		recent: []string{"sess-1", "sess-2"},
		funnels: map[string][]models.Event{
			"sess-1": {
				ev("sess-1", models.EventPageview, "/a", at(0)),
				ev("sess-1", models.EventClick, "/a", at(1)),
				ev("sess-1", models.EventPageview, "/a", at(2)),
				ev("sess-1", models.EventPageview, "/b", at(3)),
			},
			"sess-2": {
				ev("sess-2", models.EventPageview, "/a", at(0)),
				ev("sess-2", models.EventPageview, "/b", at(1)),
				ev("sess-2", models.EventPageview, "/c", at(2)),
			},
		},
	}
	r := NewReconstructor(raw, &fakeSink{}, zerolog.Nop())

	funnels, err := r.RecentFunnels(context.Background(), "s1", 100)
	require.NoError(t, err)
	require.Len(t, funnels, 2)
	assert.Equal(t, []string{"/a", "/b"}, funnels[0].Pages, "consecutive repeats collapse")
	assert.Equal(t, []string{"/a", "/b", "/c"}, funnels[1].Pages)

	matrix := Transitions(funnels)
	assert.Equal(t, uint64(2), matrix["/a"]["/b"])
	assert.Equal(t, uint64(1), matrix["/b"]["/c"])
}
