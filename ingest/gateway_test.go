package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatlens/api/models"
	"heatlens/api/normalizer"
	"heatlens/api/ratelimit"
)

type fakeWriter struct {
	mu       sync.Mutex
	inserted [][]models.Event
	err      error
}

func (w *fakeWriter) InsertEvents(_ context.Context, events []models.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.inserted = append(w.inserted, events)
	return nil
}

func (w *fakeWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, batch := range w.inserted {
		n += len(batch)
	}
	return n
}

func (w *fakeWriter) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

type fakeRegistry struct {
	known map[string]bool
	err   error
}

func (r *fakeRegistry) Exists(_ context.Context, siteID string) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	return r.known[siteID], nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *fakePublisher) Publish(ev models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newTestGateway(writer *fakeWriter, registry *fakeRegistry) (*Gateway, *fakePublisher) {
	pub := &fakePublisher{}
	gw := NewGateway(
		writer,
		registry,
		ratelimit.NewFixedWindowLimiter(15*time.Minute, 100),
		pub,
		GatewayConfig{WriteTimeout: time.Second, BufferCapacity: 100, BufferRetryWait: 10 * time.Millisecond},
		zerolog.Nop(),
	)
	return gw, pub
}

const validBatch = `{"events": [
	{"site_id": "s1", "event_type": "click", "url": "/a", "click_x": 10, "click_y": 20},
	{"site_id": "s1", "event_type": "pageview", "url": "/a"},
	{"site_id": "s1", "event_type": "scroll_depth", "url": "/a", "scroll_percentage": 50}
]}`

func TestIngestAcceptsWholeValidBatch(t *testing.T) {
	writer := &fakeWriter{}
	gw, pub := newTestGateway(writer, &fakeRegistry{known: map[string]bool{"s1": true}})

	accepted, err := gw.Ingest(context.Background(), "203.0.113.45", []byte(validBatch))
	require.NoError(t, err)
	assert.Equal(t, 3, accepted)
	assert.Equal(t, 3, writer.total())
	assert.Equal(t, 3, pub.count())
	assert.False(t, gw.Degraded())
}

func TestIngestRejectsWholeBatchOnOneInvalidEvent(t *testing.T) {
	writer := &fakeWriter{}
	gw, pub := newTestGateway(writer, &fakeRegistry{known: map[string]bool{"s1": true}})

	body := []byte(`{"events": [
		{"site_id": "s1", "event_type": "click", "url": "/a"},
		{"event_type": "click", "url": "/b"}
	]}`)
	accepted, err := gw.Ingest(context.Background(), "203.0.113.45", body)

	var verr *normalizer.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, accepted)
	assert.Zero(t, writer.total())
	assert.Zero(t, pub.count())
}

func TestIngestRejectsUnknownSite(t *testing.T) {
	writer := &fakeWriter{}
	gw, _ := newTestGateway(writer, &fakeRegistry{known: map[string]bool{}})

	accepted, err := gw.Ingest(context.Background(), "203.0.113.45", []byte(validBatch))

	var verr *normalizer.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "site_id", verr.Field)
	assert.Zero(t, accepted)
	assert.Zero(t, writer.total())
}

func TestIngestAcceptsWhenRegistryUnavailable(t *testing.T) {
	writer := &fakeWriter{}
	gw, _ := newTestGateway(writer, &fakeRegistry{err: errors.New("registry down")})

	accepted, err := gw.Ingest(context.Background(), "203.0.113.45", []byte(validBatch))
	require.NoError(t, err)
	assert.Equal(t, 3, accepted)
}

func TestIngestRateLimits(t *testing.T) {
	writer := &fakeWriter{}
	pub := &fakePublisher{}
	gw := NewGateway(
		writer,
		&fakeRegistry{known: map[string]bool{"s1": true}},
		ratelimit.NewFixedWindowLimiter(15*time.Minute, 2),
		pub,
		GatewayConfig{WriteTimeout: time.Second},
		zerolog.Nop(),
	)

	body := []byte(`{"site_id": "s1", "url": "/p"}`)
	for i := 0; i < 2; i++ {
		_, err := gw.Ingest(context.Background(), "203.0.113.45", body)
		require.NoError(t, err)
	}

	_, err := gw.Ingest(context.Background(), "203.0.113.45", body)
	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, 0, rlErr.Remaining)
	assert.False(t, rlErr.ResetTime.IsZero())
}

func TestIngestDivertsToBufferOnStoreFailure(t *testing.T) {
	writer := &fakeWriter{err: errors.New("store down")}
	gw, pub := newTestGateway(writer, &fakeRegistry{known: map[string]bool{"s1": true}})

	accepted, err := gw.Ingest(context.Background(), "203.0.113.45", []byte(validBatch))
	require.NoError(t, err, "store outage must not fail the request")
	assert.Equal(t, 3, accepted)
	assert.True(t, gw.Degraded())
	assert.Equal(t, 3, gw.BufferedCount())
	assert.Equal(t, 3, pub.count(), "fan-out still happens for buffered events")
}

func TestBufferDrainsOnceStoreRecovers(t *testing.T) {
	writer := &fakeWriter{err: errors.New("store down")}
	gw, _ := newTestGateway(writer, &fakeRegistry{known: map[string]bool{"s1": true}})

	_, err := gw.Ingest(context.Background(), "203.0.113.45", []byte(validBatch))
	require.NoError(t, err)
	require.Equal(t, 3, gw.BufferedCount())

	gw.drainOnce(context.Background())
	assert.Equal(t, 3, gw.BufferedCount(), "drain keeps events while store is down")
	assert.True(t, gw.Degraded())

	writer.setErr(nil)
	gw.drainOnce(context.Background())
	assert.Zero(t, gw.BufferedCount())
	assert.False(t, gw.Degraded())
	assert.Equal(t, 3, writer.total())
}

func TestBufferDropsOldestOnOverflow(t *testing.T) {
	b := NewBuffer(2)
	b.Add([]models.Event{{ID: "1"}, {ID: "2"}})
	b.Add([]models.Event{{ID: "3"}})

	require.Equal(t, 2, b.Len())
	assert.Equal(t, uint64(1), b.Dropped())

	batch := b.Take(2)
	require.Len(t, batch, 2)
	assert.Equal(t, "2", batch[0].ID)
	assert.Equal(t, "3", batch[1].ID)
}
