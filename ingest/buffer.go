package ingest

import (
	"sync"

	"heatlens/api/metrics"
	"heatlens/api/models"
)

// Buffer is the bounded in-memory fallback for events that could not be
// written durably. It is a soft-reliability net, not data-loss-proof: when
// full, the oldest events are dropped to admit new ones, since recent
// telemetry is worth more than stale telemetry that already failed to flush.
type Buffer struct {
	mu      sync.Mutex
	events  []models.Event
	cap     int
	dropped uint64
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Buffer{cap: capacity}
}

func (b *Buffer) Add(events []models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, events...)
	if overflow := len(b.events) - b.cap; overflow > 0 {
		b.events = b.events[overflow:]
		b.dropped += uint64(overflow)
	}
	metrics.BufferDepth.Set(float64(len(b.events)))
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Dropped returns the number of events lost to overflow since startup.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Take removes and returns up to n buffered events, oldest first.
func (b *Buffer) Take(n int) []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > len(b.events) {
		n = len(b.events)
	}
	if n == 0 {
		return nil
	}
	batch := make([]models.Event, n)
	copy(batch, b.events[:n])
	b.events = b.events[n:]
	metrics.BufferDepth.Set(float64(len(b.events)))
	return batch
}

// Requeue puts a failed batch back at the front so ordering is preserved for
// the next drain attempt.
func (b *Buffer) Requeue(events []models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(events, b.events...)
	if overflow := len(b.events) - b.cap; overflow > 0 {
		b.events = b.events[:b.cap]
		b.dropped += uint64(overflow)
	}
	metrics.BufferDepth.Set(float64(len(b.events)))
}
