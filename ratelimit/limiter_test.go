package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowCap(t *testing.T) {
	l := NewFixedWindowLimiter(15*time.Minute, 100)

	var last Result
	for i := 0; i < 100; i++ {
		last = l.Check("key")
		require.True(t, last.Allowed, "request %d should be allowed", i+1)
	}
	assert.Equal(t, 0, last.Remaining)

	denied := l.Check("key")
	assert.False(t, denied.Allowed)
	assert.Equal(t, 0, denied.Remaining)
	assert.False(t, denied.ResetTime.IsZero())
}

func TestFixedWindowKeysAreIndependent(t *testing.T) {
	l := NewFixedWindowLimiter(15*time.Minute, 2)

	l.Check("a")
	l.Check("a")
	assert.False(t, l.Check("a").Allowed)
	assert.True(t, l.Check("b").Allowed)
}

func TestFixedWindowLazyReset(t *testing.T) {
	l := NewFixedWindowLimiter(15*time.Minute, 1)

	current := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	require.True(t, l.Check("key").Allowed)
	require.False(t, l.Check("key").Allowed)

	current = current.Add(16 * time.Minute)
	res := l.Check("key")
	assert.True(t, res.Allowed)
	assert.Equal(t, current.Add(15*time.Minute), res.ResetTime)
}

func TestSweepDropsExpiredWindows(t *testing.T) {
	l := NewFixedWindowLimiter(time.Minute, 10)

	current := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	l.Check("a")
	l.Check("b")
	require.Len(t, l.windows, 2)

	current = current.Add(2 * time.Minute)
	l.Sweep()
	assert.Empty(t, l.windows)
}

func TestAnonymizeIP(t *testing.T) {
	assert.Equal(t, "203.0.113.0", AnonymizeIP("203.0.113.45"))
	assert.Equal(t, "10.1.2.0", AnonymizeIP("10.1.2.3"))
	assert.Equal(t, "2001:db8:1:2::", AnonymizeIP("2001:db8:1:2:3:4:5:6"))
	assert.Equal(t, "0.0.0.0", AnonymizeIP("not-an-ip"))
	assert.Equal(t, "0.0.0.0", AnonymizeIP(""))
}

func TestClientKeyCollapsesSameSubnet(t *testing.T) {
	assert.Equal(t, ClientKey("203.0.113.45"), ClientKey("203.0.113.99"))
	assert.NotEqual(t, ClientKey("203.0.113.45"), ClientKey("203.0.114.45"))
	assert.Len(t, ClientKey("203.0.113.45"), 32)
}
