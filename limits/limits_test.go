package limits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/t2bot/patient-media-repo/common/config"
)

func newTestLimiter(max int) (*FetchLimiter, *time.Time) {
	l := NewFetchLimiter(config.DistinctFetchesConfig{Enabled: true, MaxFetches: max, WindowSeconds: 60})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestFetchLimiterDistinct(t *testing.T) {
	l, _ := newTestLimiter(2)

	ok, _ := l.Allow("alice", "a")
	assert.True(t, ok)
	ok, _ = l.Allow("alice", "b")
	assert.True(t, ok)

	// repeat fetches are free
	ok, _ = l.Allow("alice", "a")
	assert.True(t, ok)

	ok, retry := l.Allow("alice", "c")
	assert.False(t, ok)
	assert.Equal(t, 60*time.Second, retry)

	// other identities have their own window
	ok, _ = l.Allow("bob", "c")
	assert.True(t, ok)
}

func TestFetchLimiterWindowResets(t *testing.T) {
	l, now := newTestLimiter(1)

	ok, _ := l.Allow("alice", "a")
	assert.True(t, ok)

	*now = now.Add(45 * time.Second)
	ok, retry := l.Allow("alice", "b")
	assert.False(t, ok)
	assert.Equal(t, 15*time.Second, retry)

	*now = now.Add(15 * time.Second)
	ok, _ = l.Allow("alice", "b")
	assert.True(t, ok)
}

func TestFetchLimiterDisabled(t *testing.T) {
	l := NewFetchLimiter(config.DistinctFetchesConfig{Enabled: false, MaxFetches: 1, WindowSeconds: 60})
	for _, id := range []string{"a", "b", "c"} {
		ok, _ := l.Allow("alice", id)
		assert.True(t, ok)
	}

	l.Reload(config.DistinctFetchesConfig{Enabled: true, MaxFetches: 1, WindowSeconds: 60})
	ok, _ := l.Allow("alice", "a")
	assert.True(t, ok)
	ok, _ = l.Allow("alice", "b")
	assert.False(t, ok)
}

func TestFetchLimiterReloadKeepsWindows(t *testing.T) {
	l, _ := newTestLimiter(2)

	ok, _ := l.Allow("alice", "a")
	assert.True(t, ok)
	ok, _ = l.Allow("alice", "b")
	assert.True(t, ok)

	l.Reload(config.DistinctFetchesConfig{Enabled: true, MaxFetches: 2, WindowSeconds: 60})
	ok, _ = l.Allow("alice", "c")
	assert.False(t, ok)
	ok, _ = l.Allow("alice", "a")
	assert.True(t, ok)

	// raising the limit applies to the open window
	l.Reload(config.DistinctFetchesConfig{Enabled: true, MaxFetches: 3, WindowSeconds: 60})
	ok, _ = l.Allow("alice", "c")
	assert.True(t, ok)
	ok, _ = l.Allow("alice", "d")
	assert.False(t, ok)
}

func TestRequestLimiterLookups(t *testing.T) {
	l := GetRequestLimiter(config.RateLimitConfig{RequestsPerSecond: 1, BurstCount: 1}, false)
	assert.Equal(t, []string{"RemoteAddr"}, l.GetIPLookups())
	assert.Equal(t, 1, l.GetBurst())

	l = GetRequestLimiter(config.RateLimitConfig{RequestsPerSecond: 2, BurstCount: 3}, true)
	assert.Equal(t, []string{"X-Forwarded-For", "X-Real-IP", "RemoteAddr"}, l.GetIPLookups())
	assert.Equal(t, 3, l.GetBurst())
	assert.Equal(t, float64(2), l.GetMax())
}
