package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives a RateLimiter deterministically.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedLimiter(perMinute, perHour, perDay int, dataPerDay int64) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(perMinute, perHour, perDay, dataPerDay)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_NoLimits(t *testing.T) {
	rl, _ := newClockedLimiter(0, 0, 0, 0)

	for range 50 {
		require.NoError(t, rl.CheckRateLimit("user1", 100))
	}
	usage := rl.GetUsage("user1")
	assert.Equal(t, 50, usage.RequestsToday)
	assert.Equal(t, int64(5000), usage.BytesToday)
}

func TestRateLimiter_RequestsPerMinute(t *testing.T) {
	rl, clock := newClockedLimiter(2, 0, 0, 0)

	require.NoError(t, rl.CheckRateLimit("user1", 0))
	clock.advance(20 * time.Second)
	require.NoError(t, rl.CheckRateLimit("user1", 0))

	err := rl.CheckRateLimit("user1", 0)
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "minute", rle.Type)
	assert.Equal(t, 2, rle.Limit)
	assert.Equal(t, 40*time.Second, rle.RetryAfter)

	// rejected requests are not counted
	assert.Equal(t, 2, rl.GetUsage("user1").RequestsLastMinute)

	clock.advance(40 * time.Second)
	require.NoError(t, rl.CheckRateLimit("user1", 0))
	assert.Equal(t, 1, rl.GetUsage("user1").RequestsLastMinute)
}

func TestRateLimiter_RequestsPerHour(t *testing.T) {
	rl, clock := newClockedLimiter(0, 3, 0, 0)

	for range 3 {
		require.NoError(t, rl.CheckRateLimit("user1", 0))
		clock.advance(5 * time.Minute)
	}
	err := rl.CheckRateLimit("user1", 0)
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "hour", rle.Type)
	assert.Equal(t, 45*time.Minute, rle.RetryAfter)

	clock.advance(45 * time.Minute)
	assert.NoError(t, rl.CheckRateLimit("user1", 0))
}

func TestRateLimiter_DailyRequestQuota(t *testing.T) {
	rl, clock := newClockedLimiter(0, 0, 2, 0)

	require.NoError(t, rl.CheckRateLimit("user1", 0))
	require.NoError(t, rl.CheckRateLimit("user1", 0))

	err := rl.CheckRateLimit("user1", 0)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "requests", qe.Type)
	assert.Equal(t, int64(2), qe.Limit)
	assert.Equal(t, int64(2), qe.Used)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), qe.Resets)

	clock.advance(14 * time.Hour) // past midnight
	require.NoError(t, rl.CheckRateLimit("user1", 0))
	assert.Equal(t, 1, rl.GetUsage("user1").RequestsToday)
}

func TestRateLimiter_DailyDataQuota(t *testing.T) {
	rl, _ := newClockedLimiter(0, 0, 0, 1000)

	require.NoError(t, rl.CheckRateLimit("user1", 600))
	err := rl.CheckRateLimit("user1", 500)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "data", qe.Type)
	assert.Equal(t, int64(600), qe.Used)

	require.NoError(t, rl.CheckRateLimit("user1", 400))
	assert.Equal(t, int64(1000), rl.GetUsage("user1").BytesToday)
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl, _ := newClockedLimiter(1, 0, 0, 0)

	require.NoError(t, rl.CheckRateLimit("user1", 0))
	require.Error(t, rl.CheckRateLimit("user1", 0))
	require.NoError(t, rl.CheckRateLimit("user2", 0))
	assert.Equal(t, Usage{}, rl.GetUsage("unknown"))
}

func TestRateLimiter_Prune(t *testing.T) {
	rl, clock := newClockedLimiter(0, 0, 0, 0)

	require.NoError(t, rl.CheckRateLimit("old", 0))
	clock.advance(2 * time.Hour)
	require.NoError(t, rl.CheckRateLimit("recent", 0))

	assert.Equal(t, 1, rl.Prune(time.Hour))
	assert.Equal(t, Usage{}, rl.GetUsage("old"))
	assert.Equal(t, 1, rl.GetUsage("recent").RequestsToday)
	assert.Equal(t, 0, rl.Prune(time.Hour))
}

func TestRateLimitErrors_Messages(t *testing.T) {
	rle := &RateLimitError{Type: "minute", Limit: 5, RetryAfter: 30 * time.Second}
	assert.Equal(t, "rate limit exceeded for minute (limit: 5, retry after: 30s)", rle.Error())

	resets := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	qe := &QuotaExceededError{Type: "data", Limit: 10, Used: 8, Resets: resets}
	assert.Equal(t, "quota exceeded for data (used: 8, limit: 10, resets: 2024-05-02T00:00:00Z)", qe.Error())
}

func TestServer_PruneClients(t *testing.T) {
	s := &Server{rateLimiter: NewRateLimiter(0, 0, 0, 0)}
	require.NoError(t, s.rateLimiter.CheckRateLimit("idle", 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.PruneClients(ctx, 5*time.Millisecond, 0)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return s.rateLimiter.GetUsage("idle") == Usage{}
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
