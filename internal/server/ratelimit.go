package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter enforces per-client request rates and daily quotas. Reconstruction requests are
// CPU bound, so limits are counted in requests and uploaded bytes rather than connections.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	requestsPerHour   int
	maxRequestsPerDay int
	maxDataPerDay     int64 // bytes

	clients map[string]*clientUsage
	now     func() time.Time
}

// clientUsage counts requests in fixed windows that start at the first request of the window.
type clientUsage struct {
	minuteStart, hourStart, dayStart time.Time

	minuteCount int
	hourCount   int
	dayCount    int
	dayBytes    int64

	lastSeen time.Time
}

// Usage is a snapshot of one client's counters.
type Usage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	BytesToday         int64
	LastSeen           time.Time
}

// NewRateLimiter creates a rate limiter. A zero limit is not enforced.
func NewRateLimiter(requestsPerMinute, requestsPerHour, maxRequestsPerDay int, maxDataPerDay int64) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		maxRequestsPerDay: maxRequestsPerDay,
		maxDataPerDay:     maxDataPerDay,
		clients:           make(map[string]*clientUsage),
		now:               time.Now,
	}
}

// CheckRateLimit admits one request of dataSize bytes from client or returns a *RateLimitError or
// *QuotaExceededError. Rejected requests are not counted.
func (rl *RateLimiter) CheckRateLimit(client string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u, ok := rl.clients[client]
	if !ok {
		u = &clientUsage{minuteStart: now, hourStart: now, dayStart: startOfDay(now)}
		rl.clients[client] = u
	}
	u.roll(now)

	if rl.requestsPerMinute > 0 && u.minuteCount >= rl.requestsPerMinute {
		return &RateLimitError{Type: "minute", Limit: rl.requestsPerMinute, RetryAfter: u.minuteStart.Add(time.Minute).Sub(now)}
	}
	if rl.requestsPerHour > 0 && u.hourCount >= rl.requestsPerHour {
		return &RateLimitError{Type: "hour", Limit: rl.requestsPerHour, RetryAfter: u.hourStart.Add(time.Hour).Sub(now)}
	}
	resets := u.dayStart.AddDate(0, 0, 1)
	if rl.maxRequestsPerDay > 0 && u.dayCount >= rl.maxRequestsPerDay {
		return &QuotaExceededError{Type: "requests", Limit: int64(rl.maxRequestsPerDay), Used: int64(u.dayCount), Resets: resets}
	}
	if rl.maxDataPerDay > 0 && u.dayBytes+dataSize > rl.maxDataPerDay {
		return &QuotaExceededError{Type: "data", Limit: rl.maxDataPerDay, Used: u.dayBytes, Resets: resets}
	}

	u.minuteCount++
	u.hourCount++
	u.dayCount++
	u.dayBytes += dataSize
	u.lastSeen = now
	return nil
}

// roll starts new windows once the current ones have elapsed.
func (u *clientUsage) roll(now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.minuteStart, u.minuteCount = now, 0
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.hourStart, u.hourCount = now, 0
	}
	if day := startOfDay(now); day.After(u.dayStart) {
		u.dayStart, u.dayCount, u.dayBytes = day, 0, 0
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// GetUsage returns the counters of client. Unknown clients report zero usage.
func (rl *RateLimiter) GetUsage(client string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u, ok := rl.clients[client]
	if !ok {
		return Usage{}
	}
	return Usage{
		RequestsLastMinute: u.minuteCount,
		RequestsLastHour:   u.hourCount,
		RequestsToday:      u.dayCount,
		BytesToday:         u.dayBytes,
		LastSeen:           u.lastSeen,
	}
}

// Prune forgets clients idle for longer than idle and returns how many were removed.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	n := 0
	for id, u := range rl.clients {
		if u.lastSeen.Before(cutoff) {
			delete(rl.clients, id)
			n++
		}
	}
	return n
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a quota violation.
type QuotaExceededError struct {
	Type   string    // "requests" or "data"
	Limit  int64     // the limit that was exceeded
	Used   int64     // current usage
	Resets time.Time // when the quota resets
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
