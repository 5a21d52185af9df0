package matchmaker

import (
	"sync"
	"time"
)

// RateLimiter caps how often a client may re-enter matchmaking,
// sliding window per client.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[ClientID][]time.Time
	limit    int
	interval time.Duration
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[ClientID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *RateLimiter) Allow(id ClientID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[id] = fresh
	return true
}

func (rl *RateLimiter) Forget(id ClientID) {
	rl.mu.Lock()
	delete(rl.history, id)
	rl.mu.Unlock()
}
