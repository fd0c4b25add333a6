package app

import (
	"sync"
	"time"

	"github.com/dkeye/whep-player/internal/domain"
)

// AttachPolicy decides whether a client may attach another player.
type AttachPolicy interface {
	Allow(owner domain.ClientToken) bool
}

// AllowAll never refuses an attach.
type AllowAll struct{}

func (AllowAll) Allow(domain.ClientToken) bool { return true }

// AttachRateLimiter allows at most limit attaches per owner within a
// sliding interval.
type AttachRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ClientToken][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewAttachRateLimiter(limit int, interval time.Duration) *AttachRateLimiter {
	return &AttachRateLimiter{
		history:  make(map[domain.ClientToken][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *AttachRateLimiter) Allow(owner domain.ClientToken) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[owner]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[owner] = fresh
		return false
	}

	rl.history[owner] = append(fresh, now)
	return true
}
