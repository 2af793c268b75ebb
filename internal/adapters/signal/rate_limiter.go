package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Podium/internal/domain"
)

type limitKey struct {
	room   domain.RoomCode
	viewer domain.ViewerID
}

// RoomRateLimiter is a sliding window limiter keyed by viewer within a room,
// so every tab of one viewer shares the same budget.
// A non-positive limit allows everything.
type RoomRateLimiter struct {
	mu       sync.Mutex
	history  map[limitKey][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRoomRateLimiter(limit int, interval time.Duration) *RoomRateLimiter {
	return &RoomRateLimiter{
		history:  make(map[limitKey][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RoomRateLimiter) Allow(room domain.RoomCode, viewer domain.ViewerID) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := limitKey{room: room, viewer: viewer}
	now := rl.now()
	fresh := rl.fresh(rl.history[key], now)

	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}

	rl.history[key] = append(fresh, now)
	return true
}

// Prune drops viewers with no attempt inside the window.
func (rl *RoomRateLimiter) Prune() {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, attempts := range rl.history {
		if fresh := rl.fresh(attempts, now); len(fresh) == 0 {
			delete(rl.history, key)
		} else {
			rl.history[key] = fresh
		}
	}
}

func (rl *RoomRateLimiter) fresh(attempts []time.Time, now time.Time) []time.Time {
	windowStart := now.Add(-rl.interval)
	out := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			out = append(out, t)
		}
	}
	return out
}
