package ratelimit

import (
	"sync"
	"time"
)

// Limiter allows at most maxEvents per key within a sliding window.
// In-memory only. Keys with no event inside the window are swept, so a
// stream of one-off keys does not grow the map without bound.
type Limiter struct {
	maxEvents int
	window    time.Duration
	mu        sync.Mutex
	events    map[string][]time.Time
	lastSweep time.Time
}

// New creates a limiter with the given max events per window.
func New(maxEvents int, window time.Duration) *Limiter {
	return &Limiter{
		maxEvents: maxEvents,
		window:    window,
		events:    make(map[string][]time.Time),
		lastSweep: time.Now(),
	}
}

// Allow reports whether key may proceed. If allowed, the event is recorded.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(cutoff)
		l.lastSweep = now
	}

	existing := l.events[key]
	pruned := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= l.maxEvents {
		l.events[key] = pruned
		return false
	}

	l.events[key] = append(pruned, now)
	return true
}

// sweep drops keys whose newest event is at or before cutoff. Events are
// appended in time order, so the last one is the newest.
func (l *Limiter) sweep(cutoff time.Time) {
	for key, ts := range l.events {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(l.events, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
