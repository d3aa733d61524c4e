// Package ratelimit implements a per-process fixed-window request limiter
// for the public submission endpoints.
//
// Limits are per instance. When several instances serve traffic each keeps
// its own counters; the edge firewall provides the global layer.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval is how often expired windows are dropped.
const DefaultSweepInterval = time.Minute

// Options configures a FixedWindow limiter.
type Options struct {
	// Window is the length of one counting window.
	Window time.Duration
	// MaxRequests is the number of requests allowed within a window.
	MaxRequests int
	// SweepInterval defaults to DefaultSweepInterval.
	SweepInterval time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
	// OnLimited is invoked for every rejected request.
	OnLimited func(key string)
}

// Entry is the counter for one key.
type Entry struct {
	Count   int
	ResetAt time.Time
}

// FixedWindow counts requests per key in non-overlapping windows that reset
// on the first request after expiry.
type FixedWindow struct {
	mu        sync.Mutex
	hits      map[string]*Entry
	window    time.Duration
	max       int
	sweep     time.Duration
	now       func() time.Time
	onLimited func(string)
}

// New constructs a limiter. Call Run to enable the background sweep.
func New(opts Options) *FixedWindow {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	return &FixedWindow{
		hits:      make(map[string]*Entry),
		window:    opts.Window,
		max:       opts.MaxRequests,
		sweep:     opts.SweepInterval,
		now:       opts.Now,
		onLimited: opts.OnLimited,
	}
}

// IsRateLimited records a request for key and reports whether it must be
// rejected.
func (l *FixedWindow) IsRateLimited(key string) bool {
	limited, _ := l.Check(key)
	return limited
}

// Check records a request for key. When the request is rejected it also
// returns the time left until the window resets.
func (l *FixedWindow) Check(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	entry, ok := l.hits[key]
	if !ok || !now.Before(entry.ResetAt) {
		l.hits[key] = &Entry{Count: 1, ResetAt: now.Add(l.window)}
		l.mu.Unlock()
		return false, 0
	}
	entry.Count++
	limited := entry.Count > l.max
	retryAfter := entry.ResetAt.Sub(now)
	l.mu.Unlock()

	if !limited {
		return false, 0
	}
	if l.onLimited != nil {
		l.onLimited(key)
	}
	return true, retryAfter
}

// Sweep removes expired entries and returns how many were dropped.
func (l *FixedWindow) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, entry := range l.hits {
		if !now.Before(entry.ResetAt) {
			delete(l.hits, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// Run sweeps expired entries on every tick until ctx is cancelled.
func (l *FixedWindow) Run(ctx context.Context) {
	ticker := time.NewTicker(l.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
