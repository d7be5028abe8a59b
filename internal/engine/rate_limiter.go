package engine

import (
	"sync/atomic"
	"time"
)

// RateLimiter is a lock-free fixed-window counter consulted for the N/s and
// N/m keep directives. Each compiled policy owns one, so unrelated policies
// never contend, and limiter state is discarded with the snapshot on reload
// (a replaced policy is a structurally new entity with fresh windows).
//
// Window reset happens inline on the first request after expiry via CAS; no
// background task is needed. At a window boundary multiple goroutines may
// attempt the reset (CAS lets one win) and stragglers may increment the old
// counter, so over-admission is bounded by limit + concurrent goroutines - 1.
type RateLimiter struct {
	// count is the current grant count in this window.
	count atomic.Uint32

	// windowStart is the window start timestamp in milliseconds since epoch.
	windowStart atomic.Int64

	// limit is the maximum grants allowed per window.
	limit uint32

	// windowMs is the window duration in milliseconds.
	windowMs uint32

	// timeSource is an injectable time source for testing.
	// Returns current time in milliseconds since epoch.
	timeSource func() int64
}

func defaultTimeSource() int64 {
	return time.Now().UnixMilli()
}

// NewRateLimiter creates a rate limiter with a custom window duration.
func NewRateLimiter(limit uint32, windowMs uint32) *RateLimiter {
	return newRateLimiterWithTimeSource(limit, windowMs, defaultTimeSource)
}

func newRateLimiterWithTimeSource(limit uint32, windowMs uint32, timeSource func() int64) *RateLimiter {
	r := &RateLimiter{
		limit:      limit,
		windowMs:   windowMs,
		timeSource: timeSource,
	}
	r.windowStart.Store(timeSource())
	return r
}

// NewRateLimiterPerSecond creates a rate limiter with a per-second window.
func NewRateLimiterPerSecond(limit uint32) *RateLimiter {
	return NewRateLimiter(limit, 1000)
}

// NewRateLimiterPerMinute creates a rate limiter with a per-minute window.
func NewRateLimiterPerMinute(limit uint32) *RateLimiter {
	return NewRateLimiter(limit, 60_000)
}

// Allow reports whether a slot is available in the current window and
// consumes it. The window resets automatically when expired.
func (r *RateLimiter) Allow() bool {
	now := r.timeSource()

	windowStart := r.windowStart.Load()
	if now-windowStart >= int64(r.windowMs) {
		r.tryResetWindow(windowStart, now)
	}

	// Add returns the new value, so the grant held the (new-1)th slot.
	newCount := r.count.Add(1)
	return newCount-1 < r.limit
}

// tryResetWindow attempts to reset the window. Only one goroutine wins the CAS.
func (r *RateLimiter) tryResetWindow(expectedStart, now int64) {
	if r.windowStart.CompareAndSwap(expectedStart, now) {
		r.count.Store(0)
	}
}

// CurrentCount returns the current count (for testing/debugging only).
func (r *RateLimiter) CurrentCount() uint32 {
	return r.count.Load()
}

// CurrentWindowStart returns the window start (for testing/debugging only).
func (r *RateLimiter) CurrentWindowStart() int64 {
	return r.windowStart.Load()
}

// Reset forces a reset (for testing only).
func (r *RateLimiter) Reset() {
	r.count.Store(0)
	r.windowStart.Store(r.timeSource())
}
