// Package ratelimit decides, per (actor, action) key, whether an action
// may proceed now. Three time-windowed algorithms are supported; multiple
// rules can apply to one check, with the most restrictive result winning.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Algorithm selects the accounting strategy for a rule.
type Algorithm string

const (
	SlidingWindow Algorithm = "sliding_window"
	TokenBucket   Algorithm = "token_bucket"
	FixedWindow   Algorithm = "fixed_window"
)

// Rule specifies one limit: at most Limit actions per Window. For token
// buckets, Burst is the bucket capacity (defaults to Limit) and Limit/Window
// is the refill rate.
type Rule struct {
	Algorithm Algorithm
	Limit     int
	Window    time.Duration
	Burst     int
}

// Decision is the outcome of a check. RetryAfter is non-zero only when
// the action was denied.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Key builds the composite rate-limit key for an actor performing an action.
func Key(wallet, action string) string {
	return wallet + ":" + action
}

// entry holds the accounting state for one (key, rule) pair. Each entry
// carries its own lock so unrelated keys never contend.
type entry struct {
	mu       sync.Mutex
	lastSeen time.Time

	events []time.Time // sliding window

	tokens     float64 // token bucket
	lastRefill time.Time
	bucketInit bool

	windowKey int64 // fixed window
	count     int
}

// Limiter tracks per-key accounting state. State is created lazily on
// first check and dropped by Cleanup once idle.
type Limiter struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// New creates a limiter using the wall clock.
func New() *Limiter {
	return NewWithClock(time.Now)
}

// NewWithClock creates a limiter with an injectable clock for testing.
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{
		entries: make(map[string]*entry),
		now:     now,
	}
}

// Check evaluates every rule against the key and returns the most
// restrictive result: any denial denies, Remaining is the smallest across
// rules, and RetryAfter reflects the tightest constraint. Every rule's
// state is mutated exactly once regardless of outcome, so a denied check
// still spends its accounting slot.
func (l *Limiter) Check(key string, rules ...Rule) Decision {
	if len(rules) == 0 {
		return Decision{Allowed: true, Remaining: -1}
	}

	decision := Decision{Allowed: true, Remaining: -1}
	for _, rule := range rules {
		result := l.checkRule(key, rule)
		if !result.Allowed {
			decision.Allowed = false
		}
		if decision.Remaining < 0 || result.Remaining < decision.Remaining {
			decision.Remaining = result.Remaining
		}
		if result.RetryAfter > decision.RetryAfter {
			decision.RetryAfter = result.RetryAfter
		}
	}
	return decision
}

func (l *Limiter) checkRule(key string, rule Rule) Decision {
	e := l.entryFor(entryKey(key, rule))

	e.mu.Lock()
	defer e.mu.Unlock()

	// Clock must not appear to go backwards within one key.
	now := l.now()
	if now.Before(e.lastSeen) {
		now = e.lastSeen
	}
	e.lastSeen = now

	switch rule.Algorithm {
	case TokenBucket:
		return e.checkTokenBucket(now, rule)
	case FixedWindow:
		return e.checkFixedWindow(now, rule)
	default:
		return e.checkSlidingWindow(now, rule)
	}
}

// checkSlidingWindow counts timestamped events within the trailing window.
// Expired entries are purged lazily; the event is recorded before the
// limit is evaluated, and prior count strictly below the limit allows.
func (e *entry) checkSlidingWindow(now time.Time, rule Rule) Decision {
	cutoff := now.Add(-rule.Window)
	kept := e.events[:0]
	for _, ts := range e.events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.events = kept

	prior := len(e.events)
	e.events = append(e.events, now)

	remaining := rule.Limit - len(e.events)
	if remaining < 0 {
		remaining = 0
	}

	if prior >= rule.Limit {
		// Denied: retry once the oldest counted event ages out.
		retry := e.events[0].Add(rule.Window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Decision{Remaining: remaining, RetryAfter: retry}
	}
	return Decision{Allowed: true, Remaining: remaining}
}

// checkTokenBucket refills continuously at Limit/Window tokens per second
// and consumes one token per allowed check. The bucket never exceeds its
// burst capacity.
func (e *entry) checkTokenBucket(now time.Time, rule Rule) Decision {
	burst := rule.Burst
	if burst <= 0 {
		burst = rule.Limit
	}
	rate := float64(rule.Limit) / rule.Window.Seconds()

	if !e.bucketInit {
		e.tokens = float64(burst)
		e.lastRefill = now
		e.bucketInit = true
	} else {
		e.tokens += now.Sub(e.lastRefill).Seconds() * rate
		if e.tokens > float64(burst) {
			e.tokens = float64(burst)
		}
		e.lastRefill = now
	}

	if e.tokens >= 1 {
		e.tokens--
		return Decision{Allowed: true, Remaining: int(e.tokens)}
	}

	retry := time.Duration((1 - e.tokens) / rate * float64(time.Second))
	return Decision{RetryAfter: retry}
}

// checkFixedWindow counts events in the current calendar-aligned bucket.
// The counter includes the current request, so count <= limit allows:
// exactly Limit requests pass per bucket and the next one is denied.
func (e *entry) checkFixedWindow(now time.Time, rule Rule) Decision {
	start := windowStart(now, rule.Window)
	if key := start.Unix(); key != e.windowKey {
		e.windowKey = key
		e.count = 0
	}
	e.count++

	remaining := rule.Limit - e.count
	if remaining < 0 {
		remaining = 0
	}

	if e.count > rule.Limit {
		return Decision{Remaining: remaining, RetryAfter: start.Add(rule.Window).Sub(now)}
	}
	return Decision{Allowed: true, Remaining: remaining}
}

// windowStart aligns second/minute/hour/day windows to the calendar and
// falls back to epoch-relative buckets for other durations.
func windowStart(now time.Time, window time.Duration) time.Time {
	switch window {
	case time.Second, time.Minute, time.Hour, 24 * time.Hour:
		return now.UTC().Truncate(window)
	default:
		secs := int64(window.Seconds())
		if secs <= 0 {
			secs = 1
		}
		return time.Unix(now.Unix()/secs*secs, 0).UTC()
	}
}

func entryKey(key string, rule Rule) string {
	return fmt.Sprintf("%s|%s|%s", key, rule.Algorithm, rule.Window)
}

func (l *Limiter) entryFor(key string) *entry {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[key]; ok {
		return e
	}
	e = &entry{}
	l.entries[key] = e
	return e
}

// Cleanup removes entries idle longer than maxIdle to bound memory.
func (l *Limiter) Cleanup(maxIdle time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		e.mu.Lock()
		idle := now.Sub(e.lastSeen) > maxIdle
		e.mu.Unlock()
		if idle {
			delete(l.entries, key)
		}
	}
}

// Run sweeps idle entries on a fixed interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup(maxIdle)
		case <-ctx.Done():
			return
		}
	}
}
