package ratelimit

import (
	"context"
	"sync"
	"time"
)

// recheckEvery bounds how long a blocked Acquire waits before looking
// for a time-based refill.
const recheckEvery = 50 * time.Millisecond

// bucket is a token bucket with time-based refill.
type bucket struct {
	capacity   int
	available  int
	window     time.Duration
	lastRefill time.Time
	inFlight   int
}

// refill credits tokens for the time elapsed since the last refill, at
// a rate of capacity per window, capped at capacity.
func (b *bucket) refill(now time.Time) {
	if b.window == 0 || b.capacity == 0 {
		return
	}
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	credit := int(float64(b.capacity) * float64(elapsed) / float64(b.window))
	if credit == 0 {
		return
	}
	b.available += credit
	if b.available > b.capacity {
		b.available = b.capacity
	}
	b.lastRefill = now
}

// take refills and consumes one token if available.
func (b *bucket) take(now time.Time) bool {
	b.refill(now)
	if b.available == 0 {
		return false
	}
	b.available--
	b.inFlight++
	return true
}

// MemoryLimiter rate-limits the agent's calls to shared resources,
// chiefly the LLM provider behind the analyzer and generator. It is
// safe for concurrent use.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	closed  bool
	nowFunc func() time.Time // for testing

	// freed is pulsed whenever a token may have become available, so a
	// blocked Acquire retries without waiting out the recheck interval.
	freed chan struct{}
}

// NewMemoryLimiter creates a new in-memory rate limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		nowFunc: time.Now,
		freed:   make(chan struct{}, 1),
	}
}

// SetCapacity configures the rate limit for a resource. A capacity or
// window of zero or less removes the resource. Shrinking a bucket
// clamps its available tokens; growing one frees the headroom at the
// next refill.
func (m *MemoryLimiter) SetCapacity(resource string, capacity int, window time.Duration) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if capacity <= 0 || window <= 0 {
		delete(m.buckets, resource)
		m.mu.Unlock()
		return
	}
	if b, ok := m.buckets[resource]; ok {
		b.capacity = capacity
		b.window = window
		if b.available > capacity {
			b.available = capacity
		}
	} else {
		m.buckets[resource] = &bucket{
			capacity:   capacity,
			available:  capacity, // start full
			window:     window,
			lastRefill: m.nowFunc(),
		}
	}
	m.mu.Unlock()
	m.wake()
}

// GetCapacity returns the current capacity info for a resource, or nil
// if the resource is unknown.
func (m *MemoryLimiter) GetCapacity(resource string) *Capacity {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[resource]
	if !ok {
		return nil
	}
	b.refill(m.nowFunc())
	return &Capacity{
		Resource:  resource,
		Available: b.available,
		Total:     b.capacity,
		Window:    b.window,
		InFlight:  b.inFlight,
	}
}

// Acquire blocks until a token is available for the resource. It wakes
// when Release returns a token and otherwise rechecks periodically to
// pick up time-based refills.
func (m *MemoryLimiter) Acquire(ctx context.Context, resource string) error {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return ErrClosed
		}
		b, ok := m.buckets[resource]
		if !ok {
			m.mu.Unlock()
			return ErrResourceUnknown
		}
		if b.take(m.nowFunc()) {
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.freed:
		case <-time.After(recheckEvery):
		}
	}
}

// TryAcquire attempts to acquire a token without blocking.
func (m *MemoryLimiter) TryAcquire(resource string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	b, ok := m.buckets[resource]
	return ok && b.take(m.nowFunc())
}

// Release returns a token to the resource bucket. Used semaphore-style
// around an LLM call, the token is reusable as soon as the call ends
// instead of waiting out the refill window.
func (m *MemoryLimiter) Release(resource string) {
	m.mu.Lock()
	if b, ok := m.buckets[resource]; ok && !m.closed {
		if b.inFlight > 0 {
			b.inFlight--
		}
		if b.available < b.capacity {
			b.available++
		}
	}
	m.mu.Unlock()
	m.wake()
}

// AnnounceReduced shrinks the bucket after upstream pushback, such as
// a 429 from the LLM provider. Each announcement cuts capacity by a
// quarter, floored at one, so repeated pressure ratchets the request
// rate down instead of hammering a throttled endpoint.
func (m *MemoryLimiter) AnnounceReduced(resource string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[resource]
	if !ok {
		return
	}
	reduced := b.capacity * 3 / 4
	if reduced < 1 {
		reduced = 1
	}
	b.capacity = reduced
	if b.available > reduced {
		b.available = reduced
	}
}

// Close shuts down the limiter. Blocked Acquire calls return ErrClosed
// on their next recheck.
func (m *MemoryLimiter) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.mu.Unlock()
	m.wake()
	return nil
}

// wake nudges one blocked Acquire. Dropping the pulse when the channel
// is already primed is fine; whoever drains it rechecks every bucket
// state under the lock.
func (m *MemoryLimiter) wake() {
	select {
	case m.freed <- struct{}{}:
	default:
	}
}

// Ensure MemoryLimiter implements RateLimiter.
var _ RateLimiter = (*MemoryLimiter)(nil)
