// Package ratelimit provides token bucket rate limiting for shared resources.
//
// The engine's appetite for LLM calls is bounded here: the analyzer and
// generator both Acquire against the "llm" resource before calling out,
// so a burst of task discoveries cannot turn into a burst of API calls.
//
//	limiter := ratelimit.NewMemoryLimiter()
//	limiter.SetCapacity("llm", 60, time.Minute) // 60 requests per minute
//
//	// Block until token available
//	if err := limiter.Acquire(ctx, "llm"); err != nil {
//	    return err // context cancelled
//	}
//	defer limiter.Release("llm")
//
//	// Non-blocking attempt
//	if limiter.TryAcquire("llm") {
//	    defer limiter.Release("llm")
//	    // Make request
//	}
//
// AnnounceReduced shrinks a bucket after upstream pushback (a 429 from
// the provider), so repeated pressure ratchets the request rate down.
//
// # Algorithm
//
// Token bucket with time-based refill:
//   - Tokens are added at a fixed rate based on capacity/window
//   - Each Acquire consumes one token
//   - If no tokens available, Acquire blocks (or TryAcquire returns false)
//   - Release returns a token to the bucket (optional, for request tracking)
package ratelimit
