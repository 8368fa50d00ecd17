package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// llmResource mirrors the resource name the analyzer and generator
// acquire against.
const llmResource = "llm"

func newLimiter(t *testing.T) *MemoryLimiter {
	t.Helper()
	lim := NewMemoryLimiter()
	t.Cleanup(func() { lim.Close() })
	return lim
}

func TestLimiterBoundsLLMCalls(t *testing.T) {
	lim := newLimiter(t)
	lim.SetCapacity(llmResource, 2, time.Minute)

	if !lim.TryAcquire(llmResource) {
		t.Fatal("first call should get a token")
	}
	if !lim.TryAcquire(llmResource) {
		t.Fatal("second call should get a token")
	}
	if lim.TryAcquire(llmResource) {
		t.Fatal("third call should be throttled")
	}

	info := lim.GetCapacity(llmResource)
	if info == nil {
		t.Fatal("GetCapacity returned nil")
	}
	if info.Available != 0 || info.InFlight != 2 {
		t.Errorf("available = %d, in flight = %d, want 0 and 2", info.Available, info.InFlight)
	}
}

func TestReleaseReturnsToken(t *testing.T) {
	lim := newLimiter(t)
	lim.SetCapacity(llmResource, 1, time.Minute)

	if !lim.TryAcquire(llmResource) {
		t.Fatal("TryAcquire failed with a full bucket")
	}
	if lim.TryAcquire(llmResource) {
		t.Fatal("bucket should be empty")
	}

	// Semaphore style: the token is reusable as soon as the call ends.
	lim.Release(llmResource)
	if !lim.TryAcquire(llmResource) {
		t.Fatal("released token not reusable")
	}
}

func TestReleaseDoesNotOverfill(t *testing.T) {
	lim := newLimiter(t)
	lim.SetCapacity(llmResource, 2, time.Minute)

	// A release on a full bucket must not mint extra tokens.
	lim.Release(llmResource)
	lim.Release("unconfigured") // unknown resource is a no-op

	info := lim.GetCapacity(llmResource)
	if info.Available != 2 {
		t.Errorf("available = %d, want 2", info.Available)
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	lim := newLimiter(t)
	lim.SetCapacity(llmResource, 1, time.Minute)

	if err := lim.Acquire(context.Background(), llmResource); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- lim.Acquire(context.Background(), llmResource)
	}()

	select {
	case <-done:
		t.Fatal("Acquire returned before a token was released")
	case <-time.After(20 * time.Millisecond):
	}

	lim.Release(llmResource)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Acquire after release: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not wake on release")
	}
}

func TestAcquireContextCancelled(t *testing.T) {
	lim := newLimiter(t)
	lim.SetCapacity(llmResource, 1, time.Minute)
	lim.TryAcquire(llmResource)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- lim.Acquire(ctx, llmResource)
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not honor cancellation")
	}
}

func TestAcquireUnknownResource(t *testing.T) {
	lim := newLimiter(t)

	if err := lim.Acquire(context.Background(), llmResource); !errors.Is(err, ErrResourceUnknown) {
		t.Errorf("Acquire err = %v, want ErrResourceUnknown", err)
	}
	if lim.TryAcquire(llmResource) {
		t.Error("TryAcquire succeeded on an unconfigured resource")
	}
	if lim.GetCapacity(llmResource) != nil {
		t.Error("GetCapacity returned info for an unconfigured resource")
	}
}

func TestRefillOverTime(t *testing.T) {
	lim := newLimiter(t)
	now := time.Now()
	lim.nowFunc = func() time.Time { return now }
	lim.SetCapacity(llmResource, 60, time.Minute)

	for i := 0; i < 60; i++ {
		if !lim.TryAcquire(llmResource) {
			t.Fatalf("drain: token %d unavailable", i)
		}
	}
	if lim.TryAcquire(llmResource) {
		t.Fatal("bucket should be drained")
	}

	// Half a window of elapsed time credits half the capacity.
	now = now.Add(30 * time.Second)
	info := lim.GetCapacity(llmResource)
	if info.Available != 30 {
		t.Errorf("available after 30s = %d, want 30", info.Available)
	}

	// Well past a full window the bucket caps at capacity, not over.
	now = now.Add(2 * time.Minute)
	info = lim.GetCapacity(llmResource)
	if info.Available != 60 {
		t.Errorf("available after refill = %d, want 60", info.Available)
	}
}

// TestAnnounceReducedRatchets exercises the pushback path the analyzer
// and generator hit on a provider rate limit response.
func TestAnnounceReducedRatchets(t *testing.T) {
	lim := newLimiter(t)
	lim.SetCapacity(llmResource, 30, time.Minute)

	lim.AnnounceReduced(llmResource, "llm rate limit response")
	info := lim.GetCapacity(llmResource)
	if info.Total != 22 {
		t.Fatalf("capacity after one announcement = %d, want 22", info.Total)
	}
	if info.Available > info.Total {
		t.Fatalf("available %d exceeds reduced capacity %d", info.Available, info.Total)
	}

	// Sustained pressure floors at one request per window, never zero.
	for i := 0; i < 20; i++ {
		lim.AnnounceReduced(llmResource, "llm rate limit response")
	}
	info = lim.GetCapacity(llmResource)
	if info.Total != 1 {
		t.Errorf("capacity floor = %d, want 1", info.Total)
	}

	// Unknown resources are ignored.
	lim.AnnounceReduced("unconfigured", "llm rate limit response")
}

func TestSetCapacityShrinkAndRemove(t *testing.T) {
	lim := newLimiter(t)
	lim.SetCapacity(llmResource, 10, time.Minute)

	lim.SetCapacity(llmResource, 3, time.Minute)
	info := lim.GetCapacity(llmResource)
	if info.Total != 3 || info.Available != 3 {
		t.Errorf("after shrink: total = %d, available = %d, want 3 and 3", info.Total, info.Available)
	}

	lim.SetCapacity(llmResource, 0, time.Minute)
	if lim.GetCapacity(llmResource) != nil {
		t.Error("zero capacity should remove the resource")
	}
	lim.SetCapacity(llmResource, 5, 0)
	if lim.GetCapacity(llmResource) != nil {
		t.Error("zero window should remove the resource")
	}
}

func TestClose(t *testing.T) {
	lim := NewMemoryLimiter()
	lim.SetCapacity(llmResource, 1, time.Minute)
	lim.TryAcquire(llmResource)

	// A caller blocked in Acquire is released with ErrClosed.
	done := make(chan error, 1)
	go func() {
		done <- lim.Acquire(context.Background(), llmResource)
	}()
	time.Sleep(10 * time.Millisecond)

	if err := lim.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("blocked Acquire err = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Acquire did not return after Close")
	}

	if err := lim.Acquire(context.Background(), llmResource); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire after Close err = %v, want ErrClosed", err)
	}
	if lim.TryAcquire(llmResource) {
		t.Error("TryAcquire succeeded after Close")
	}
	if err := lim.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close err = %v, want ErrClosed", err)
	}
}

// TestConcurrentCallsRespectCapacity runs many simulated LLM calls
// through a small bucket and checks the concurrency ceiling holds.
func TestConcurrentCallsRespectCapacity(t *testing.T) {
	lim := newLimiter(t)
	lim.SetCapacity(llmResource, 4, time.Minute)

	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lim.Acquire(context.Background(), llmResource); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			lim.Release(llmResource)
		}()
	}
	wg.Wait()

	if peak > 4 {
		t.Errorf("peak concurrency = %d, want at most 4", peak)
	}
}
