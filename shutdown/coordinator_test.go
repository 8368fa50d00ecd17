package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestStagesRunInOrder(t *testing.T) {
	c := NewCoordinator(time.Second, nil)

	var mu sync.Mutex
	var order []string
	record := func(name string) Hook {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	// Registered out of order on purpose.
	c.Register("bus", StageTransport, record("bus"))
	c.Register("poller", StageIntake, record("poller"))
	c.Register("archive", StageFlush, record("archive"))
	c.Register("reconciler", StageDrain, record("reconciler"))

	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	want := []string{"poller", "reconciler", "archive", "bus"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSameStageRunsConcurrently(t *testing.T) {
	c := NewCoordinator(time.Second, nil)

	gate := make(chan struct{})
	meet := func(ctx context.Context) error {
		select {
		case gate <- struct{}{}:
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	// Each hook blocks until its peer arrives; sequential execution
	// would deadlock on the first and trip the timeout.
	c.Register("a", StageDrain, meet)
	c.Register("b", StageDrain, meet)

	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestHookFailureDoesNotStopLaterStages(t *testing.T) {
	c := NewCoordinator(time.Second, nil)

	ran := false
	c.Register("broken", StageIntake, func(ctx context.Context) error {
		return errors.New("boom")
	})
	c.Register("bus", StageTransport, func(ctx context.Context) error {
		ran = true
		return nil
	})

	err := c.Shutdown()
	if !errors.Is(err, ErrHookFailed) {
		t.Fatalf("Shutdown err = %v, want ErrHookFailed", err)
	}
	if !ran {
		t.Error("later stage skipped after a hook failure")
	}

	results := c.Results()
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Name != "broken" || results[0].Err == nil {
		t.Errorf("first result = %+v", results[0])
	}
}

func TestShutdownOnce(t *testing.T) {
	c := NewCoordinator(time.Second, nil)

	calls := 0
	c.Register("counter", StageIntake, func(ctx context.Context) error {
		calls++
		return nil
	})

	if err := c.Shutdown(); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := c.Shutdown(); err != nil {
		t.Fatalf("second Shutdown after completion: %v", err)
	}
	if calls != 1 {
		t.Fatalf("hook ran %d times, want 1", calls)
	}
}

func TestTimeoutSkipsRemainingStages(t *testing.T) {
	c := NewCoordinator(20*time.Millisecond, nil)

	c.Register("slow", StageIntake, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ran := false
	c.Register("bus", StageTransport, func(ctx context.Context) error {
		ran = true
		return nil
	})

	err := c.Shutdown()
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Shutdown err = %v, want ErrTimeout", err)
	}
	if ran {
		t.Error("stage ran after the deadline expired")
	}
}

func TestTriggerAndDone(t *testing.T) {
	c := NewCoordinator(time.Second, nil)
	c.Register("noop", StageIntake, func(ctx context.Context) error { return nil })
	c.HandleSignals()

	if c.Err() != nil {
		t.Fatalf("Err before shutdown = %v", c.Err())
	}
	c.Trigger()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after Trigger")
	}
	if c.Err() != nil {
		t.Errorf("Err = %v, want nil", c.Err())
	}
}
