package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/flowwork/agent/bus"
	agenterrors "github.com/flowwork/agent/errors"
	"github.com/flowwork/agent/executor"
	"github.com/flowwork/agent/ledger"
	"github.com/flowwork/agent/llm"
	"github.com/flowwork/agent/publish"
	"github.com/flowwork/agent/track"
)

// assignedTask drives a task through the memory ledger until it is
// assigned to agent-1 and returns it.
func assignedTask(t *testing.T, m *ledger.MemoryLedger) *ledger.Task {
	t.Helper()
	ctx := context.Background()
	id := m.CreateTask("client-1", "Write a tagline", "text",
		ledger.CategoryCopywriting, 20_000_000, time.Now().Add(24*time.Hour))
	if _, err := m.SubmitBid(ctx, id, 19_000_000, "proposal", time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := m.SelectAgent(id, "agent-1"); err != nil {
		t.Fatal(err)
	}
	task, err := m.GetTask(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func newRunner(t *testing.T, m *ledger.MemoryLedger, provider llm.Provider) (*Runner, *track.DedupGuard) {
	t.Helper()
	gen, err := executor.NewGenerator(executor.GeneratorConfig{Provider: provider})
	if err != nil {
		t.Fatal(err)
	}
	guard := track.NewDedupGuard()
	r, err := NewRunner(Config{
		Gateway:    m,
		Generator:  gen,
		Publisher:  publish.NewLocalPublisher(),
		Guard:      guard,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return r, guard
}

func TestExecuteDelivers(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()
	m := ledger.NewMemoryLedger(b, "agent-1")
	task := assignedTask(t, m)

	p := llm.NewMockProvider()
	p.SetResponse("Ship faster.")
	r, _ := newRunner(t, m, p)

	res := r.Execute(context.Background(), task)
	if res.Err != nil {
		t.Fatalf("Execute: %v", res.Err)
	}
	if res.Phase != PhaseDelivered {
		t.Errorf("phase = %s, want delivered", res.Phase)
	}
	if !strings.HasPrefix(res.ContentRef, publish.LocalRefPrefix) {
		t.Errorf("content ref = %q", res.ContentRef)
	}

	final, _ := m.GetTask(context.Background(), task.ID)
	if final.Status != ledger.StatusDelivered {
		t.Errorf("ledger status = %s, want Delivered", final.Status)
	}
	if final.ContentRef != res.ContentRef {
		t.Errorf("ledger ref = %q, result ref = %q", final.ContentRef, res.ContentRef)
	}
}

func TestExecuteGenerationFailureIsTerminal(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()
	m := ledger.NewMemoryLedger(b, "agent-1")
	task := assignedTask(t, m)

	p := llm.NewMockProvider()
	p.SetError(fmt.Errorf("invalid request"))
	r, _ := newRunner(t, m, p)

	res := r.Execute(context.Background(), task)
	if res.Phase != PhaseFailed {
		t.Fatalf("phase = %s, want failed", res.Phase)
	}
	if agenterrors.Code(res.Err) != agenterrors.ErrCodeGenerationFailed {
		t.Errorf("code = %v, want GENERATION_FAILED", agenterrors.Code(res.Err))
	}
	// The task stays assigned on the ledger; no delivery was attempted.
	final, _ := m.GetTask(context.Background(), task.ID)
	if final.Status != ledger.StatusAssigned {
		t.Errorf("ledger status = %s, want Assigned", final.Status)
	}
	if p.CallCount() != 1 {
		t.Errorf("generation attempts = %d, want 1 (no retry)", p.CallCount())
	}
}

func TestDeliverySubmittedAtMostOnce(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()
	m := ledger.NewMemoryLedger(b, "agent-1")
	task := assignedTask(t, m)

	p := llm.NewMockProvider()
	p.SetResponse("Ship faster.")
	r, guard := newRunner(t, m, p)

	if res := r.Execute(context.Background(), task); res.Err != nil {
		t.Fatal(res.Err)
	}
	if !guard.Seen(track.DeliverKey(task.ID)) {
		t.Fatal("delivery key not absorbed")
	}

	// A second run must not attempt another submission: the guard makes
	// deliver a no-op, so no revert surfaces even though the ledger
	// would reject a resubmission.
	res := r.Execute(context.Background(), task)
	if res.Err != nil {
		t.Errorf("re-entered pipeline surfaced error: %v", res.Err)
	}
}

// revertingGateway wraps the memory ledger and rejects deliveries.
type revertingGateway struct {
	*ledger.MemoryLedger
}

func (g revertingGateway) SubmitDelivery(ctx context.Context, id uint64, contentRef string) (ledger.TxHandle, error) {
	return "", fmt.Errorf("%w: simulated", ledger.ErrRevert)
}

func TestDeliveryRevertEndsRetries(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()
	m := ledger.NewMemoryLedger(b, "agent-1")
	task := assignedTask(t, m)

	p := llm.NewMockProvider()
	p.SetResponse("Ship faster.")

	gen, _ := executor.NewGenerator(executor.GeneratorConfig{Provider: p})
	r, err := NewRunner(Config{
		Gateway:         revertingGateway{m},
		Generator:       gen,
		Publisher:       publish.NewLocalPublisher(),
		Guard:           track.NewDedupGuard(),
		DeliveryRetries: 3,
		RetryDelay:      time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	res := r.Execute(context.Background(), task)
	if res.Phase != PhaseFailed {
		t.Fatalf("phase = %s, want failed", res.Phase)
	}
	if agenterrors.Code(res.Err) != agenterrors.ErrCodeDeliveryFailed {
		t.Errorf("code = %v, want DELIVERY_FAILED", agenterrors.Code(res.Err))
	}
	if agenterrors.IsRetryable(res.Err) {
		t.Error("revert should not be retryable")
	}
	if !strings.Contains(res.Err.Error(), "after 1 attempts") {
		t.Errorf("revert should end retries on attempt 1: %v", res.Err)
	}
}

// flakyGateway fails delivery submissions until attempt n.
type flakyGateway struct {
	*ledger.MemoryLedger
	failures int
	calls    int
}

func (g *flakyGateway) SubmitDelivery(ctx context.Context, id uint64, contentRef string) (ledger.TxHandle, error) {
	g.calls++
	if g.calls <= g.failures {
		return "", fmt.Errorf("connection reset")
	}
	return g.MemoryLedger.SubmitDelivery(ctx, id, contentRef)
}

func TestDeliveryRetriesTransientFailures(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()
	m := ledger.NewMemoryLedger(b, "agent-1")
	task := assignedTask(t, m)

	p := llm.NewMockProvider()
	p.SetResponse("Ship faster.")
	gen, _ := executor.NewGenerator(executor.GeneratorConfig{Provider: p})

	gw := &flakyGateway{MemoryLedger: m, failures: 2}
	r, err := NewRunner(Config{
		Gateway:         gw,
		Generator:       gen,
		Publisher:       publish.NewLocalPublisher(),
		Guard:           track.NewDedupGuard(),
		DeliveryRetries: 3,
		RetryDelay:      time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	res := r.Execute(context.Background(), task)
	if res.Err != nil {
		t.Fatalf("Execute: %v", res.Err)
	}
	if gw.calls != 3 {
		t.Errorf("submission attempts = %d, want 3", gw.calls)
	}
}

func TestDeliveryRetriesExhausted(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()
	m := ledger.NewMemoryLedger(b, "agent-1")
	task := assignedTask(t, m)

	p := llm.NewMockProvider()
	p.SetResponse("Ship faster.")
	gen, _ := executor.NewGenerator(executor.GeneratorConfig{Provider: p})

	gw := &flakyGateway{MemoryLedger: m, failures: 100}
	r, err := NewRunner(Config{
		Gateway:         gw,
		Generator:       gen,
		Publisher:       publish.NewLocalPublisher(),
		Guard:           track.NewDedupGuard(),
		DeliveryRetries: 3,
		RetryDelay:      time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	res := r.Execute(context.Background(), task)
	if res.Phase != PhaseFailed {
		t.Fatalf("phase = %s, want failed", res.Phase)
	}
	if gw.calls != 3 {
		t.Errorf("submission attempts = %d, want 3", gw.calls)
	}
	if agenterrors.Code(res.Err) != agenterrors.ErrCodeDeliveryFailed {
		t.Errorf("code = %v, want DELIVERY_FAILED", agenterrors.Code(res.Err))
	}
}
