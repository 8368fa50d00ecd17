package heartbeat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowwork/agent/bus"
	"github.com/flowwork/agent/ledger"
	"github.com/flowwork/agent/track"
)

func newBus(t *testing.T) bus.MessageBus {
	t.Helper()
	b := bus.NewMemoryBus(bus.DefaultConfig())
	t.Cleanup(func() { b.Close() })
	return b
}

func recvHeartbeat(t *testing.T, sub bus.Subscription) *Heartbeat {
	t.Helper()
	select {
	case msg := <-sub.Messages():
		hb, err := Unmarshal(msg.Data)
		if err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		return hb
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for heartbeat")
		return nil
	}
}

func TestSenderValidation(t *testing.T) {
	b := newBus(t)

	if _, err := NewSender(SenderConfig{Agent: "agent-1"}); err != ErrInvalidConfig {
		t.Errorf("missing bus: err = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewSender(SenderConfig{Bus: b}); err != ErrInvalidConfig {
		t.Errorf("missing agent: err = %v, want ErrInvalidConfig", err)
	}
}

func TestSenderAnnouncesOnStart(t *testing.T) {
	b := newBus(t)
	sub, err := b.Subscribe(bus.SubjectHeartbeat)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	s, err := NewSender(SenderConfig{Bus: b, Agent: "agent-1", Interval: time.Hour})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	hb := recvHeartbeat(t, sub)
	if hb.Agent != "agent-1" {
		t.Errorf("agent = %q, want agent-1", hb.Agent)
	}
	if hb.Status != StatusIdle {
		t.Errorf("status = %q, want %q", hb.Status, StatusIdle)
	}
	if hb.ActiveTasks != 0 {
		t.Errorf("active tasks = %d, want 0", hb.ActiveTasks)
	}
}

func TestSenderReportsStoreLoad(t *testing.T) {
	b := newBus(t)
	sub, err := b.Subscribe(bus.SubjectHeartbeat)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	store := track.NewStore()
	store.Discover(&ledger.Task{ID: 1, Status: ledger.StatusOpen})
	store.Discover(&ledger.Task{ID: 2, Status: ledger.StatusOpen})

	s, err := NewSender(SenderConfig{Bus: b, Agent: "agent-1", Store: store, Interval: time.Hour})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	s.SetMetadata("version", "dev")
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	hb := recvHeartbeat(t, sub)
	if hb.Status != StatusWorking {
		t.Errorf("status = %q, want %q", hb.Status, StatusWorking)
	}
	if hb.ActiveTasks != 2 {
		t.Errorf("active tasks = %d, want 2", hb.ActiveTasks)
	}
	if hb.Metadata["version"] != "dev" {
		t.Errorf("metadata = %v, want version=dev", hb.Metadata)
	}
}

type flakyBus struct {
	bus.MessageBus
	failures int
}

func (f *flakyBus) Publish(subject string, data []byte) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	return f.MessageBus.Publish(subject, data)
}

func TestSenderSurvivesPublishFailure(t *testing.T) {
	b := newBus(t)
	sub, err := b.Subscribe(bus.SubjectHeartbeat)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// The startup announce fails; the next tick must still go out.
	fb := &flakyBus{MessageBus: b, failures: 1}
	s, err := NewSender(SenderConfig{Bus: fb, Agent: "agent-1", Interval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	hb := recvHeartbeat(t, sub)
	if hb.Agent != "agent-1" {
		t.Errorf("agent = %q, want agent-1", hb.Agent)
	}
}

func TestSenderStartStop(t *testing.T) {
	b := newBus(t)
	s, err := NewSender(SenderConfig{Bus: b, Agent: "agent-1", Interval: time.Hour})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	if err := s.Stop(); err != ErrNotStarted {
		t.Errorf("Stop before Start: err = %v, want ErrNotStarted", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); err != ErrAlreadyStarted {
		t.Errorf("second Start: err = %v, want ErrAlreadyStarted", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := s.Stop(); err != ErrNotStarted {
		t.Errorf("second Stop: err = %v, want ErrNotStarted", err)
	}
}
