package bus

import (
	"testing"
	"time"
)

func TestMemoryBus_PubSub(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	sub, err := b.Subscribe(SubjectTaskCreated)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(SubjectTaskCreated, []byte(`{"task_id":1}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		if string(msg.Data) != `{"task_id":1}` {
			t.Errorf("Data = %q", msg.Data)
		}
		if msg.Subject != SubjectTaskCreated {
			t.Errorf("Subject = %q", msg.Subject)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	sub1, _ := b.Subscribe(SubjectAgentAssigned)
	sub2, _ := b.Subscribe(SubjectAgentAssigned)

	b.Publish(SubjectAgentAssigned, []byte("x"))

	for i, sub := range []Subscription{sub1, sub2} {
		select {
		case <-sub.Messages():
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive message", i+1)
		}
	}
}

func TestMemoryBus_RequestReply(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	sub, _ := b.Subscribe(SubjectGetTask)
	go func() {
		msg := <-sub.Messages()
		b.Publish(msg.Reply, []byte("task-data"))
	}()

	reply, err := b.Request(SubjectGetTask, []byte(`{"task_id":1}`), time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(reply.Data) != "task-data" {
		t.Errorf("reply = %q", reply.Data)
	}
}

func TestMemoryBus_RequestTimeout(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	_, err := b.Request(SubjectTaskCounter, nil, 20*time.Millisecond)
	if err != ErrTimeout {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	sub, _ := b.Subscribe(SubjectTaskApproved)
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	// Channel should be closed
	if _, ok := <-sub.Messages(); ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	// Publishing after unsubscribe must not panic
	if err := b.Publish(SubjectTaskApproved, []byte("x")); err != nil {
		t.Errorf("Publish after unsubscribe: %v", err)
	}
}

func TestMemoryBus_Closed(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	b.Close()

	if err := b.Publish(SubjectTaskCreated, nil); err != ErrClosed {
		t.Errorf("Publish err = %v, want ErrClosed", err)
	}
	if _, err := b.Subscribe(SubjectTaskCreated); err != ErrClosed {
		t.Errorf("Subscribe err = %v, want ErrClosed", err)
	}
}

func TestValidateSubject(t *testing.T) {
	if err := ValidateSubject(""); err != ErrInvalidSubject {
		t.Errorf("empty subject err = %v", err)
	}
	if err := ValidateSubject(SubjectHeartbeat); err != nil {
		t.Errorf("valid subject err = %v", err)
	}
}
