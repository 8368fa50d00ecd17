package reconcile

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flowwork/agent/bus"
	"github.com/flowwork/agent/ledger"
	"github.com/flowwork/agent/logging"
)

// Subscriber bridges ledger push events onto the record channel. One
// goroutine per subject decodes payloads and forwards them; a payload
// that does not decode is logged and dropped, the poller covers the
// gap.
type Subscriber struct {
	gw  ledger.Gateway
	out chan<- Record
	log *logging.Logger
	wg  sync.WaitGroup

	subs []bus.Subscription
}

// NewSubscriber builds a Subscriber feeding out.
func NewSubscriber(gw ledger.Gateway, out chan<- Record, log *logging.Logger) *Subscriber {
	if log == nil {
		log = logging.New()
	}
	return &Subscriber{gw: gw, out: out, log: log.WithComponent("subscriber")}
}

// Start subscribes to the three task lifecycle subjects. Subscriptions
// stay open until Stop.
func (s *Subscriber) Start(ctx context.Context) error {
	subjects := []struct {
		name   string
		decode func([]byte) (Record, error)
	}{
		{bus.SubjectTaskCreated, decodeTaskCreated},
		{bus.SubjectAgentAssigned, decodeAgentAssigned},
		{bus.SubjectTaskApproved, decodeTaskApproved},
	}
	for _, subj := range subjects {
		sub, err := s.gw.Events(subj.name)
		if err != nil {
			s.Stop()
			return err
		}
		s.subs = append(s.subs, sub)
		s.wg.Add(1)
		go s.pump(ctx, subj.name, sub, subj.decode)
	}
	return nil
}

// Stop unsubscribes and waits for the pump goroutines to drain.
func (s *Subscriber) Stop() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	s.wg.Wait()
}

func (s *Subscriber) pump(ctx context.Context, subject string, sub bus.Subscription, decode func([]byte) (Record, error)) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			rec, err := decode(msg.Data)
			if err != nil {
				s.log.Warn("event decode failed", map[string]interface{}{
					"subject": subject, "error": err.Error(),
				})
				continue
			}
			select {
			case s.out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}
}

func decodeTaskCreated(data []byte) (Record, error) {
	var ev ledger.TaskCreatedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return TaskCreatedRecord{EventID: ev.EventID, TaskID: ev.TaskID}, nil
}

func decodeAgentAssigned(data []byte) (Record, error) {
	var ev ledger.AgentAssignedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return AssignedRecord{EventID: ev.EventID, TaskID: ev.TaskID, Agent: ev.Agent}, nil
}

func decodeTaskApproved(data []byte) (Record, error) {
	var ev ledger.TaskApprovedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return ApprovedRecord{EventID: ev.EventID, TaskID: ev.TaskID}, nil
}
