package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowwork/agent/bus"
)

// MemoryLedger is a complete in-memory marketplace: task posting, bidding,
// assignment, delivery, and approval, with contract events published on the
// given bus. It backs tests and single-process simulation; semantics mirror
// the on-chain contract (ids assigned contiguously from 1, writes revert on
// invalid state).
type MemoryLedger struct {
	mu       sync.Mutex
	tasks    map[uint64]*Task
	bids     map[uint64][]Bid
	counter  uint64
	txs      map[TxHandle]error
	identity string // the agent identity this gateway signs as

	// counterOff simulates a contract without the counter primitive.
	counterOff bool

	bus bus.MessageBus
	now func() time.Time
}

// NewMemoryLedger creates an in-memory marketplace whose gateway writes are
// signed as the given agent identity. Events are published on b.
func NewMemoryLedger(b bus.MessageBus, identity string) *MemoryLedger {
	return &MemoryLedger{
		tasks:    make(map[uint64]*Task),
		bids:     make(map[uint64][]Bid),
		txs:      make(map[TxHandle]error),
		identity: identity,
		bus:      b,
		now:      time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (m *MemoryLedger) SetNowFunc(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// DisableCounter makes GetTaskCounter return ErrCounterUnsupported,
// forcing callers onto the binary-search fallback.
func (m *MemoryLedger) DisableCounter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counterOff = true
}

// --- Gateway ---

// GetTask fetches a snapshot of the task.
func (m *MemoryLedger) GetTask(ctx context.Context, id uint64) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t.Clone(), nil
}

// GetTaskCounter returns the highest assigned task id.
func (m *MemoryLedger) GetTaskCounter(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counterOff {
		return 0, ErrCounterUnsupported
	}
	return m.counter, nil
}

// SubmitBid records a bid from this gateway's identity on an open task.
func (m *MemoryLedger) SubmitBid(ctx context.Context, id uint64, price Amount, proposal string, estimatedTime time.Duration) (TxHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return "", ErrTaskNotFound
	}
	if t.Status != StatusOpen {
		return "", fmt.Errorf("%w: task %d not open", ErrRevert, id)
	}
	if t.Expired(m.now()) {
		return "", fmt.Errorf("%w: task %d deadline lapsed", ErrRevert, id)
	}
	for _, b := range m.bids[id] {
		if b.Agent == m.identity {
			return "", fmt.Errorf("%w: duplicate bid on task %d", ErrRevert, id)
		}
	}

	m.bids[id] = append(m.bids[id], Bid{
		Agent:         m.identity,
		Price:         price,
		Proposal:      proposal,
		EstimatedTime: estimatedTime,
		SubmittedAt:   m.now(),
	})
	t.BidCount++

	return m.confirmTx(nil), nil
}

// SubmitDelivery records the content reference for a task assigned to this
// gateway's identity.
func (m *MemoryLedger) SubmitDelivery(ctx context.Context, id uint64, contentRef string) (TxHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return "", ErrTaskNotFound
	}
	if t.AssignedAgent != m.identity {
		return "", fmt.Errorf("%w: task %d not assigned to caller", ErrRevert, id)
	}
	if t.Status != StatusAssigned {
		// Resubmitting after delivery is a revert, but the delivered
		// reference already stands; callers treat this as final.
		return "", fmt.Errorf("%w: task %d not awaiting delivery", ErrRevert, id)
	}
	if t.Expired(m.now()) {
		return "", fmt.Errorf("%w: task %d deadline lapsed", ErrRevert, id)
	}

	t.Status = StatusDelivered
	t.ContentRef = contentRef

	return m.confirmTx(nil), nil
}

// AwaitConfirmation reports the recorded outcome for the handle.
// Memory-ledger writes confirm synchronously.
func (m *MemoryLedger) AwaitConfirmation(ctx context.Context, tx TxHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err, ok := m.txs[tx]
	if !ok {
		return ErrNotConfirmed
	}
	return err
}

// Events subscribes to a marketplace event topic.
func (m *MemoryLedger) Events(topic string) (bus.Subscription, error) {
	return m.bus.Subscribe(topic)
}

// --- Marketplace side (clients, used by tests and simulation) ---

// CreateTask posts a new task and emits TaskCreated. Returns the task id.
func (m *MemoryLedger) CreateTask(client, description, deliveryFormat string, category Category, bounty Amount, deadline time.Time) uint64 {
	m.mu.Lock()
	m.counter++
	id := m.counter
	t := &Task{
		ID:             id,
		Client:         client,
		Description:    description,
		DeliveryFormat: deliveryFormat,
		Category:       category,
		Bounty:         bounty,
		Deadline:       deadline,
		Status:         StatusOpen,
	}
	m.tasks[id] = t
	m.mu.Unlock()

	m.emit(bus.SubjectTaskCreated, TaskCreatedEvent{
		EventID:     uuid.NewString(),
		TaskID:      id,
		Client:      client,
		Category:    category,
		Bounty:      bounty,
		Deadline:    deadline.Unix(),
		Description: description,
	})
	return id
}

// SelectAgent assigns an agent that has bid on the task and emits
// AgentAssigned. The price is the selected agent's bid price.
func (m *MemoryLedger) SelectAgent(id uint64, agent string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return ErrTaskNotFound
	}
	if t.Status != StatusOpen {
		m.mu.Unlock()
		return fmt.Errorf("%w: task %d not open", ErrRevert, id)
	}
	var price Amount
	found := false
	for _, b := range m.bids[id] {
		if b.Agent == agent {
			price = b.Price
			found = true
			break
		}
	}
	if !found {
		m.mu.Unlock()
		return fmt.Errorf("%w: agent %s has no bid on task %d", ErrRevert, agent, id)
	}
	t.Status = StatusAssigned
	t.AssignedAgent = agent
	m.mu.Unlock()

	m.emit(bus.SubjectAgentAssigned, AgentAssignedEvent{
		EventID: uuid.NewString(),
		TaskID:  id,
		Agent:   agent,
		Price:   price,
	})
	return nil
}

// ApproveDelivery approves a delivered task and emits TaskApproved.
func (m *MemoryLedger) ApproveDelivery(id uint64) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return ErrTaskNotFound
	}
	if t.Status != StatusDelivered {
		m.mu.Unlock()
		return fmt.Errorf("%w: task %d not delivered", ErrRevert, id)
	}
	t.Status = StatusApproved
	agent := t.AssignedAgent
	amount := t.Bounty
	m.mu.Unlock()

	m.emit(bus.SubjectTaskApproved, TaskApprovedEvent{
		EventID: uuid.NewString(),
		TaskID:  id,
		Agent:   agent,
		Amount:  amount,
	})
	return nil
}

// CancelTask cancels an open task. No event: cancellation is only visible
// through polling, which is exactly the status-drift path.
func (m *MemoryLedger) CancelTask(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if t.Status != StatusOpen {
		return fmt.Errorf("%w: task %d not open", ErrRevert, id)
	}
	t.Status = StatusCancelled
	return nil
}

// Bids returns the recorded bids for a task.
func (m *MemoryLedger) Bids(id uint64) []Bid {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Bid, len(m.bids[id]))
	copy(out, m.bids[id])
	return out
}

// confirmTx records a synchronous confirmation outcome. Caller holds mu.
func (m *MemoryLedger) confirmTx(outcome error) TxHandle {
	tx := TxHandle(uuid.NewString())
	m.txs[tx] = outcome
	return tx
}

// emit publishes an event payload, dropping it on marshal/publish failure.
// The poller is the liveness backstop for lost events.
func (m *MemoryLedger) emit(subject string, payload interface{}) {
	if m.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = m.bus.Publish(subject, data)
}
