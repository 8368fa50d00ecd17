package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/flowwork/agent/bus"
)

// Common errors.
var (
	// ErrTaskNotFound indicates the task id has not been assigned by the
	// contract (or is out of the queryable range).
	ErrTaskNotFound = errors.New("task not found")

	// ErrCounterUnsupported indicates the contract exposes no task counter
	// primitive; callers fall back to existence probing.
	ErrCounterUnsupported = errors.New("task counter unsupported")

	// ErrRevert indicates the ledger rejected a write (closed task, expired
	// deadline, duplicate bid...). Not retryable.
	ErrRevert = errors.New("ledger revert")

	// ErrNotConfirmed indicates a submitted transaction failed confirmation.
	ErrNotConfirmed = errors.New("transaction not confirmed")
)

// TxHandle identifies a submitted ledger write awaiting confirmation.
type TxHandle string

// Gateway is typed read/write access to the marketplace contract.
// It is a pure adapter: no bidding policy, no lifecycle bookkeeping.
// Implementations: the in-memory marketplace (tests, simulation) and the
// signer-bridge client (production; the bridge holds the wallet key).
type Gateway interface {
	// GetTask fetches the current snapshot of a task.
	// Returns ErrTaskNotFound for unassigned ids.
	GetTask(ctx context.Context, id uint64) (*Task, error)

	// GetTaskCounter returns the highest assigned task id.
	// Returns ErrCounterUnsupported when the contract has no counter.
	GetTaskCounter(ctx context.Context) (uint64, error)

	// SubmitBid submits a bid on an open task.
	SubmitBid(ctx context.Context, id uint64, price Amount, proposal string, estimatedTime time.Duration) (TxHandle, error)

	// SubmitDelivery submits the content reference for an assigned task.
	// Resubmitting the same reference for an undelivered task is harmless.
	SubmitDelivery(ctx context.Context, id uint64, contentRef string) (TxHandle, error)

	// AwaitConfirmation blocks until the write is confirmed or fails.
	AwaitConfirmation(ctx context.Context, tx TxHandle) error

	// Events subscribes to a named event topic (bus.SubjectTaskCreated,
	// bus.SubjectAgentAssigned, bus.SubjectTaskApproved). Transport-level
	// reconnection is the gateway's (or its bus's) responsibility.
	Events(topic string) (bus.Subscription, error)
}

// Event payloads, as published on the bus subjects. EventID is assigned by
// the emitting side and unique per on-ledger occurrence; duplicated
// deliveries carry the same EventID.

// TaskCreatedEvent announces a newly posted task.
type TaskCreatedEvent struct {
	EventID     string   `json:"event_id"`
	TaskID      uint64   `json:"task_id"`
	Client      string   `json:"client"`
	Category    Category `json:"category"`
	Bounty      Amount   `json:"bounty"`
	Deadline    int64    `json:"deadline"` // unix seconds
	Description string   `json:"description"`
}

// AgentAssignedEvent announces that the client selected an agent.
type AgentAssignedEvent struct {
	EventID string `json:"event_id"`
	TaskID  uint64 `json:"task_id"`
	Agent   string `json:"agent"`
	Price   Amount `json:"price"`
}

// TaskApprovedEvent announces that the client approved a delivery.
type TaskApprovedEvent struct {
	EventID string `json:"event_id"`
	TaskID  uint64 `json:"task_id"`
	Agent   string `json:"agent"`
	Amount  Amount `json:"amount"`
}
