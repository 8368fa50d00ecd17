package reconcile

import (
	"github.com/flowwork/agent/ledger"
	"github.com/flowwork/agent/pipeline"
)

// Record is one unit of work for the reconciler loop. Push events,
// polled observations, timer expiries, and async operation results all
// arrive as records through a single channel, so the loop is the only
// writer to the tracking store and ordering questions collapse into
// channel order.
type Record interface {
	recordTaskID() uint64
}

// TaskCreatedRecord is a TaskCreated push event.
type TaskCreatedRecord struct {
	EventID string
	TaskID  uint64
}

// AssignedRecord is an AgentAssigned push event.
type AssignedRecord struct {
	EventID string
	TaskID  uint64
	Agent   string
}

// ApprovedRecord is a TaskApproved push event.
type ApprovedRecord struct {
	EventID string
	TaskID  uint64
}

// SnapshotRecord is a polled task snapshot: either a task beyond the
// cursor (new) or a drift re-read of a recent id. The reconciler does
// not care which; the dedup guard sorts replays out.
type SnapshotRecord struct {
	Task *ledger.Task
}

// ExecuteDueRecord fires when an assigned task's settle delay elapses
// and the execution pipeline should start.
type ExecuteDueRecord struct {
	TaskID uint64
}

// BidResultRecord reports an async bid evaluation and submission.
type BidResultRecord struct {
	TaskID   uint64
	Placed   bool
	Price    ledger.Amount
	Proposal string

	// SkipReason is set when the decision was not to bid.
	SkipReason string

	// Confidence from the verdict, for logging.
	Confidence int

	Err error
}

// PipelineResultRecord reports a finished pipeline run.
type PipelineResultRecord struct {
	Result pipeline.Result
}

func (r TaskCreatedRecord) recordTaskID() uint64 { return r.TaskID }
func (r AssignedRecord) recordTaskID() uint64    { return r.TaskID }
func (r ApprovedRecord) recordTaskID() uint64    { return r.TaskID }
func (r SnapshotRecord) recordTaskID() uint64    { return r.Task.ID }
func (r ExecuteDueRecord) recordTaskID() uint64  { return r.TaskID }
func (r BidResultRecord) recordTaskID() uint64   { return r.TaskID }

func (r PipelineResultRecord) recordTaskID() uint64 { return r.Result.TaskID }
