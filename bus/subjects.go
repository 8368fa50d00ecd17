package bus

// Marketplace event subjects. The event side of the ledger gateway publishes
// normalized contract events here; the agent's subscriber consumes them.
// Delivery is at-least-once: the same event may arrive more than once and
// out of order relative to polling.
const (
	SubjectTaskCreated   = "flowwork.events.task_created"
	SubjectAgentAssigned = "flowwork.events.agent_assigned"
	SubjectTaskApproved  = "flowwork.events.task_approved"
)

// Signer-bridge RPC subjects. The bridge process holds the wallet key and
// performs contract reads/writes on behalf of the agent over request/reply.
const (
	SubjectGetTask        = "flowwork.rpc.get_task"
	SubjectTaskCounter    = "flowwork.rpc.task_counter"
	SubjectSubmitBid      = "flowwork.rpc.submit_bid"
	SubjectSubmitDelivery = "flowwork.rpc.submit_delivery"
	SubjectConfirm        = "flowwork.rpc.confirm"
)

// SubjectHeartbeat carries periodic agent liveness announcements.
const SubjectHeartbeat = "flowwork.agents.heartbeat"
