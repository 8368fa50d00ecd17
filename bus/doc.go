// Package bus provides the message transport between the marketplace side
// (contract events, signer bridge) and the agent process.
//
// # Overview
//
// The MessageBus interface covers two patterns:
//
//   - Pub/Sub for marketplace event notifications (TaskCreated,
//     AgentAssigned, TaskApproved). Delivery is at-least-once; consumers
//     must deduplicate.
//   - Request/Reply for signer-bridge RPC: contract reads and signed writes
//     are performed by a bridge process that answers on the flowwork.rpc.*
//     subjects.
//
// # Available Implementations
//
//   - NATSBus: production transport using NATS
//   - MemoryBus: in-memory implementation for tests and single-process
//     simulation against the in-memory marketplace
//
// # Patterns
//
// Pub/Sub:
//
//	sub, _ := bus.Subscribe(bus.SubjectTaskCreated)
//	for msg := range sub.Messages() {
//	    // Handle event
//	}
//
// Request/Reply:
//
//	// Responder (signer bridge)
//	sub, _ := bus.Subscribe(bus.SubjectGetTask)
//	for msg := range sub.Messages() {
//	    bus.Publish(msg.Reply, response)
//	}
//
//	// Requester (agent)
//	reply, _ := bus.Request(bus.SubjectGetTask, payload, timeout)
package bus
