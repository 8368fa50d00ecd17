// Package ledger defines the gateway to the FlowWork task marketplace.
//
// The marketplace itself lives in a smart contract; the engine never
// talks to it directly. Gateway abstracts the reads and writes the
// engine needs: task lookups, the task counter, bid and delivery
// submission, and the event topics the contract emits. Writes return a
// TxHandle and are not final until AwaitConfirmation returns nil; a
// confirmation failure wrapping ErrRevert means the chain rejected the
// write and the attempt is spent.
//
// Two implementations are provided. BridgeGateway speaks to a signer
// bridge over the message bus, which holds the wallet key and signs
// transactions on the engine's behalf. MemoryLedger is a full in-memory
// marketplace used by tests and local runs; it also exposes the client
// side (CreateTask, SelectAgent, ApproveDelivery, CancelTask) so a
// whole task lifecycle can be driven in-process.
//
// Amounts are USDC base units with six decimals, always integer math.
package ledger
