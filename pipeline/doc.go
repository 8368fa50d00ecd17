// Package pipeline executes assigned tasks end to end: generate the
// content, publish it for a reference, submit the delivery on chain.
//
// Each phase has its own failure rule. Generation never retries (the
// failure is terminal for the task). Publishing is expected to degrade
// inside the publisher itself. Delivery retries up to a bound, except a
// ledger revert, which ends the attempt immediately, and the dedup guard
// guarantees at most one delivery submission per task no matter how the
// pipeline is re-entered.
//
// The runner holds no task state. The reconciler tags a task as
// executing before calling Execute and absorbs the Result afterward.
package pipeline
