// Package errors provides the structured error taxonomy used across the
// agent: the reconciler, polling loop, bid engine, and execution pipeline
// all classify failures through it to decide what is retried and what is
// surfaced to the operator.
//
// # Error Categories
//
// Errors are classified into four categories:
//
//   - Transient: Temporary failures where retry may succeed (RPC timeouts,
//     event transport hiccups). Absorbed by the next poll tick.
//   - Permanent: Failures where retry will not help (task not found, policy
//     rejection, ledger revert).
//   - Resource: Resource exhaustion (LLM rate limits, publish quotas).
//   - Internal: Unexpected errors indicating bugs or invariant violations.
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.ErrCodeLedgerRevert, "bid rejected")
//
// Wrap an existing error with context:
//
//	wrapped := errors.Wrap(err, "submitting bid", errors.WithTaskID(12))
//
// Check if an error is retryable:
//
//	if errors.IsRetryable(err) {
//	    // schedule another attempt
//	}
//
// # JSON Serialization
//
// Errors serialize to JSON for logs and telemetry:
//
//	data, _ := json.Marshal(err)
package errors
