// Package track keeps the engine's view of every task it has ever seen.
//
// Two structures carry the reconciliation invariants. Store maps task ids
// to a ledger snapshot plus a lifecycle Tag; tags are strictly forward
// (discovered through terminal) and transitions are judged against the
// tag a task holds now, which is what makes replayed and reordered
// stimuli safe. DedupGuard is an append-only key set that absorbs
// duplicate ingress: push event ids, polled (task, status) observations,
// and the bid/deliver side effects that must happen at most once per
// task.
//
// The reconciler goroutine is the sole writer to both. Other goroutines
// only read, and always receive copies.
package track
