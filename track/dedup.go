package track

import (
	"fmt"
	"sync"

	"github.com/flowwork/agent/ledger"
)

// DedupGuard is an append-only set of composite keys recording which
// external stimuli and side effects have already been absorbed. Push
// events are at-least-once and polling re-reads the same statuses every
// cycle, so every ingress point checks the guard before acting. Keys are
// never removed: a key that was seen stays seen for the process lifetime.
type DedupGuard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDedupGuard creates an empty guard.
func NewDedupGuard() *DedupGuard {
	return &DedupGuard{seen: make(map[string]struct{})}
}

// EventKey dedups a push event by its delivery id.
func EventKey(eventID string) string {
	return "event:" + eventID
}

// DriftKey dedups a polled status observation. One key per (task, status)
// pair: re-reading an unchanged status is a no-op, an actual status change
// produces a fresh key.
func DriftKey(taskID uint64, status ledger.TaskStatus) string {
	return fmt.Sprintf("drift:%d:%d", taskID, uint8(status))
}

// BidKey dedups the bid side effect. At most one bid is ever attempted
// per task, across every path that could decide to bid.
func BidKey(taskID uint64) string {
	return fmt.Sprintf("bid:%d", taskID)
}

// DeliverKey dedups the delivery side effect analogously.
func DeliverKey(taskID uint64) string {
	return fmt.Sprintf("deliver:%d", taskID)
}

// Seen reports whether the key has already been absorbed.
func (g *DedupGuard) Seen(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.seen[key]
	return ok
}

// Absorb records the key. Returns true if this is the first time the key
// was seen, false if it was already absorbed. Check-and-record is atomic
// so two paths racing on the same key cannot both win.
func (g *DedupGuard) Absorb(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = struct{}{}
	return true
}

// Size returns the number of absorbed keys.
func (g *DedupGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
