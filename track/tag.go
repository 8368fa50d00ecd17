package track

import "fmt"

// Tag is the engine's own lifecycle position for a tracked task. It is
// distinct from the marketplace status: the status is what the contract
// says, the tag is how far this agent has taken the task. Tags only ever
// move forward.
type Tag uint8

const (
	// TagDiscovered means the task is known but no decision has been acted on.
	TagDiscovered Tag = iota

	// TagBidSubmitted means our bid transaction was confirmed.
	TagBidSubmitted

	// TagAssignedToUs means the client selected this agent.
	TagAssignedToUs

	// TagExecuting means the execution pipeline owns the task.
	TagExecuting

	// TagDeliverySubmitted means our delivery transaction was confirmed.
	TagDeliverySubmitted

	// TagTerminal means nothing more will ever happen for this task. Reached
	// on approval, dispute, cancellation, expiry, skip decisions, and fatal
	// pipeline failures alike.
	TagTerminal
)

// String returns the tag name.
func (t Tag) String() string {
	switch t {
	case TagDiscovered:
		return "discovered"
	case TagBidSubmitted:
		return "bid_submitted"
	case TagAssignedToUs:
		return "assigned"
	case TagExecuting:
		return "executing"
	case TagDeliverySubmitted:
		return "delivery_submitted"
	case TagTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// CanAdvanceTo reports whether moving from t to next is a forward step.
// Equal tags are not an advance; the store treats them as a no-op rather
// than an error, since replayed events legitimately re-derive the same
// transition.
func (t Tag) CanAdvanceTo(next Tag) bool {
	return next > t
}
