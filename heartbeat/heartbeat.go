package heartbeat

import (
	"encoding/json"
	"errors"
	"time"
)

// Common errors.
var (
	ErrAlreadyStarted = errors.New("heartbeat already started")
	ErrNotStarted     = errors.New("heartbeat not started")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Agent statuses carried in heartbeats.
const (
	StatusIdle    = "idle"
	StatusWorking = "working"
)

// Heartbeat is a periodic liveness announcement. Operators watch the
// heartbeat subject to see which agents are up and how loaded they are;
// nothing in the marketplace depends on it.
type Heartbeat struct {
	// Agent is the on-ledger identity of the sender.
	Agent string `json:"agent"`

	// Timestamp when the heartbeat was generated.
	Timestamp time.Time `json:"timestamp"`

	// Status is idle or working.
	Status string `json:"status"`

	// ActiveTasks is the number of tasks the agent is tracking that
	// have not reached a terminal state.
	ActiveTasks int `json:"active_tasks"`

	// Metadata contains additional key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Marshal serializes a heartbeat to JSON.
func (h *Heartbeat) Marshal() ([]byte, error) {
	return json.Marshal(h)
}

// Unmarshal deserializes a heartbeat from JSON.
func Unmarshal(data []byte) (*Heartbeat, error) {
	var h Heartbeat
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}
