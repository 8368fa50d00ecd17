package shutdown

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	// ErrAlreadyShutdown indicates shutdown was already initiated.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHookFailed indicates one or more hooks failed during shutdown.
	ErrHookFailed = errors.New("one or more shutdown hooks failed")
)

// Stages of an orderly agent shutdown. Lower stages run first; hooks
// within a stage run concurrently.
const (
	// StageIntake stops new stimuli: poller and event subscriber.
	StageIntake = 10

	// StageDrain waits for in-flight work: bid submissions and
	// pipeline runs that already have side effects pending.
	StageDrain = 20

	// StageFlush persists local state, such as the delivery archive.
	StageFlush = 30

	// StageTransport closes the bus and gateway connections.
	StageTransport = 40
)

// Hook is a piece of teardown work. The context is cancelled when the
// shutdown timeout expires; hooks should return promptly after that.
type Hook func(ctx context.Context) error

// HookResult records one hook's teardown outcome.
type HookResult struct {
	Name     string
	Stage    int
	Duration time.Duration
	Err      error
}
