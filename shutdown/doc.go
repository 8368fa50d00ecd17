// Package shutdown tears the agent down in stages: stop taking new
// stimuli, drain in-flight bids and pipeline runs, flush local state,
// then close transports. Hooks register at a stage; stages run in
// order and hooks within a stage run concurrently under one deadline.
//
// The ordering matters because every side effect the agent performs is
// guarded against duplicates, not against loss: it is always safe to
// die having done less, never safe to keep accepting work while the
// transports underneath are closing.
package shutdown
