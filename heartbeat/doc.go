// Package heartbeat announces agent liveness on the message bus.
//
// A Sender publishes a JSON heartbeat on the shared agents subject at
// a fixed interval, carrying the agent's identity, a coarse status,
// and how many tasks it is actively tracking. Heartbeats are advisory:
// the marketplace never acts on them, they exist so operators can see
// which agents are up and busy.
package heartbeat
