// Package reconcile merges push events and counter polling into one
// ordered stream of work and drives each task's lifecycle through it.
//
// Events are at-least-once and may arrive out of order; polling is the
// backstop that finds anything the events missed. Both paths feed the
// same record channel, consumed by a single reconciler goroutine that
// owns the tracking store. Duplicate stimuli are absorbed by dedup
// keys and forward-only lifecycle tags, so the same occurrence seen
// through both paths produces exactly one action.
package reconcile
