// Package bid turns analyzer verdicts into bid-or-skip decisions.
//
// The engine is deliberately pure: policy bounds, the task snapshot, and
// the verdict go in, a Decision comes out. Pricing is always 95% of the
// bounty in integer base units, so re-evaluating a task can never
// produce a different bid than the one already on chain.
package bid
