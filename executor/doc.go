// Package executor holds the LLM-facing half of the pipeline: deciding
// whether a task is doable and producing the deliverable.
//
// Analyzer returns a Verdict (can-do, confidence, time estimate). It
// prefers the configured model but always has the deterministic
// heuristic to fall back on, so a provider outage degrades decision
// quality rather than halting bidding. Generator has no such fallback;
// if the model cannot produce content the task fails permanently.
//
// Both stages draw from the shared "llm" rate limit bucket.
package executor
