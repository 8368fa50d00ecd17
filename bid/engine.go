package bid

import (
	"fmt"
	"time"

	"github.com/flowwork/agent/executor"
	"github.com/flowwork/agent/ledger"
	"github.com/flowwork/agent/policy"
)

// Price discount: bids undercut the bounty by 5%, integer math.
const (
	priceNumerator   = 95
	priceDenominator = 100
)

// Decision is the outcome of evaluating one task. The same task, verdict
// and policy always produce the same decision; nothing here consults a
// clock, randomness, or hidden state beyond the inputs.
type Decision struct {
	Bid           bool
	Price         ledger.Amount
	Proposal      string
	EstimatedTime time.Duration

	// Reason explains a skip. Empty when bidding.
	Reason string
}

// Engine applies the bidding policy to analyzer verdicts.
type Engine struct {
	pol *policy.Policy
}

// NewEngine creates a decision engine bound to the policy.
func NewEngine(pol *policy.Policy) *Engine {
	return &Engine{pol: pol}
}

// Price returns the bid price for a bounty: 95% rounded toward zero.
func Price(bounty ledger.Amount) ledger.Amount {
	return bounty.MulFrac(priceNumerator, priceDenominator)
}

// Decide evaluates a task against the policy and the analyzer's verdict.
// The task must still be open; lifecycle and dedup checks happen in the
// reconciler before this is called.
func (e *Engine) Decide(task *ledger.Task, verdict executor.Verdict, now time.Time) Decision {
	b := e.pol.Bidding

	if !b.AutoBid {
		return skip("auto_bid disabled")
	}
	if task.Status != ledger.StatusOpen {
		return skip(fmt.Sprintf("task status %s", task.Status))
	}
	if task.Expired(now) {
		return skip("deadline lapsed")
	}
	if !e.pol.CategoryAllowed(task.Category) {
		return skip(fmt.Sprintf("category %s not in policy", task.Category))
	}
	if task.Bounty < b.MinBounty {
		return skip(fmt.Sprintf("bounty %s below minimum %s", task.Bounty, b.MinBounty))
	}
	if task.Bounty > b.MaxBounty {
		return skip(fmt.Sprintf("bounty %s above maximum %s", task.Bounty, b.MaxBounty))
	}
	if !verdict.CanExecute {
		reason := verdict.Reason
		if reason == "" {
			reason = "analyzer declined"
		}
		return skip(reason)
	}
	if verdict.Confidence < b.MinConfidence {
		return skip(fmt.Sprintf("confidence %d below minimum %d", verdict.Confidence, b.MinConfidence))
	}

	return Decision{
		Bid:           true,
		Price:         Price(task.Bounty),
		Proposal:      proposal(verdict),
		EstimatedTime: verdict.EstimatedTime,
	}
}

func skip(reason string) Decision {
	return Decision{Reason: reason}
}

// proposal renders the on-chain proposal text. Minutes round half up.
func proposal(v executor.Verdict) string {
	minutes := (v.EstimatedTime + 30*time.Second) / time.Minute
	return fmt.Sprintf(
		"I can complete this task with %d%% confidence. Estimated time: %d minutes.",
		v.Confidence, minutes)
}
