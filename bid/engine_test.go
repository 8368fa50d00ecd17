package bid

import (
	"strings"
	"testing"
	"time"

	"github.com/flowwork/agent/executor"
	"github.com/flowwork/agent/ledger"
	"github.com/flowwork/agent/policy"
)

func openTask() *ledger.Task {
	return &ledger.Task{
		ID:          1,
		Description: "Write a product description",
		Category:    ledger.CategoryCopywriting,
		Bounty:      20_000_000, // $20
		Deadline:    time.Now().Add(24 * time.Hour),
		Status:      ledger.StatusOpen,
	}
}

func goodVerdict() executor.Verdict {
	return executor.Verdict{
		CanExecute:    true,
		Confidence:    75,
		EstimatedTime: 5 * time.Minute,
	}
}

func TestPrice(t *testing.T) {
	tests := []struct {
		bounty ledger.Amount
		want   ledger.Amount
	}{
		{20_000_000, 19_000_000},
		{1_000_000, 950_000},
		{19, 18}, // truncation toward zero
		{1, 0},
	}
	for _, tt := range tests {
		if got := Price(tt.bounty); got != tt.want {
			t.Errorf("Price(%d) = %d, want %d", tt.bounty, got, tt.want)
		}
	}
}

func TestDecideBids(t *testing.T) {
	e := NewEngine(policy.Default())
	d := e.Decide(openTask(), goodVerdict(), time.Now())

	if !d.Bid {
		t.Fatalf("expected bid, skipped: %s", d.Reason)
	}
	if d.Price != 19_000_000 {
		t.Errorf("price = %d, want 19000000", d.Price)
	}
	if d.EstimatedTime != 5*time.Minute {
		t.Errorf("estimated time = %v", d.EstimatedTime)
	}
	if !strings.Contains(d.Proposal, "75% confidence") {
		t.Errorf("proposal missing confidence: %q", d.Proposal)
	}
	if !strings.Contains(d.Proposal, "5 minutes") {
		t.Errorf("proposal missing minutes: %q", d.Proposal)
	}
}

func TestDecideDeterministic(t *testing.T) {
	e := NewEngine(policy.Default())
	now := time.Now()
	first := e.Decide(openTask(), goodVerdict(), now)
	second := e.Decide(openTask(), goodVerdict(), now)
	if first != second {
		t.Errorf("same inputs produced different decisions: %+v vs %+v", first, second)
	}
}

func TestDecideSkips(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		pol     func(*policy.Policy)
		task    func(*ledger.Task)
		verdict func(*executor.Verdict)
		wantSub string
	}{
		{
			name:    "auto_bid disabled",
			pol:     func(p *policy.Policy) { p.Bidding.AutoBid = false },
			wantSub: "auto_bid",
		},
		{
			name:    "task not open",
			task:    func(tk *ledger.Task) { tk.Status = ledger.StatusAssigned },
			wantSub: "status",
		},
		{
			name:    "deadline lapsed",
			task:    func(tk *ledger.Task) { tk.Deadline = now.Add(-time.Hour) },
			wantSub: "deadline",
		},
		{
			name:    "category excluded",
			pol:     func(p *policy.Policy) { p.Bidding.Categories = []ledger.Category{ledger.CategoryResearch} },
			wantSub: "category",
		},
		{
			name:    "bounty below minimum",
			pol:     func(p *policy.Policy) { p.Bidding.MinBounty = 50_000_000 },
			wantSub: "below minimum",
		},
		{
			name:    "bounty above maximum",
			pol:     func(p *policy.Policy) { p.Bidding.MaxBounty = 10_000_000 },
			wantSub: "above maximum",
		},
		{
			name:    "analyzer declined",
			verdict: func(v *executor.Verdict) { v.CanExecute = false; v.Reason = "" },
			wantSub: "analyzer declined",
		},
		{
			name:    "confidence too low",
			verdict: func(v *executor.Verdict) { v.Confidence = 40 },
			wantSub: "confidence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pol := policy.Default()
			if tt.pol != nil {
				tt.pol(pol)
			}
			task := openTask()
			if tt.task != nil {
				tt.task(task)
			}
			verdict := goodVerdict()
			if tt.verdict != nil {
				tt.verdict(&verdict)
			}

			d := NewEngine(pol).Decide(task, verdict, now)
			if d.Bid {
				t.Fatal("expected skip, got bid")
			}
			if !strings.Contains(d.Reason, tt.wantSub) {
				t.Errorf("reason %q does not mention %q", d.Reason, tt.wantSub)
			}
		})
	}
}

func TestBoundsInclusive(t *testing.T) {
	pol := policy.Default()
	pol.Bidding.MinBounty = 20_000_000
	pol.Bidding.MaxBounty = 20_000_000
	pol.Bidding.MinConfidence = 75

	d := NewEngine(pol).Decide(openTask(), goodVerdict(), time.Now())
	if !d.Bid {
		t.Errorf("bounty and confidence exactly at bounds should bid, skipped: %s", d.Reason)
	}
}
