package executor

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/flowwork/agent/ledger"
	"github.com/flowwork/agent/llm"
)

func analysisTask(desc string, cat ledger.Category) *ledger.Task {
	return &ledger.Task{
		ID:          1,
		Description: desc,
		Category:    cat,
		Bounty:      5_000_000,
		Status:      ledger.StatusOpen,
	}
}

// --- Heuristic ---

func TestHeuristicCategories(t *testing.T) {
	tests := []struct {
		category ledger.Category
		canDo    bool
	}{
		{ledger.CategoryCopywriting, true},
		{ledger.CategoryImagePrompts, true},
		{ledger.CategoryResearch, true},
		{ledger.CategoryTranslation, true},
		{ledger.CategorySocialMedia, true},
		{ledger.CategoryCodeReview, false},
		{ledger.CategoryDataAnalysis, false},
		{ledger.CategoryFinancial, false},
		{ledger.CategoryLegal, false},
		{ledger.CategoryOther, false},
	}

	a := NewAnalyzer(nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.category.String(), func(t *testing.T) {
			v := a.Analyze(context.Background(), analysisTask("Write a short tagline", tt.category))
			if v.CanExecute != tt.canDo {
				t.Errorf("CanExecute = %v, want %v", v.CanExecute, tt.canDo)
			}
		})
	}
}

func TestHeuristicKeywordBlocklist(t *testing.T) {
	a := NewAnalyzer(nil, nil, nil)
	blocked := []string{
		"Review this code for bugs",
		"Install the package on my server",
		"Write a query for my database",
		"Deploy the landing page",
	}
	for _, desc := range blocked {
		v := a.Analyze(context.Background(), analysisTask(desc, ledger.CategoryCopywriting))
		if v.CanExecute {
			t.Errorf("description %q should be rejected", desc)
		}
	}
}

func TestHeuristicConfidence(t *testing.T) {
	a := NewAnalyzer(nil, nil, nil)

	// 4 words: 100-4=96, clamped to 80.
	v := a.Analyze(context.Background(), analysisTask("Write a short tagline", ledger.CategoryCopywriting))
	if v.Confidence != 80 {
		t.Errorf("short description confidence = %d, want 80", v.Confidence)
	}
	if v.EstimatedTime != 40*time.Second {
		t.Errorf("estimated time = %v, want 40s", v.EstimatedTime)
	}

	// 90 words: 100-90=10, clamped to 30.
	long := strings.Repeat("word ", 90)
	v = a.Analyze(context.Background(), analysisTask(strings.TrimSpace(long), ledger.CategoryResearch))
	if v.Confidence != 30 {
		t.Errorf("long description confidence = %d, want 30", v.Confidence)
	}

	// 50 words: 100-50=50, within range.
	mid := strings.TrimSpace(strings.Repeat("word ", 50))
	v = a.Analyze(context.Background(), analysisTask(mid, ledger.CategoryResearch))
	if v.Confidence != 50 {
		t.Errorf("mid description confidence = %d, want 50", v.Confidence)
	}
}

// --- LLM path ---

func TestAnalyzeParsesModelVerdict(t *testing.T) {
	p := llm.NewMockProvider()
	p.SetResponse(`Here is my analysis:
{"canExecute": true, "confidence": 85, "estimatedTime": 120, "reason": "straightforward copywriting"}`)

	a := NewAnalyzer(p, nil, nil)
	v := a.Analyze(context.Background(), analysisTask("Write a tagline", ledger.CategoryCopywriting))

	if !v.CanExecute {
		t.Error("CanExecute = false")
	}
	if v.Confidence != 85 {
		t.Errorf("confidence = %d, want 85", v.Confidence)
	}
	if v.EstimatedTime != 2*time.Minute {
		t.Errorf("estimated time = %v, want 2m", v.EstimatedTime)
	}
	if p.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1", p.CallCount())
	}
}

func TestAnalyzeUnparseableResponse(t *testing.T) {
	p := llm.NewMockProvider()
	p.SetResponse("I cannot answer in the requested format.")

	a := NewAnalyzer(p, nil, nil)
	v := a.Analyze(context.Background(), analysisTask("Write a tagline", ledger.CategoryCopywriting))

	// No verdict means no bid, not a heuristic guess.
	if v.CanExecute {
		t.Error("unparseable response should produce a negative verdict")
	}
}

func TestAnalyzeFallsBackOnProviderError(t *testing.T) {
	p := llm.NewMockProvider()
	p.SetError(fmt.Errorf("503 Service Unavailable"))

	a := NewAnalyzer(p, nil, nil)
	v := a.Analyze(context.Background(), analysisTask("Write a short tagline", ledger.CategoryCopywriting))

	if !v.CanExecute {
		t.Error("provider failure should fall back to heuristic, which accepts this task")
	}
	if v.Reason != "heuristic" {
		t.Errorf("reason = %q, want heuristic", v.Reason)
	}
}

func TestParseVerdictDefaults(t *testing.T) {
	// Missing estimatedTime on a positive verdict defaults to an hour.
	v, ok := parseVerdict(`{"canExecute": true, "confidence": 70}`)
	if !ok {
		t.Fatal("parse failed")
	}
	if v.EstimatedTime != time.Hour {
		t.Errorf("default estimated time = %v, want 1h", v.EstimatedTime)
	}

	if _, ok := parseVerdict("no json here"); ok {
		t.Error("parse should fail without a JSON object")
	}
}
