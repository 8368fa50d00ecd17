package archive

import (
	"context"
	"testing"
	"time"

	"github.com/flowwork/agent/ledger"
)

func newArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestRecordAndLookup(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()

	err := a.Record(ctx, Delivery{
		TaskID:      7,
		Category:    "translation",
		Description: "Translate the onboarding guide to French",
		Proposal:    "I can complete this task with 75% confidence. Estimated time: 12 minutes.",
		Confidence:  75,
		Price:       "19.000000",
		ContentRef:  "local-abc123",
		DeliveredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := a.ByTask(ctx, 7)
	if err != nil {
		t.Fatalf("ByTask: %v", err)
	}
	if got == nil {
		t.Fatal("ByTask returned nil for archived delivery")
	}
	if got.TaskID != 7 || got.Category != "translation" || got.ContentRef != "local-abc123" {
		t.Errorf("ByTask = %+v", got)
	}
	if got.Confidence != 75 {
		t.Errorf("confidence = %d, want 75", got.Confidence)
	}

	missing, err := a.ByTask(ctx, 99)
	if err != nil {
		t.Fatalf("ByTask(99): %v", err)
	}
	if missing != nil {
		t.Errorf("ByTask(99) = %+v, want nil", missing)
	}
}

func TestRecordOverwritesSameTask(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()

	for _, ref := range []string{"local-first", "local-second"} {
		if err := a.Record(ctx, Delivery{TaskID: 3, Description: "write a tagline", ContentRef: ref}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	count, err := a.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	got, err := a.ByTask(ctx, 3)
	if err != nil || got == nil {
		t.Fatalf("ByTask: %v, %v", got, err)
	}
	if got.ContentRef != "local-second" {
		t.Errorf("content ref = %q, want local-second", got.ContentRef)
	}
}

func TestSearch(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()

	deliveries := []Delivery{
		{TaskID: 1, Category: "copywriting", Description: "Write a catchy slogan for a coffee brand"},
		{TaskID: 2, Category: "translation", Description: "Translate a press release about coffee exports"},
		{TaskID: 3, Category: "research", Description: "Summarize battery storage trends"},
	}
	for _, d := range deliveries {
		if err := a.Record(ctx, d); err != nil {
			t.Fatalf("Record(%d): %v", d.TaskID, err)
		}
	}

	hits, err := a.Search(ctx, "coffee", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("coffee hits = %d, want 2", len(hits))
	}
	for _, h := range hits {
		if h.TaskID != 1 && h.TaskID != 2 {
			t.Errorf("unexpected hit %+v", h)
		}
	}

	none, err := a.Search(ctx, "submarine", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("submarine hits = %d, want 0", len(none))
	}
}

func TestRecordTask(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()

	task := &ledger.Task{
		ID:          11,
		Category:    ledger.CategoryCopywriting,
		Description: "Write a catchy product tagline",
	}
	err := a.RecordTask(ctx, task, "proposal text", 80, ledger.Amount(19_000_000), "local-ref")
	if err != nil {
		t.Fatalf("RecordTask: %v", err)
	}

	got, err := a.ByTask(ctx, 11)
	if err != nil || got == nil {
		t.Fatalf("ByTask: %v, %v", got, err)
	}
	if got.Price != "19.000000" {
		t.Errorf("price = %q, want 19.000000", got.Price)
	}
	if got.DeliveredAt.IsZero() {
		t.Error("delivered at not defaulted")
	}
}
