package logging

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	l.SetLevel(LevelWarn)

	l.Debug("dropped")
	l.Info("dropped too")
	l.Warn("kept")
	l.Error("also kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("output contains filtered messages: %q", out)
	}
	if !strings.Contains(out, "kept") || !strings.Contains(out, "also kept") {
		t.Errorf("output missing messages at or above WARN: %q", out)
	}
}

func TestComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)

	rl := l.WithComponent("reconciler")
	rl.Info("task_discovered")

	if !strings.Contains(buf.String(), "[reconciler]") {
		t.Errorf("output missing component prefix: %q", buf.String())
	}
}

func TestFields(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)

	l.Info("bid_placed", map[string]interface{}{"task": uint64(12), "price": "19.00"})

	out := buf.String()
	if !strings.Contains(out, "task=12") {
		t.Errorf("output missing task field: %q", out)
	}
	if !strings.Contains(out, "price=19.00") {
		t.Errorf("output missing price field: %q", out)
	}
}

func TestLifecycleHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	l.SetLevel(LevelDebug)

	l.TaskDiscovered(3, "poll", "Research", "20.000000")
	l.PolicyRejected(3, "bounty too low")
	l.BidPlaced(3, "19.000000", 75)
	l.Assigned(3)
	l.PipelinePhase(3, "generating")
	l.Delivered(3, "bafyexample")
	l.PipelineFailed(3, "generating", fmt.Errorf("empty response"))
	l.PollTick(5, 3, 2)
	l.Terminal(3, "approved")

	out := buf.String()
	for _, want := range []string{
		"task_discovered", "policy_rejected", "bid_placed", "task_assigned",
		"pipeline_phase", "delivery_submitted", "pipeline_failed", "poll_tick",
		"task_terminal",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}
