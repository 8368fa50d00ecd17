package executor

import (
	"context"
	"fmt"
	"testing"

	agenterrors "github.com/flowwork/agent/errors"
	"github.com/flowwork/agent/ledger"
	"github.com/flowwork/agent/llm"
)

func TestNewGeneratorRequiresProvider(t *testing.T) {
	if _, err := NewGenerator(GeneratorConfig{}); err == nil {
		t.Fatal("expected error without provider")
	}
}

func TestGenerate(t *testing.T) {
	p := llm.NewMockProvider()
	p.SetResponse("A crisp tagline: Ship faster.")

	g, err := NewGenerator(GeneratorConfig{Provider: p})
	if err != nil {
		t.Fatal(err)
	}

	task := analysisTask("Write a tagline", ledger.CategoryCopywriting)
	task.DeliveryFormat = "markdown"

	content, err := g.Generate(context.Background(), task)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if content != "A crisp tagline: Ship faster." {
		t.Errorf("content = %q", content)
	}

	// The task description and format go in the system prompt.
	req := p.LastRequest()
	if req == nil || len(req.Messages) != 2 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", req.Messages[0].Role)
	}
}

func TestGenerateFailureIsPermanent(t *testing.T) {
	p := llm.NewMockProvider()
	p.SetError(fmt.Errorf("402 Payment Required"))

	g, _ := NewGenerator(GeneratorConfig{Provider: p})
	_, err := g.Generate(context.Background(), analysisTask("Write a tagline", ledger.CategoryCopywriting))
	if err == nil {
		t.Fatal("expected error")
	}
	if agenterrors.Code(err) != agenterrors.ErrCodeGenerationFailed {
		t.Errorf("code = %v, want GENERATION_FAILED", agenterrors.Code(err))
	}
	if agenterrors.IsRetryable(err) {
		t.Error("generation failure must not be retryable")
	}
}

func TestGenerateEmptyCompletion(t *testing.T) {
	p := llm.NewMockProvider()
	p.SetResponse("   ")

	g, _ := NewGenerator(GeneratorConfig{Provider: p})
	if _, err := g.Generate(context.Background(), analysisTask("Write a tagline", ledger.CategoryCopywriting)); err == nil {
		t.Fatal("empty completion should be an error")
	}
}
