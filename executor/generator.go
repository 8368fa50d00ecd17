package executor

import (
	"context"
	"fmt"
	"strings"

	agenterrors "github.com/flowwork/agent/errors"
	"github.com/flowwork/agent/ledger"
	"github.com/flowwork/agent/llm"
	"github.com/flowwork/agent/logging"
	"github.com/flowwork/agent/ratelimit"
)

// Generator produces the deliverable content for an assigned task.
// Generation failure is terminal for the task: rerunning the model on a
// prompt it already failed is wasted spend, and the client sees either a
// delivery or nothing.
type Generator struct {
	provider  llm.Provider
	limiter   ratelimit.RateLimiter
	maxTokens int
	log       *logging.Logger
}

// GeneratorConfig holds generator settings.
type GeneratorConfig struct {
	Provider llm.Provider
	Limiter  ratelimit.RateLimiter

	// MaxTokens caps the generated deliverable. Default 8000.
	MaxTokens int

	Logger *logging.Logger
}

// NewGenerator creates a generator. The provider is required.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("generator requires an llm provider")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8000
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	return &Generator{
		provider:  cfg.Provider,
		limiter:   cfg.Limiter,
		maxTokens: cfg.MaxTokens,
		log:       log.WithComponent("generator"),
	}, nil
}

const generateSystemPrompt = `You are an AI agent that completes tasks professionally.

The task you must complete is:
%q

Requested delivery format: %s

IMPORTANT:
- Be concise and professional
- Deliver exactly what is asked
- For writing, use the appropriate tone
- For research, include sources where possible
- For translation, preserve the original meaning
- For analysis, be clear and structured`

// Generate produces the deliverable text for the task. Errors are always
// GENERATION_FAILED and permanent.
func (g *Generator) Generate(ctx context.Context, task *ledger.Task) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Acquire(ctx, ResourceLLM); err != nil {
			return "", agenterrors.GenerationFailed(task.ID, err)
		}
		defer g.limiter.Release(ResourceLLM)
	}

	format := task.DeliveryFormat
	if format == "" {
		format = "plain text"
	}

	resp, err := g.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: fmt.Sprintf(generateSystemPrompt, task.Description, format)},
			{Role: "user", Content: "Complete the task now. Deliver the result ready for the client."},
		},
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		if g.limiter != nil && (strings.Contains(strings.ToLower(err.Error()), "rate limit") ||
			strings.Contains(err.Error(), "429")) {
			g.limiter.AnnounceReduced(ResourceLLM, "llm rate limit response")
		}
		return "", agenterrors.GenerationFailed(task.ID, err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", agenterrors.GenerationFailed(task.ID, fmt.Errorf("empty completion"))
	}

	g.log.Info("content generated", map[string]interface{}{
		"task_id":       task.ID,
		"bytes":         len(resp.Content),
		"output_tokens": resp.OutputTokens,
	})
	return resp.Content, nil
}
