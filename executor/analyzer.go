package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/flowwork/agent/ledger"
	"github.com/flowwork/agent/llm"
	"github.com/flowwork/agent/logging"
	"github.com/flowwork/agent/ratelimit"
)

// ResourceLLM is the rate limiter resource name for LLM calls.
const ResourceLLM = "llm"

// Verdict is the analyzer's answer to "should we work this task".
type Verdict struct {
	CanExecute    bool          `json:"can_execute"`
	Confidence    int           `json:"confidence"` // 0..100
	EstimatedTime time.Duration `json:"estimated_time"`
	Reason        string        `json:"reason,omitempty"`
}

// Analyzer judges whether the agent can complete a task. With an LLM
// provider it asks the model; without one, or when the model call fails,
// it falls back to a deterministic heuristic so the engine keeps making
// decisions offline.
type Analyzer struct {
	provider llm.Provider // nil means heuristic only
	limiter  ratelimit.RateLimiter
	log      *logging.Logger
}

// NewAnalyzer creates an analyzer. provider may be nil; limiter may be nil
// to skip rate limiting.
func NewAnalyzer(provider llm.Provider, limiter ratelimit.RateLimiter, log *logging.Logger) *Analyzer {
	if log == nil {
		log = logging.New()
	}
	return &Analyzer{
		provider: provider,
		limiter:  limiter,
		log:      log.WithComponent("analyzer"),
	}
}

const analyzeSystemPrompt = `You are an AI agent that evaluates whether it can complete tasks.

Analyze the task and respond ONLY with JSON:
{
  "canExecute": true/false,
  "confidence": 0-100,
  "estimatedTime": seconds,
  "reason": "brief explanation"
}

You can do:
- Writing (copy, blogs, emails)
- Research and analysis
- Text translation
- Data analysis (with provided information)
- Code review
- Image prompt generation

You can NOT do:
- Tasks requiring access to external systems
- Running code on real systems
- Physical tasks
- Access to private databases`

// Analyze returns a verdict for the task.
func (a *Analyzer) Analyze(ctx context.Context, task *ledger.Task) Verdict {
	if a.provider == nil {
		return heuristicVerdict(task)
	}

	if a.limiter != nil {
		if err := a.limiter.Acquire(ctx, ResourceLLM); err != nil {
			a.log.Warn("analysis rate limit wait failed, using heuristic",
				map[string]interface{}{"task_id": task.ID, "error": err.Error()})
			return heuristicVerdict(task)
		}
		defer a.limiter.Release(ResourceLLM)
	}

	resp, err := a.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: analyzeSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(
				"Task: %q\n\nCategory: %s\n\nCan you complete this task?",
				task.Description, task.Category)},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		a.noteLLMError(err)
		a.log.Warn("analysis call failed, using heuristic",
			map[string]interface{}{"task_id": task.ID, "error": err.Error()})
		return heuristicVerdict(task)
	}

	v, ok := parseVerdict(resp.Content)
	if !ok {
		a.log.Warn("analysis response had no parseable verdict",
			map[string]interface{}{"task_id": task.ID})
		return Verdict{}
	}
	return v
}

// noteLLMError ratchets the rate limit down when the provider pushes back.
func (a *Analyzer) noteLLMError(err error) {
	if a.limiter == nil || err == nil {
		return
	}
	if strings.Contains(strings.ToLower(err.Error()), "rate limit") ||
		strings.Contains(err.Error(), "429") {
		a.limiter.AnnounceReduced(ResourceLLM, "llm rate limit response")
	}
}

var jsonBlockRe = regexp.MustCompile(`(?s)\{.*\}`)

// verdictWire matches the JSON shape the model is asked for.
type verdictWire struct {
	CanExecute    bool    `json:"canExecute"`
	Confidence    float64 `json:"confidence"`
	EstimatedTime float64 `json:"estimatedTime"` // seconds
	Reason        string  `json:"reason"`
}

// parseVerdict extracts the first JSON object from model output. Models
// wrap JSON in prose and code fences often enough that a permissive
// extract-then-parse is the reliable path.
func parseVerdict(content string) (Verdict, bool) {
	match := jsonBlockRe.FindString(content)
	if match == "" {
		return Verdict{}, false
	}
	var w verdictWire
	if err := json.Unmarshal([]byte(match), &w); err != nil {
		return Verdict{}, false
	}
	est := time.Duration(w.EstimatedTime) * time.Second
	if est == 0 && w.CanExecute {
		est = time.Hour
	}
	return Verdict{
		CanExecute:    w.CanExecute,
		Confidence:    int(w.Confidence),
		EstimatedTime: est,
		Reason:        w.Reason,
	}, true
}

// heuristicCantDo are description keywords that rule a task out without
// asking a model.
var heuristicCantDo = []string{
	"code",
	"program",
	"execute",
	"install",
	"database",
	"server",
	"deploy",
}

// heuristicCategories are the categories the heuristic will attempt.
var heuristicCategories = map[ledger.Category]bool{
	ledger.CategoryCopywriting:  true,
	ledger.CategoryImagePrompts: true,
	ledger.CategoryResearch:     true,
	ledger.CategoryTranslation:  true,
	ledger.CategorySocialMedia:  true,
}

// heuristicVerdict is the deterministic no-model analysis. Short, simple
// descriptions score higher; confidence is 100 minus the word count,
// clamped to [30, 80], and the time estimate is ten seconds per word.
func heuristicVerdict(task *ledger.Task) Verdict {
	if !heuristicCategories[task.Category] {
		return Verdict{Reason: "category outside heuristic scope"}
	}

	lower := strings.ToLower(task.Description)
	for _, kw := range heuristicCantDo {
		if strings.Contains(lower, kw) {
			return Verdict{Reason: "description mentions " + kw}
		}
	}

	wordCount := len(strings.Fields(task.Description))
	confidence := 100 - wordCount
	if confidence > 80 {
		confidence = 80
	}
	if confidence < 30 {
		confidence = 30
	}

	return Verdict{
		CanExecute:    true,
		Confidence:    confidence,
		EstimatedTime: time.Duration(wordCount) * 10 * time.Second,
		Reason:        "heuristic",
	}
}
