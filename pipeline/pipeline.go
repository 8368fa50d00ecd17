package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	agenterrors "github.com/flowwork/agent/errors"
	"github.com/flowwork/agent/executor"
	"github.com/flowwork/agent/ledger"
	"github.com/flowwork/agent/logging"
	"github.com/flowwork/agent/publish"
	"github.com/flowwork/agent/track"
)

// Phase is a position in the execution pipeline.
type Phase string

const (
	PhaseGenerating Phase = "generating"
	PhasePublishing Phase = "publishing"
	PhaseDelivering Phase = "delivering"
	PhaseDelivered  Phase = "delivered"
	PhaseFailed     Phase = "failed"
)

// Result is what one pipeline run reports back to the reconciler.
type Result struct {
	TaskID     uint64
	ContentRef string
	Phase      Phase // phase the run ended in: delivered or failed
	Err        error
}

// Runner executes assigned tasks: generate content, publish it, submit
// the delivery. One Execute call per task, run on its own goroutine; the
// reconciler owns all state transitions and calls Execute only after
// tagging the task as executing.
type Runner struct {
	gateway   ledger.Gateway
	generator *executor.Generator
	publisher publish.Publisher
	guard     *track.DedupGuard

	retries    int
	retryDelay time.Duration
	log        *logging.Logger
}

// Config holds pipeline settings.
type Config struct {
	Gateway   ledger.Gateway
	Generator *executor.Generator
	Publisher publish.Publisher
	Guard     *track.DedupGuard

	// DeliveryRetries bounds delivery submission attempts. Default 3.
	DeliveryRetries int

	// RetryDelay is the pause between delivery attempts. Default 5s.
	RetryDelay time.Duration

	Logger *logging.Logger
}

// NewRunner creates a pipeline runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Gateway == nil || cfg.Generator == nil || cfg.Publisher == nil || cfg.Guard == nil {
		return nil, fmt.Errorf("pipeline requires gateway, generator, publisher, and guard")
	}
	if cfg.DeliveryRetries <= 0 {
		cfg.DeliveryRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	return &Runner{
		gateway:    cfg.Gateway,
		generator:  cfg.Generator,
		publisher:  cfg.Publisher,
		guard:      cfg.Guard,
		retries:    cfg.DeliveryRetries,
		retryDelay: cfg.RetryDelay,
		log:        log.WithComponent("pipeline"),
	}, nil
}

// Execute runs the pipeline for one assigned task and returns the result.
// It never retries generation: a model that failed to produce content
// for this prompt will fail again, and the spend is real.
func (r *Runner) Execute(ctx context.Context, task *ledger.Task) Result {
	r.log.PipelinePhase(task.ID, string(PhaseGenerating))
	content, err := r.generator.Generate(ctx, task)
	if err != nil {
		return r.fail(task.ID, err)
	}

	r.log.PipelinePhase(task.ID, string(PhasePublishing))
	name := fmt.Sprintf("task-%d-delivery.txt", task.ID)
	ref, err := r.publisher.Publish(ctx, name, []byte(content))
	if err != nil {
		return r.fail(task.ID, err)
	}

	r.log.PipelinePhase(task.ID, string(PhaseDelivering))
	if err := r.deliver(ctx, task.ID, ref); err != nil {
		return r.fail(task.ID, err)
	}

	r.log.Delivered(task.ID, ref)
	return Result{TaskID: task.ID, ContentRef: ref, Phase: PhaseDelivered}
}

// deliver submits the delivery transaction with bounded retries. The
// dedup guard makes the submission at-most-once across process restarts
// of the pipeline for the same task.
func (r *Runner) deliver(ctx context.Context, taskID uint64, ref string) error {
	if !r.guard.Absorb(track.DeliverKey(taskID)) {
		// A previous run already submitted for this task.
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= r.retries; attempt++ {
		tx, err := r.gateway.SubmitDelivery(ctx, taskID, ref)
		if err == nil {
			err = r.gateway.AwaitConfirmation(ctx, tx)
		}
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, ledger.ErrRevert) {
			// The chain will keep rejecting this write; one revert is final.
			return agenterrors.DeliveryFailed(taskID, attempt, err, agenterrors.WithRetryable(false))
		}
		if ctx.Err() != nil {
			return agenterrors.Wrap(ctx.Err(), "delivery interrupted")
		}

		if attempt < r.retries {
			r.log.Warn("delivery attempt failed, retrying", map[string]interface{}{
				"task_id": taskID,
				"attempt": attempt,
				"error":   err.Error(),
			})
			select {
			case <-ctx.Done():
				return agenterrors.Wrap(ctx.Err(), "delivery interrupted")
			case <-time.After(r.retryDelay):
			}
		}
	}
	return agenterrors.DeliveryFailed(taskID, r.retries, lastErr)
}

func (r *Runner) fail(taskID uint64, err error) Result {
	r.log.PipelineFailed(taskID, string(PhaseFailed), err)
	return Result{TaskID: taskID, Phase: PhaseFailed, Err: err}
}
