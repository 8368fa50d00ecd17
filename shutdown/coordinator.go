package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/flowwork/agent/logging"
)

// Coordinator runs registered hooks stage by stage when shutdown is
// triggered, by signal or by an explicit call. A hook failure is
// logged and recorded but does not stop later stages; a half-torn-down
// agent is worse than one that pushed through.
type Coordinator struct {
	timeout time.Duration
	log     *logging.Logger

	mu    sync.Mutex
	hooks []registration

	once       sync.Once
	done       chan struct{}
	err        error
	results    []HookResult
	signalChan chan os.Signal
}

type registration struct {
	name  string
	stage int
	hook  Hook
}

// NewCoordinator creates a coordinator. timeout bounds the whole
// shutdown; zero means 30 seconds.
func NewCoordinator(timeout time.Duration, log *logging.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logging.New()
	}
	return &Coordinator{
		timeout:    timeout,
		log:        log.WithComponent("shutdown"),
		done:       make(chan struct{}),
		signalChan: make(chan os.Signal, 1),
	}
}

// Register adds a hook at the given stage.
func (c *Coordinator) Register(name string, stage int, hook Hook) {
	c.mu.Lock()
	c.hooks = append(c.hooks, registration{name: name, stage: stage, hook: hook})
	c.mu.Unlock()
}

// HandleSignals arranges for SIGTERM and SIGINT to trigger shutdown.
func (c *Coordinator) HandleSignals() {
	signal.Notify(c.signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-c.signalChan
		c.Shutdown()
	}()
}

// Trigger initiates shutdown as if a signal had arrived.
func (c *Coordinator) Trigger() {
	select {
	case c.signalChan <- syscall.SIGTERM:
	default:
	}
}

// Shutdown runs all hooks in stage order. The first call does the
// work; later calls return ErrAlreadyShutdown until it completes, then
// the recorded error.
func (c *Coordinator) Shutdown() error {
	first := false
	c.once.Do(func() {
		first = true
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		c.err = c.run(ctx)
		close(c.done)
	})
	if first {
		return c.err
	}
	select {
	case <-c.done:
		return c.err
	default:
		return ErrAlreadyShutdown
	}
}

// Done is closed when shutdown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the shutdown error, valid once Done is closed.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Results returns per-hook outcomes, valid once Done is closed.
func (c *Coordinator) Results() []HookResult {
	select {
	case <-c.done:
		return c.results
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) error {
	c.mu.Lock()
	hooks := make([]registration, len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].stage < hooks[j].stage
	})

	var overall error
	for _, stage := range groupByStage(hooks) {
		select {
		case <-ctx.Done():
			c.log.Error("shutdown timed out", map[string]interface{}{
				"stage": stage[0].stage,
			})
			return ErrTimeout
		default:
		}

		for _, res := range c.runStage(ctx, stage) {
			c.results = append(c.results, res)
			if res.Err != nil {
				overall = ErrHookFailed
				c.log.Error("shutdown hook failed", map[string]interface{}{
					"hook": res.Name, "stage": res.Stage, "error": res.Err.Error(),
				})
			} else {
				c.log.Debug("shutdown hook done", map[string]interface{}{
					"hook": res.Name, "stage": res.Stage, "duration": res.Duration.String(),
				})
			}
		}
	}
	return overall
}

// runStage runs one stage's hooks concurrently and waits for them all.
func (c *Coordinator) runStage(ctx context.Context, hooks []registration) []HookResult {
	results := make([]HookResult, len(hooks))
	var wg sync.WaitGroup
	for i, reg := range hooks {
		wg.Add(1)
		go func(idx int, reg registration) {
			defer wg.Done()
			start := time.Now()
			err := reg.hook(ctx)
			results[idx] = HookResult{
				Name:     reg.name,
				Stage:    reg.stage,
				Duration: time.Since(start),
				Err:      err,
			}
		}(i, reg)
	}
	wg.Wait()
	return results
}

func groupByStage(hooks []registration) [][]registration {
	if len(hooks) == 0 {
		return nil
	}
	var groups [][]registration
	var current []registration
	stage := hooks[0].stage
	for _, h := range hooks {
		if h.stage != stage {
			groups = append(groups, current)
			current = nil
			stage = h.stage
		}
		current = append(current, h)
	}
	return append(groups, current)
}
