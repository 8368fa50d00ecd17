package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/flowwork/agent/ledger"
	"github.com/flowwork/agent/logging"
)

// Poller discovers tasks by watching the ledger's task counter. Every
// interval it reads the counter, fetches every task between its cursor
// and the counter, and re-reads a trailing window of recent ids to
// catch status changes whose push events were lost.
//
// The cursor only advances when every task in the batch was fetched.
// A partial batch is re-fetched next tick; the dedup guard downstream
// makes the replays harmless.
type Poller struct {
	gw       ledger.Gateway
	out      chan<- Record
	interval time.Duration
	window   uint64
	upper    uint64
	log      *logging.Logger

	cursor uint64
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Gateway  ledger.Gateway
	Out      chan<- Record
	Interval time.Duration
	// Window is how many recent ids below the counter are re-read each
	// tick. The newest id is excluded; it was either just fetched as
	// new or will be covered by the next tick's window.
	Window uint64
	// Upper bounds the binary search used when the ledger does not
	// expose a task counter.
	Upper uint64
	Log   *logging.Logger
}

// NewPoller builds a Poller. The cursor starts at the current counter,
// so tasks that existed before startup are not discovered as new; the
// drift window still picks up recent status changes.
func NewPoller(cfg PollerConfig) *Poller {
	log := cfg.Log
	if log == nil {
		log = logging.New()
	}
	return &Poller{
		gw:       cfg.Gateway,
		out:      cfg.Out,
		interval: cfg.Interval,
		window:   cfg.Window,
		upper:    cfg.Upper,
		log:      log.WithComponent("poller"),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if counter, err := p.counter(ctx); err == nil {
		p.cursor = counter
	} else {
		p.log.Warn("initial counter read failed", map[string]interface{}{"error": err.Error()})
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	counter, err := p.counter(ctx)
	if err != nil {
		p.log.Warn("counter read failed", map[string]interface{}{"error": err.Error()})
		return
	}
	var fetched int
	if counter > p.cursor {
		var complete bool
		fetched, complete = p.fetchRange(ctx, p.cursor+1, counter)
		if complete {
			p.cursor = counter
		}
	}
	p.log.PollTick(counter, p.cursor, fetched)
	p.drift(ctx, counter)
}

// fetchRange emits a snapshot for every id in [from, to]. It reports
// how many it emitted and whether the whole range was fetched; the
// cursor must not advance past an id we failed to read.
func (p *Poller) fetchRange(ctx context.Context, from, to uint64) (int, bool) {
	fetched := 0
	complete := true
	for id := from; id <= to; id++ {
		task, err := p.gw.GetTask(ctx, id)
		if err != nil {
			if errors.Is(err, ledger.ErrTaskNotFound) {
				// Counter moved ahead of a task we cannot see yet.
				complete = false
				continue
			}
			p.log.Warn("task fetch failed", map[string]interface{}{
				"task_id": id, "error": err.Error(),
			})
			complete = false
			continue
		}
		if !p.emit(ctx, SnapshotRecord{Task: task}) {
			return fetched, false
		}
		fetched++
	}
	return fetched, complete
}

// drift re-reads the window of ids just below the counter. The newest
// id is skipped.
func (p *Poller) drift(ctx context.Context, counter uint64) {
	if counter == 0 {
		return
	}
	start := uint64(1)
	if counter > p.window {
		start = counter - p.window
	}
	for id := start; id < counter; id++ {
		task, err := p.gw.GetTask(ctx, id)
		if err != nil {
			continue
		}
		if !p.emit(ctx, SnapshotRecord{Task: task}) {
			return
		}
	}
}

func (p *Poller) emit(ctx context.Context, rec Record) bool {
	select {
	case p.out <- rec:
		return true
	case <-ctx.Done():
		return false
	}
}

// counter reads the task counter, falling back to a binary search over
// GetTask when the ledger does not support it.
func (p *Poller) counter(ctx context.Context) (uint64, error) {
	counter, err := p.gw.GetTaskCounter(ctx)
	if err == nil {
		return counter, nil
	}
	if !errors.Is(err, ledger.ErrCounterUnsupported) {
		return 0, err
	}
	return p.searchHighest(ctx)
}

// searchHighest probes GetTask to find the highest existing task id.
// Task ids are allocated sequentially, so existence is monotone and a
// binary search over [0, upper] lands on the highest id in O(log n)
// probes.
func (p *Poller) searchHighest(ctx context.Context) (uint64, error) {
	var highest uint64
	low, high := uint64(1), p.upper
	for low <= high {
		mid := low + (high-low)/2
		_, err := p.gw.GetTask(ctx, mid)
		switch {
		case err == nil:
			highest = mid
			low = mid + 1
		case errors.Is(err, ledger.ErrTaskNotFound):
			high = mid - 1
		default:
			return 0, err
		}
	}
	return highest, nil
}
