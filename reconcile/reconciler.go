package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/flowwork/agent/bid"
	"github.com/flowwork/agent/executor"
	"github.com/flowwork/agent/ledger"
	"github.com/flowwork/agent/logging"
	"github.com/flowwork/agent/pipeline"
	"github.com/flowwork/agent/policy"
	"github.com/flowwork/agent/track"
)

// Archiver records completed deliveries for later search. Satisfied by
// *archive.Archive.
type Archiver interface {
	RecordTask(ctx context.Context, task *ledger.Task, proposal string, confidence int, price ledger.Amount, contentRef string) error
}

// Reconciler owns a task's lifecycle from discovery to terminal. It is
// the single consumer of the record channel and the only writer to the
// tracking store, so every tag transition happens in one goroutine.
// Slow work (analysis, bid submission, the execution pipeline) runs in
// spawned goroutines that report back as records.
type Reconciler struct {
	pol      *policy.Policy
	gw       ledger.Gateway
	store    *track.Store
	guard    *track.DedupGuard
	analyzer *executor.Analyzer
	bidder   *bid.Engine
	runner   *pipeline.Runner
	arch     Archiver
	log      *logging.Logger

	records chan Record
	poller  *Poller
	sub     *Subscriber

	// settle timers by task id, armed on assignment and cancelled when
	// a task goes terminal before execution starts.
	timers map[uint64]*time.Timer

	// tasks with a bid evaluation currently in flight. Loop goroutine
	// only; cleared when the BidResultRecord arrives.
	evaluating map[uint64]bool

	// proposal and confidence of our accepted bid, kept until the
	// delivery is archived. Loop goroutine only.
	bids map[uint64]bidMeta

	// done is closed when Run exits so fired timers stop waiting on
	// the record channel.
	done chan struct{}

	now func() time.Time
	wg  sync.WaitGroup
}

// Config wires a Reconciler.
type Config struct {
	Policy   *policy.Policy
	Gateway  ledger.Gateway
	Store    *track.Store
	Guard    *track.DedupGuard
	Analyzer *executor.Analyzer
	Bidder   *bid.Engine
	Runner   *pipeline.Runner
	Archive  Archiver
	Logger   *logging.Logger

	// Buffer sizes the record channel. Defaults to 256.
	Buffer int
}

// New builds a Reconciler. Store and Guard may be nil, in which case
// fresh ones are used.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Policy == nil {
		return nil, errors.New("reconcile: policy is required")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("reconcile: gateway is required")
	}
	if cfg.Bidder == nil {
		cfg.Bidder = bid.NewEngine(cfg.Policy)
	}
	if cfg.Store == nil {
		cfg.Store = track.NewStore()
	}
	if cfg.Guard == nil {
		cfg.Guard = track.NewDedupGuard()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}

	r := &Reconciler{
		pol:        cfg.Policy,
		gw:         cfg.Gateway,
		store:      cfg.Store,
		guard:      cfg.Guard,
		analyzer:   cfg.Analyzer,
		bidder:     cfg.Bidder,
		runner:     cfg.Runner,
		arch:       cfg.Archive,
		log:        cfg.Logger.WithComponent("reconciler"),
		records:    make(chan Record, cfg.Buffer),
		timers:     make(map[uint64]*time.Timer),
		evaluating: make(map[uint64]bool),
		bids:       make(map[uint64]bidMeta),
		done:       make(chan struct{}),
		now:        time.Now,
	}
	// Policies built by hand can skip Validate; a negative window must
	// not wrap into a near-infinite one.
	window := cfg.Policy.Engine.DriftWindow
	if window < 0 {
		window = 0
	}
	r.poller = NewPoller(PollerConfig{
		Gateway:  cfg.Gateway,
		Out:      r.records,
		Interval: cfg.Policy.Engine.PollInterval,
		Window:   uint64(window),
		Upper:    cfg.Policy.Engine.SearchUpperBound,
		Log:      cfg.Logger,
	})
	r.sub = NewSubscriber(cfg.Gateway, r.records, cfg.Logger)
	return r, nil
}

// SetNowFunc overrides the clock for tests.
func (r *Reconciler) SetNowFunc(now func() time.Time) { r.now = now }

// Store exposes the tracking store for inspection.
func (r *Reconciler) Store() *track.Store { return r.store }

// Run starts the subscriber and poller and consumes records until ctx
// is cancelled. It returns after in-flight spawned work has finished.
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.sub.Start(ctx); err != nil {
		return err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.poller.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return ctx.Err()
		case rec := <-r.records:
			r.handle(ctx, rec)
		}
	}
}

func (r *Reconciler) shutdown() {
	close(r.done)
	r.sub.Stop()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	r.wg.Wait()
}

// handle dispatches one record. Runs on the loop goroutine only.
func (r *Reconciler) handle(ctx context.Context, rec Record) {
	switch rec := rec.(type) {
	case TaskCreatedRecord:
		r.onTaskCreated(ctx, rec)
	case AssignedRecord:
		r.onAssigned(ctx, rec)
	case ApprovedRecord:
		r.onApproved(ctx, rec)
	case SnapshotRecord:
		r.onSnapshot(ctx, rec.Task)
	case ExecuteDueRecord:
		r.onExecuteDue(ctx, rec.TaskID)
	case BidResultRecord:
		r.onBidResult(rec)
	case PipelineResultRecord:
		r.onPipelineResult(rec.Result)
	}
}

func (r *Reconciler) onTaskCreated(ctx context.Context, rec TaskCreatedRecord) {
	if !r.guard.Absorb(track.EventKey(rec.EventID)) {
		return
	}
	task, err := r.gw.GetTask(ctx, rec.TaskID)
	if err != nil {
		// The poller will find it.
		r.log.Warn("created task fetch failed", map[string]interface{}{
			"task_id": rec.TaskID, "error": err.Error(),
		})
		return
	}
	r.observe(ctx, task, "event")
}

func (r *Reconciler) onAssigned(ctx context.Context, rec AssignedRecord) {
	if !r.guard.Absorb(track.EventKey(rec.EventID)) {
		return
	}
	task, err := r.gw.GetTask(ctx, rec.TaskID)
	if err != nil {
		r.log.Warn("assigned task fetch failed", map[string]interface{}{
			"task_id": rec.TaskID, "error": err.Error(),
		})
		return
	}
	r.observe(ctx, task, "event")
}

func (r *Reconciler) onApproved(ctx context.Context, rec ApprovedRecord) {
	if !r.guard.Absorb(track.EventKey(rec.EventID)) {
		return
	}
	if _, ok := r.store.TagOf(rec.TaskID); !ok {
		return
	}
	r.terminalize(rec.TaskID, "approved")
}

// onSnapshot handles a polled observation. The (task, status) pair is
// absorbed once; a second sighting of the same status is dropped.
func (r *Reconciler) onSnapshot(ctx context.Context, task *ledger.Task) {
	if !r.guard.Absorb(track.DriftKey(task.ID, task.Status)) {
		return
	}
	r.observe(ctx, task, "poll")
}

// observe folds a fresh task snapshot into the store and advances the
// lifecycle to match what the ledger says. Ledger state is truth; the
// local tag only ever moves forward to meet it.
func (r *Reconciler) observe(ctx context.Context, task *ledger.Task, source string) {
	if _, known := r.store.TagOf(task.ID); !known {
		if task.Status.IsTerminal() {
			return
		}
		r.store.Discover(task)
		r.log.TaskDiscovered(task.ID, source, task.Category.String(), task.Bounty.String())
	} else {
		if err := r.store.UpdateSnapshot(task); err != nil {
			return
		}
	}

	switch task.Status {
	case ledger.StatusOpen:
		r.maybeBid(ctx, task)
	case ledger.StatusAssigned:
		r.onAssignment(ctx, task)
	case ledger.StatusDelivered:
		if task.AssignedAgent == r.pol.Agent.Identity {
			r.advance(task.ID, track.TagDeliverySubmitted)
		} else {
			r.terminalize(task.ID, "delivered by another agent")
		}
	default:
		if task.Status.IsTerminal() {
			r.terminalize(task.ID, task.Status.String())
		}
	}
}

// onAssignment reacts to the ledger assigning the task. Assignment to
// us starts execution; assignment to anyone else ends interest.
func (r *Reconciler) onAssignment(ctx context.Context, task *ledger.Task) {
	if task.AssignedAgent != r.pol.Agent.Identity {
		r.terminalize(task.ID, "assigned to another agent")
		return
	}
	tag, ok := r.store.TagOf(task.ID)
	if !ok || tag >= track.TagAssignedToUs {
		return
	}
	if err := r.store.Advance(task.ID, track.TagAssignedToUs); err != nil {
		return
	}
	r.log.Assigned(task.ID)
	r.scheduleExecute(task.ID)
}

// maybeBid starts a bid evaluation for an open task. At most one
// evaluation is in flight per task, and a task whose bid key is spent
// is never evaluated again.
func (r *Reconciler) maybeBid(ctx context.Context, task *ledger.Task) {
	if !r.pol.Bidding.AutoBid {
		return
	}
	if tag, ok := r.store.TagOf(task.ID); !ok || tag != track.TagDiscovered {
		return
	}
	if r.evaluating[task.ID] || r.guard.Seen(track.BidKey(task.ID)) {
		return
	}
	r.evaluating[task.ID] = true
	snapshot := *task
	r.spawn(ctx, func(ctx context.Context) Record {
		return r.evaluateBid(ctx, &snapshot)
	})
}

// scheduleExecute arms the settle delay between assignment and the
// start of execution, absorbing ledger write-propagation latency. A
// task only gets one timer; the timer is cancelled if the task goes
// terminal before it fires.
func (r *Reconciler) scheduleExecute(id uint64) {
	if !r.pol.Bidding.AutoExecute || r.runner == nil {
		return
	}
	if _, armed := r.timers[id]; armed {
		return
	}
	r.timers[id] = time.AfterFunc(r.pol.Engine.SettleDelay, func() {
		select {
		case r.records <- ExecuteDueRecord{TaskID: id}:
		case <-r.done:
		}
	})
}

// onExecuteDue re-reads the task after the settle delay and, if it is
// still assigned to us, starts the execution pipeline off-loop.
func (r *Reconciler) onExecuteDue(ctx context.Context, id uint64) {
	r.cancelTimer(id)
	if tag, ok := r.store.TagOf(id); !ok || tag != track.TagAssignedToUs {
		return
	}
	task, err := r.gw.GetTask(ctx, id)
	if err != nil {
		r.log.Warn("settle re-read failed", map[string]interface{}{
			"task_id": id, "error": err.Error(),
		})
		return
	}
	if task.Status != ledger.StatusAssigned || task.AssignedAgent != r.pol.Agent.Identity {
		r.observe(ctx, task, "poll")
		return
	}
	if err := r.store.UpdateSnapshot(task); err != nil {
		return
	}
	if err := r.store.Advance(id, track.TagExecuting); err != nil {
		return
	}

	snapshot := *task
	r.spawn(ctx, func(ctx context.Context) Record {
		return PipelineResultRecord{Result: r.runner.Execute(ctx, &snapshot)}
	})
}

// evaluateBid runs off the loop goroutine. The bid key is absorbed
// before submission, so at most one bid transaction is ever attempted
// per task, across duplicated stimuli and restarts of the decision.
func (r *Reconciler) evaluateBid(ctx context.Context, task *ledger.Task) Record {
	var verdict executor.Verdict
	if r.analyzer != nil {
		verdict = r.analyzer.Analyze(ctx, task)
	}
	decision := r.bidder.Decide(task, verdict, r.now())
	if !decision.Bid {
		return BidResultRecord{TaskID: task.ID, SkipReason: decision.Reason}
	}
	if !r.guard.Absorb(track.BidKey(task.ID)) {
		return BidResultRecord{TaskID: task.ID, SkipReason: "bid already attempted"}
	}

	tx, err := r.gw.SubmitBid(ctx, task.ID, decision.Price, decision.Proposal, decision.EstimatedTime)
	if err == nil {
		err = r.gw.AwaitConfirmation(ctx, tx)
	}
	if err != nil {
		return BidResultRecord{TaskID: task.ID, Err: err}
	}
	return BidResultRecord{
		TaskID:     task.ID,
		Placed:     true,
		Price:      decision.Price,
		Proposal:   decision.Proposal,
		Confidence: verdict.Confidence,
	}
}

type bidMeta struct {
	proposal   string
	confidence int
}

func (r *Reconciler) onBidResult(rec BidResultRecord) {
	delete(r.evaluating, rec.TaskID)
	switch {
	case rec.Placed:
		if err := r.store.Advance(rec.TaskID, track.TagBidSubmitted); err != nil {
			return
		}
		r.store.SetBidPrice(rec.TaskID, rec.Price)
		r.bids[rec.TaskID] = bidMeta{proposal: rec.Proposal, confidence: rec.Confidence}
		r.log.BidPlaced(rec.TaskID, rec.Price.String(), rec.Confidence)
	case rec.Err != nil:
		// The bid key is spent, so the task is never bid on again. It
		// stays tracked at Discovered until drift shows it moved on.
		r.log.Warn("bid submission failed", map[string]interface{}{
			"task_id": rec.TaskID, "error": rec.Err.Error(),
		})
	default:
		r.log.PolicyRejected(rec.TaskID, rec.SkipReason)
		r.terminalize(rec.TaskID, "skipped")
	}
}

func (r *Reconciler) onPipelineResult(res pipeline.Result) {
	if res.Err != nil {
		r.terminalize(res.TaskID, "pipeline failed")
		return
	}
	if err := r.store.Advance(res.TaskID, track.TagDeliverySubmitted); err != nil {
		return
	}
	r.store.SetContentRef(res.TaskID, res.ContentRef)
	r.log.Delivered(res.TaskID, res.ContentRef)
	r.archiveDelivery(res.TaskID, res.ContentRef)
}

func (r *Reconciler) archiveDelivery(id uint64, contentRef string) {
	if r.arch == nil {
		return
	}
	tracked, ok := r.store.Get(id)
	if !ok {
		return
	}
	meta := r.bids[id]
	delete(r.bids, id)
	err := r.arch.RecordTask(context.Background(), &tracked.Task, meta.proposal, meta.confidence, tracked.BidPrice, contentRef)
	if err != nil {
		r.log.Warn("delivery archive failed", map[string]interface{}{
			"task_id": id, "error": err.Error(),
		})
	}
}

func (r *Reconciler) advance(id uint64, next track.Tag) {
	if err := r.store.Advance(id, next); err != nil {
		r.log.Warn("tag advance rejected", map[string]interface{}{
			"task_id": id, "next": next.String(), "error": err.Error(),
		})
	}
}

func (r *Reconciler) terminalize(id uint64, reason string) {
	tag, ok := r.store.TagOf(id)
	if !ok || tag == track.TagTerminal {
		return
	}
	if err := r.store.Advance(id, track.TagTerminal); err != nil {
		return
	}
	r.cancelTimer(id)
	delete(r.bids, id)
	r.log.Terminal(id, reason)
}

func (r *Reconciler) cancelTimer(id uint64) {
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
}

// spawn runs fn off-loop and feeds its record back to the loop.
func (r *Reconciler) spawn(ctx context.Context, fn func(context.Context) Record) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		rec := fn(ctx)
		select {
		case r.records <- rec:
		case <-ctx.Done():
		}
	}()
}
