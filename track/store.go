package track

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowwork/agent/ledger"
)

// Common errors.
var (
	// ErrUnknownTask means the task id has never been tracked.
	ErrUnknownTask = errors.New("task not tracked")

	// ErrBackwardTag means a transition would move a tag backward.
	ErrBackwardTag = errors.New("tag transition not forward")
)

// Tracked is the engine's record of one task: the latest ledger snapshot
// it has seen plus the lifecycle tag. Readers get copies; the reconciler
// goroutine is the only writer.
type Tracked struct {
	Task         ledger.Task
	Tag          Tag
	DiscoveredAt time.Time
	UpdatedAt    time.Time

	// BidPrice and ContentRef record what this agent actually sent, which
	// the ledger snapshot alone does not carry until assignment/delivery.
	BidPrice   ledger.Amount
	ContentRef string
}

// Store holds all tracked tasks for the engine's lifetime. It never
// evicts: terminal tasks stay so late duplicate stimuli keep resolving
// against them.
type Store struct {
	mu    sync.RWMutex
	tasks map[uint64]*Tracked
	now   func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tasks: make(map[uint64]*Tracked),
		now:   time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Discover registers a task at TagDiscovered. Returns false if the id is
// already tracked, in which case nothing changes.
func (s *Store) Discover(task *ledger.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return false
	}
	now := s.now()
	s.tasks[task.ID] = &Tracked{
		Task:         *task.Clone(),
		Tag:          TagDiscovered,
		DiscoveredAt: now,
		UpdatedAt:    now,
	}
	return true
}

// Get returns a copy of the tracked record.
func (s *Store) Get(id uint64) (Tracked, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tasks[id]
	if !ok {
		return Tracked{}, false
	}
	return *rec, true
}

// TagOf returns the current lifecycle tag for the task.
func (s *Store) TagOf(id uint64) (Tag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tasks[id]
	if !ok {
		return 0, false
	}
	return rec.Tag, true
}

// Advance moves the task's tag forward. Advancing to the current tag is
// an idempotent no-op; moving backward is an error. The decision whether
// a stimulus still applies is made against the tag the task holds now,
// never against whether the stimulus was seen before.
func (s *Store) Advance(id uint64, next Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTask, id)
	}
	if next == rec.Tag {
		return nil
	}
	if !rec.Tag.CanAdvanceTo(next) {
		return fmt.Errorf("%w: %s -> %s on task %d", ErrBackwardTag, rec.Tag, next, id)
	}
	rec.Tag = next
	rec.UpdatedAt = s.now()
	return nil
}

// UpdateSnapshot replaces the stored ledger snapshot for the task. The
// tag is untouched; lifecycle movement goes through Advance.
func (s *Store) UpdateSnapshot(task *ledger.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[task.ID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTask, task.ID)
	}
	rec.Task = *task.Clone()
	rec.UpdatedAt = s.now()
	return nil
}

// SetBidPrice records the price this agent bid.
func (s *Store) SetBidPrice(id uint64, price ledger.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTask, id)
	}
	rec.BidPrice = price
	return nil
}

// SetContentRef records the content reference this agent delivered.
func (s *Store) SetContentRef(id uint64, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTask, id)
	}
	rec.ContentRef = ref
	return nil
}

// Active returns copies of all non-terminal records, ordered by task id.
// This is the poller's working set for status drift checks.
func (s *Store) Active() []Tracked {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tracked, 0, len(s.tasks))
	for _, rec := range s.tasks {
		if rec.Tag != TagTerminal {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Task.ID < out[j].Task.ID })
	return out
}

// Len returns the number of tracked tasks, terminal included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
