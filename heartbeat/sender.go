package heartbeat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowwork/agent/bus"
	"github.com/flowwork/agent/logging"
	"github.com/flowwork/agent/track"
)

// Sender publishes heartbeats on bus.SubjectHeartbeat at a fixed
// interval. The active task count is read from the tracking store at
// send time, so heartbeats reflect current load without anyone pushing
// updates into the sender.
type Sender struct {
	bus      bus.MessageBus
	agent    string
	store    *track.Store
	interval time.Duration
	log      *logging.Logger

	mu       sync.RWMutex
	metadata map[string]string

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// SenderConfig configures a Sender.
type SenderConfig struct {
	// Bus is the message bus for publishing heartbeats.
	Bus bus.MessageBus

	// Agent is the on-ledger identity announced in heartbeats.
	Agent string

	// Store is consulted for the active task count. Optional; without
	// it heartbeats always report zero active tasks.
	Store *track.Store

	// Interval between heartbeats. Default: 5 seconds.
	Interval time.Duration

	// Logger for publish failures. Optional.
	Logger *logging.Logger
}

// Validate checks the configuration.
func (c *SenderConfig) Validate() error {
	if c.Bus == nil {
		return ErrInvalidConfig
	}
	if c.Agent == "" {
		return ErrInvalidConfig
	}
	return nil
}

// NewSender creates a heartbeat sender.
func NewSender(cfg SenderConfig) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	return &Sender{
		bus:      cfg.Bus,
		agent:    cfg.Agent,
		store:    cfg.Store,
		interval: interval,
		log:      log.WithComponent("heartbeat"),
		metadata: make(map[string]string),
	}, nil
}

// Start begins sending heartbeats at the configured interval.
func (s *Sender) Start(ctx context.Context) error {
	if s.running.Swap(true) {
		return ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.run(ctx)
	return nil
}

func (s *Sender) run(ctx context.Context) {
	defer close(s.doneCh)

	// Announce presence immediately
	s.sendLogged()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.running.Store(false)
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sendLogged()
		}
	}
}

// sendLogged sends one heartbeat; a failed publish is logged and the
// next tick tries again.
func (s *Sender) sendLogged() {
	if err := s.send(); err != nil {
		s.log.Warn("heartbeat publish failed", map[string]interface{}{
			"agent": s.agent, "error": err.Error(),
		})
	}
}

func (s *Sender) send() error {
	hb := s.build()
	data, err := hb.Marshal()
	if err != nil {
		return err
	}
	return s.bus.Publish(bus.SubjectHeartbeat, data)
}

func (s *Sender) build() *Heartbeat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := 0
	if s.store != nil {
		active = len(s.store.Active())
	}
	status := StatusIdle
	if active > 0 {
		status = StatusWorking
	}

	hb := &Heartbeat{
		Agent:       s.agent,
		Timestamp:   time.Now(),
		Status:      status,
		ActiveTasks: active,
	}
	if len(s.metadata) > 0 {
		hb.Metadata = make(map[string]string, len(s.metadata))
		for k, v := range s.metadata {
			hb.Metadata[k] = v
		}
	}
	return hb
}

// SetMetadata updates a metadata field included in future heartbeats.
func (s *Sender) SetMetadata(key, value string) {
	s.mu.Lock()
	s.metadata[key] = value
	s.mu.Unlock()
}

// Stop stops sending heartbeats.
func (s *Sender) Stop() error {
	if !s.running.Swap(false) {
		return ErrNotStarted
	}
	close(s.stopCh)
	<-s.doneCh
	return nil
}

// Agent returns the sender's identity.
func (s *Sender) Agent() string {
	return s.agent
}
