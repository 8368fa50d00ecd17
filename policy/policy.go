// Package policy loads the agent's operating policy from TOML.
//
// The policy is the human-owned half of the bid decision: which
// categories to work, bounty bounds, the confidence floor, and the
// engine's timing knobs. Everything the decision engine consults at
// runtime comes from here so that a task evaluated twice under the same
// policy always gets the same verdict.
package policy

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/flowwork/agent/ledger"
)

// Policy is the full agent configuration.
type Policy struct {
	Agent   AgentPolicy
	Bidding BiddingPolicy
	Engine  EnginePolicy
	Bus     BusPolicy
	Gateway GatewayPolicy
}

// AgentPolicy identifies the agent.
type AgentPolicy struct {
	// Identity is the marketplace identity writes are signed as.
	Identity string

	// Model selects the LLM used for analysis and generation,
	// e.g. "claude-sonnet-4-5", "gpt-4o", "gemini-2.0-flash".
	Model string
}

// BiddingPolicy bounds which tasks the agent will bid on.
type BiddingPolicy struct {
	// MinBounty and MaxBounty bound acceptable bounties, inclusive.
	MinBounty ledger.Amount
	MaxBounty ledger.Amount

	// MinConfidence is the floor on the analyzer's confidence (0..100).
	MinConfidence int

	// Categories restricts bidding to the named categories.
	// Empty means all categories are eligible.
	Categories []ledger.Category

	// AutoBid and AutoExecute gate the two side-effecting stages.
	// With AutoBid off the engine only observes; with AutoExecute off
	// it bids but never runs the pipeline on assignment.
	AutoBid     bool
	AutoExecute bool
}

// EnginePolicy holds the reconciliation engine's timing and bounds.
type EnginePolicy struct {
	// PollInterval is the gap between polling cycles.
	PollInterval time.Duration

	// SettleDelay is the pause between winning an assignment and the
	// start of execution, absorbing ledger write-propagation latency.
	SettleDelay time.Duration

	// DeliveryRetries bounds delivery attempts per task.
	DeliveryRetries int

	// DriftWindow is how many recent task ids (newest excluded) are
	// re-checked each poll for missed-event drift.
	DriftWindow int

	// SearchUpperBound caps the binary search for the highest task id
	// when the counter read is unsupported.
	SearchUpperBound uint64
}

// BusPolicy selects and configures the message bus.
type BusPolicy struct {
	// Kind is "memory" or "nats".
	Kind string

	// URL is the NATS server address when Kind is "nats".
	URL string
}

// GatewayPolicy selects the ledger gateway.
type GatewayPolicy struct {
	// Kind is "memory" or "bridge".
	Kind string

	// RequestTimeout bounds each bridge RPC round trip.
	RequestTimeout time.Duration
}

// Default returns the policy used when a field is absent from the file.
func Default() *Policy {
	return &Policy{
		Bidding: BiddingPolicy{
			MinBounty:     10_000,      // $0.01
			MaxBounty:     100_000_000, // $100
			MinConfidence: 60,
			AutoBid:       true,
			AutoExecute:   true,
		},
		Engine: EnginePolicy{
			PollInterval:     30 * time.Second,
			SettleDelay:      5 * time.Second,
			DeliveryRetries:  3,
			DriftWindow:      10,
			SearchUpperBound: 10_000,
		},
		Bus:     BusPolicy{Kind: "memory"},
		Gateway: GatewayPolicy{Kind: "memory", RequestTimeout: 15 * time.Second},
	}
}

// tomlPolicy is the TOML representation. Amounts and durations are
// strings ("0.01", "30s") so the file stays readable.
type tomlPolicy struct {
	Agent struct {
		Identity string `toml:"identity"`
		Model    string `toml:"model"`
	} `toml:"agent"`
	Bidding struct {
		MinBounty     string   `toml:"min_bounty"`
		MaxBounty     string   `toml:"max_bounty"`
		MinConfidence *int     `toml:"min_confidence"`
		Categories    []string `toml:"categories"`
		AutoBid       *bool    `toml:"auto_bid"`
		AutoExecute   *bool    `toml:"auto_execute"`
	} `toml:"bidding"`
	Engine struct {
		PollInterval     string  `toml:"poll_interval"`
		SettleDelay      string  `toml:"settle_delay"`
		DeliveryRetries  *int    `toml:"delivery_retries"`
		DriftWindow      *int    `toml:"drift_window"`
		SearchUpperBound *uint64 `toml:"search_upper_bound"`
	} `toml:"engine"`
	Bus struct {
		Kind string `toml:"kind"`
		URL  string `toml:"url"`
	} `toml:"bus"`
	Gateway struct {
		Kind           string `toml:"kind"`
		RequestTimeout string `toml:"request_timeout"`
	} `toml:"gateway"`
}

// LoadFile loads a policy from a TOML file.
func LoadFile(path string) (*Policy, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return Parse(string(content))
}

// Parse parses a policy from TOML content, filling defaults for absent
// fields and validating the result.
func Parse(content string) (*Policy, error) {
	var raw tomlPolicy
	if _, err := toml.Decode(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	pol := Default()
	pol.Agent.Identity = raw.Agent.Identity
	pol.Agent.Model = raw.Agent.Model

	if raw.Bidding.MinBounty != "" {
		a, err := ledger.ParseAmount(raw.Bidding.MinBounty)
		if err != nil {
			return nil, fmt.Errorf("bidding.min_bounty: %w", err)
		}
		pol.Bidding.MinBounty = a
	}
	if raw.Bidding.MaxBounty != "" {
		a, err := ledger.ParseAmount(raw.Bidding.MaxBounty)
		if err != nil {
			return nil, fmt.Errorf("bidding.max_bounty: %w", err)
		}
		pol.Bidding.MaxBounty = a
	}
	if raw.Bidding.MinConfidence != nil {
		pol.Bidding.MinConfidence = *raw.Bidding.MinConfidence
	}
	if raw.Bidding.AutoBid != nil {
		pol.Bidding.AutoBid = *raw.Bidding.AutoBid
	}
	if raw.Bidding.AutoExecute != nil {
		pol.Bidding.AutoExecute = *raw.Bidding.AutoExecute
	}
	for _, name := range raw.Bidding.Categories {
		c, ok := categoryByName(name)
		if !ok {
			return nil, fmt.Errorf("bidding.categories: unknown category %q", name)
		}
		pol.Bidding.Categories = append(pol.Bidding.Categories, c)
	}

	if err := parseDuration(raw.Engine.PollInterval, &pol.Engine.PollInterval, "engine.poll_interval"); err != nil {
		return nil, err
	}
	if err := parseDuration(raw.Engine.SettleDelay, &pol.Engine.SettleDelay, "engine.settle_delay"); err != nil {
		return nil, err
	}
	if raw.Engine.DeliveryRetries != nil {
		pol.Engine.DeliveryRetries = *raw.Engine.DeliveryRetries
	}
	if raw.Engine.DriftWindow != nil {
		pol.Engine.DriftWindow = *raw.Engine.DriftWindow
	}
	if raw.Engine.SearchUpperBound != nil {
		pol.Engine.SearchUpperBound = *raw.Engine.SearchUpperBound
	}

	if raw.Bus.Kind != "" {
		pol.Bus.Kind = raw.Bus.Kind
	}
	pol.Bus.URL = raw.Bus.URL
	if raw.Gateway.Kind != "" {
		pol.Gateway.Kind = raw.Gateway.Kind
	}
	if err := parseDuration(raw.Gateway.RequestTimeout, &pol.Gateway.RequestTimeout, "gateway.request_timeout"); err != nil {
		return nil, err
	}

	if err := pol.Validate(); err != nil {
		return nil, err
	}
	return pol, nil
}

func parseDuration(s string, dst *time.Duration, field string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

func categoryByName(name string) (ledger.Category, bool) {
	for c := ledger.CategoryCopywriting; c <= ledger.CategoryOther; c++ {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

// Validate checks internal consistency.
func (p *Policy) Validate() error {
	if p.Bidding.MinBounty < 0 {
		return fmt.Errorf("bidding.min_bounty must not be negative")
	}
	if p.Bidding.MaxBounty < p.Bidding.MinBounty {
		return fmt.Errorf("bidding.max_bounty below min_bounty")
	}
	if p.Bidding.MinConfidence < 0 || p.Bidding.MinConfidence > 100 {
		return fmt.Errorf("bidding.min_confidence must be 0..100")
	}
	if p.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be positive")
	}
	if p.Engine.SettleDelay < 0 {
		return fmt.Errorf("engine.settle_delay must not be negative")
	}
	if p.Engine.DeliveryRetries < 1 {
		return fmt.Errorf("engine.delivery_retries must be at least 1")
	}
	if p.Engine.DriftWindow < 0 {
		return fmt.Errorf("engine.drift_window must not be negative")
	}
	if p.Engine.SearchUpperBound == 0 {
		return fmt.Errorf("engine.search_upper_bound must be positive")
	}
	switch p.Bus.Kind {
	case "memory", "nats":
	default:
		return fmt.Errorf("bus.kind must be memory or nats, got %q", p.Bus.Kind)
	}
	switch p.Gateway.Kind {
	case "memory", "bridge":
	default:
		return fmt.Errorf("gateway.kind must be memory or bridge, got %q", p.Gateway.Kind)
	}
	return nil
}

// CategoryAllowed reports whether the policy permits bidding on c.
func (p *Policy) CategoryAllowed(c ledger.Category) bool {
	if len(p.Bidding.Categories) == 0 {
		return true
	}
	for _, allowed := range p.Bidding.Categories {
		if allowed == c {
			return true
		}
	}
	return false
}
