package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Amount is a fixed-point USDC amount in base units (6 decimals).
// All marketplace bounties and bid prices use this representation;
// arithmetic is integer-only so bid pricing is deterministic.
type Amount int64

// AmountDecimals is the number of decimal places in an Amount.
const AmountDecimals = 6

const amountUnit = 1_000_000

// String formats the amount as a decimal dollar string, e.g. "19.000000".
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%06d", sign, v/amountUnit, v%amountUnit)
}

// MulFrac returns a*num/den using integer arithmetic, rounding toward zero.
func (a Amount) MulFrac(num, den int64) Amount {
	return Amount(int64(a) * num / den)
}

// ParseAmount parses a decimal dollar string ("0.01", "20") into an Amount.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	var f int64
	if frac != "" {
		if len(frac) > AmountDecimals {
			frac = frac[:AmountDecimals]
		}
		for len(frac) < AmountDecimals {
			frac += "0"
		}
		f, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
	}
	v := w*amountUnit + f
	if neg {
		v = -v
	}
	return Amount(v), nil
}

// TaskStatus is the marketplace's own status for a task. The contract
// enum order is part of the wire format and must not change.
type TaskStatus uint8

const (
	StatusOpen TaskStatus = iota
	StatusAssigned
	StatusDelivered
	StatusApproved
	StatusDisputed
	StatusCancelled
)

// String returns the status name.
func (s TaskStatus) String() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusAssigned:
		return "Assigned"
	case StatusDelivered:
		return "Delivered"
	case StatusApproved:
		return "Approved"
	case StatusDisputed:
		return "Disputed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("TaskStatus(%d)", uint8(s))
	}
}

// IsTerminal returns true once the marketplace will not change the task again.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusDisputed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Category is the marketplace's closed set of task categories.
// The contract enum order is part of the wire format.
type Category uint8

const (
	CategoryCopywriting Category = iota
	CategoryCodeReview
	CategoryDataAnalysis
	CategoryImagePrompts
	CategoryResearch
	CategoryTranslation
	CategorySocialMedia
	CategoryFinancial
	CategoryLegal
	CategoryOther
)

var categoryNames = [...]string{
	"Copywriting",
	"Code Review",
	"Data Analysis",
	"Image Prompts",
	"Research",
	"Translation",
	"Social Media",
	"Financial",
	"Legal",
	"Other",
}

// String returns the category name.
func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "Unknown"
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return int(c) < len(categoryNames)
}

// Task is the ledger-owned snapshot of a marketplace task. Task ids are
// assigned by the contract: positive, monotonically increasing, never
// reused. The engine only ever holds a read-only cached copy.
type Task struct {
	ID             uint64     `json:"task_id"`
	Client         string     `json:"client"`
	AssignedAgent  string     `json:"assigned_agent"` // empty until assignment
	Description    string     `json:"description"`
	DeliveryFormat string     `json:"delivery_format"`
	Category       Category   `json:"category"`
	Bounty         Amount     `json:"bounty"`
	Deadline       time.Time  `json:"deadline"`
	Status         TaskStatus `json:"status"`
	ContentRef     string     `json:"content_ref"` // empty until delivered
	BidCount       int        `json:"bid_count"`
}

// Clone returns a copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	return &c
}

// Expired reports whether the task deadline has lapsed at the given time.
func (t *Task) Expired(now time.Time) bool {
	return !t.Deadline.IsZero() && now.After(t.Deadline)
}

// Bid is a single agent's offer on an open task.
type Bid struct {
	Agent         string        `json:"agent"`
	Price         Amount        `json:"price"`
	Proposal      string        `json:"proposal"`
	EstimatedTime time.Duration `json:"estimated_time"`
	SubmittedAt   time.Time     `json:"submitted_at"`
}
