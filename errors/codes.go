package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: RPC timeouts, event transport hiccups, ledger node overload.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: task not found, policy rejection, bid on a closed task.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates resource exhaustion or quota issues.
	// Examples: LLM rate limiting, publish quota exceeded.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors or invariant violations.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for common failure scenarios.
const (
	// Transient errors
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Operation timed out
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Ledger or collaborator temporarily unavailable
	ErrCodeNetworkErr  ErrorCode = "NETWORK_ERR" // Network connectivity issue

	// Permanent errors
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"     // Task or resource does not exist
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT" // Malformed record or payload
	ErrCodePrecondition ErrorCode = "PRECONDITION"  // State precondition not met
	ErrCodeCanceled     ErrorCode = "CANCELED"      // Operation was canceled

	// Marketplace errors
	ErrCodeLedgerRevert     ErrorCode = "LEDGER_REVERT"     // Ledger rejected the write
	ErrCodeTaskExpired      ErrorCode = "TASK_EXPIRED"      // Deadline lapsed before submission
	ErrCodePolicyRejected   ErrorCode = "POLICY_REJECTED"   // Task fails the agent's bid policy
	ErrCodeGenerationFailed ErrorCode = "GENERATION_FAILED" // Content generation failed
	ErrCodePublishFailed    ErrorCode = "PUBLISH_FAILED"    // Content publish failed
	ErrCodeDeliveryFailed   ErrorCode = "DELIVERY_FAILED"   // Delivery submission exhausted retries

	// Resource errors
	ErrCodeRateLimit     ErrorCode = "RATE_LIMITED"   // Rate limit exceeded
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED" // Collaborator quota exhausted

	// Internal errors
	ErrCodeInternal  ErrorCode = "INTERNAL"  // Unexpected internal error
	ErrCodeAssertion ErrorCode = "ASSERTION" // Invariant violation
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeUnavailable, ErrCodeNetworkErr:
		return CategoryTransient

	case ErrCodeNotFound, ErrCodeInvalidInput, ErrCodePrecondition, ErrCodeCanceled,
		ErrCodeLedgerRevert, ErrCodeTaskExpired, ErrCodePolicyRejected,
		ErrCodeGenerationFailed, ErrCodeDeliveryFailed:
		return CategoryPermanent

	// Publish failure is usually a misconfigured or saturated pinning
	// endpoint; the delivery step may retry it.
	case ErrCodePublishFailed:
		return CategoryTransient

	case ErrCodeRateLimit, ErrCodeQuotaExceeded:
		return CategoryResource

	case ErrCodeInternal, ErrCodeAssertion:
		return CategoryInternal

	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
func (c ErrorCode) DefaultRetryable() bool {
	return c.DefaultCategory().IsRetryable()
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:          "operation timed out",
	ErrCodeUnavailable:      "service temporarily unavailable",
	ErrCodeNetworkErr:       "network connectivity error",
	ErrCodeNotFound:         "resource not found",
	ErrCodeInvalidInput:     "invalid input provided",
	ErrCodePrecondition:     "precondition failed",
	ErrCodeCanceled:         "operation canceled",
	ErrCodeLedgerRevert:     "ledger rejected the transaction",
	ErrCodeTaskExpired:      "task deadline lapsed",
	ErrCodePolicyRejected:   "task rejected by agent policy",
	ErrCodeGenerationFailed: "content generation failed",
	ErrCodePublishFailed:    "content publish failed",
	ErrCodeDeliveryFailed:   "delivery submission failed",
	ErrCodeRateLimit:        "rate limit exceeded",
	ErrCodeQuotaExceeded:    "quota exhausted",
	ErrCodeInternal:         "internal error",
	ErrCodeAssertion:        "invariant violation",
}

// Description returns a human-readable description for the code.
func (c ErrorCode) Description() string {
	if d, ok := codeDescriptions[c]; ok {
		return d
	}
	return string(c)
}
