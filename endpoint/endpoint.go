package endpoint

import (
	"time"

	"github.com/storefront-kit/webhooks/id"
	"github.com/storefront-kit/webhooks/internal/entity"
)

// Endpoint is a webhook delivery target: one business event type routed to
// one HTTPS URL with its own retry policy and signing secret.
type Endpoint struct {
	entity.Entity

	// ID is the unique TypeID for this endpoint.
	ID id.ID `json:"id"`

	// Name is a short operator-facing identifier, e.g. "erp-orders".
	Name string `json:"name"`

	// Description is a human-readable description of this endpoint.
	Description string `json:"description,omitempty"`

	// EventType is the single business event type this endpoint subscribes
	// to, e.g. "order.created". Must be a catalog-registered type.
	EventType string `json:"event_type"`

	// URL is the delivery target. Must be an absolute HTTPS URL; validated
	// at creation time.
	URL string `json:"url"`

	// Secret is the HMAC signing secret for this endpoint. Never serialized.
	Secret string `json:"-"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// RetryPolicy governs backoff for failed deliveries from this endpoint.
	RetryPolicy RetryPolicy `json:"retry_policy"`

	// Active gates future enqueuing only. Toggling it never mutates
	// already-queued delivery records.
	Active bool `json:"active"`

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit,omitempty"`
}

// RetryPolicy describes exponential backoff between delivery attempts.
type RetryPolicy struct {
	// MaxAttempts is the total number of delivery attempts before a record
	// is marked failed. Must be at least 1.
	MaxAttempts int `json:"max_attempts"`

	// BaseDelay is the delay after the first failed attempt.
	BaseDelay time.Duration `json:"base_delay"`

	// Multiplier scales the delay per subsequent attempt. Must be >= 1.
	Multiplier float64 `json:"multiplier"`

	// MaxDelay caps the computed delay regardless of attempt count.
	MaxDelay time.Duration `json:"max_delay"`
}

// Validate reports whether the policy parameters are usable.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return &ValidationError{Field: "retry_policy.max_attempts", Message: "must be at least 1"}
	}
	if p.BaseDelay <= 0 {
		return &ValidationError{Field: "retry_policy.base_delay", Message: "must be positive"}
	}
	if p.Multiplier < 1 {
		return &ValidationError{Field: "retry_policy.multiplier", Message: "must be at least 1"}
	}
	if p.MaxDelay < p.BaseDelay {
		return &ValidationError{Field: "retry_policy.max_delay", Message: "must not be below base_delay"}
	}
	return nil
}

// ListOpts configures filtering and pagination for endpoint listing.
type ListOpts struct {
	Offset    int
	Limit     int
	EventType string
	Active    *bool
}

// ValidationError indicates invalid endpoint input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "endpoint validation: " + e.Field + ": " + e.Message
}
