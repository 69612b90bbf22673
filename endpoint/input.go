package endpoint

import "time"

// Input is the creation payload for endpoints.
type Input struct {
	// Name is a short operator-facing identifier.
	Name string `json:"name"`

	// Description is a human-readable description.
	Description string `json:"description,omitempty"`

	// EventType is the business event type to subscribe to.
	EventType string `json:"event_type"`

	// URL is the delivery target. Must be an absolute HTTPS URL.
	URL string `json:"url"`

	// Secret is the HMAC signing secret. Auto-generated if empty on create.
	Secret string `json:"secret,omitempty"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// RetryPolicy governs backoff. Zero value means the service default.
	RetryPolicy RetryPolicy `json:"retry_policy,omitempty"`

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit,omitempty"`
}

// Patch is the partial-update payload for endpoints. Nil fields are left
// unchanged.
type Patch struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	URL         *string            `json:"url,omitempty"`
	Headers     *map[string]string `json:"headers,omitempty"`
	RetryPolicy *RetryPolicy       `json:"retry_policy,omitempty"`
	RateLimit   *int               `json:"rate_limit,omitempty"`
}

// DefaultRetryPolicy is applied when an Input carries a zero policy.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   10 * time.Second,
	Multiplier:  2,
	MaxDelay:    2 * time.Hour,
}
