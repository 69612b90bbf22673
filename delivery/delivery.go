package delivery

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/storefront-kit/webhooks/id"
	"github.com/storefront-kit/webhooks/internal/entity"
)

// Status represents the current state of a delivery record.
type Status string

const (
	// StatusPending indicates the record is awaiting a delivery attempt.
	StatusPending Status = "pending"

	// StatusProcessing indicates a worker has claimed the record and the
	// HTTP attempt is in flight. The claim acts as a lease; records stuck
	// in this state past the lease timeout are reclaimed by the sweep.
	StatusProcessing Status = "processing"

	// StatusCompleted indicates the delivery was accepted by the endpoint.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the delivery permanently failed. The record is
	// retained for audit and replay.
	StatusFailed Status = "failed"
)

// Delivery is a durable webhook event delivery record: one row per
// (endpoint, business event) pair. The event type, target URL, payload, and
// attempt budget are copied from the endpoint at enqueue time, so endpoint
// edits never retroactively change in-flight deliveries.
type Delivery struct {
	entity.Entity

	// ID is the unique TypeID for this record.
	ID id.ID `json:"id"`

	// EndpointID references the endpoint this record was fanned out to.
	EndpointID id.ID `json:"endpoint_id"`

	// SourceEventID is the producer-supplied business event identifier.
	SourceEventID string `json:"source_event_id"`

	// IdempotencyKey is globally unique, derived deterministically from the
	// endpoint ID and the source event ID. Enqueueing the same pair twice
	// never creates a second row.
	IdempotencyKey string `json:"idempotency_key"`

	// EventType is the business event type, copied at enqueue time.
	EventType string `json:"event_type"`

	// TargetURL is the delivery URL, copied at enqueue time.
	TargetURL string `json:"target_url"`

	// Payload is the opaque business-event body.
	Payload json.RawMessage `json:"payload"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Attempts is the number of delivery attempts made so far.
	// Invariant: Attempts <= MaxAttempts.
	Attempts int `json:"attempts"`

	// MaxAttempts is copied from the endpoint's retry policy at enqueue time.
	MaxAttempts int `json:"max_attempts"`

	// LastAttemptAt is when the most recent attempt was claimed.
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	// NextRetryAt is when the record next becomes due. Nil on terminal
	// records.
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	// CompletedAt is when the record reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ResponseStatus is the HTTP status code from the most recent attempt.
	// Zero when no response was received.
	ResponseStatus int `json:"response_status,omitempty"`

	// ResponseBody is the response body from the most recent attempt,
	// capped at 1KB.
	ResponseBody string `json:"response_body,omitempty"`

	// LastError is the error message from the most recent failed attempt.
	// Cleared on success.
	LastError string `json:"error_message,omitempty"`

	// ReplayOf references the original record when this one was created by
	// the replay API. Nil for first-run deliveries.
	ReplayOf id.ID `json:"replay_of,omitempty"`
}

// ListOpts configures filtering and pagination for delivery listing.
type ListOpts struct {
	Offset    int
	Limit     int
	Status    *Status
	EventType string
}

// IdempotencyKey derives the globally unique dedup key for an
// (endpoint, business event) pair.
func IdempotencyKey(endpointID id.ID, sourceEventID string) string {
	sum := sha256.Sum256([]byte(endpointID.String() + ":" + sourceEventID))
	return hex.EncodeToString(sum[:])
}

// ReplayKey derives a fresh idempotency key for the seq-th replay of a
// record, distinguishable from the original and from other replays.
func ReplayKey(originalKey string, seq int) string {
	sum := sha256.Sum256([]byte(originalKey + ":replay:" + strconv.Itoa(seq)))
	return hex.EncodeToString(sum[:])
}
