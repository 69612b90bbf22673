package webhooks

import (
	"errors"

	"github.com/storefront-kit/webhooks/delivery"
)

// Sentinel errors returned by engine and store operations.
var (
	// ErrNoStore is returned when an Engine is created without a store.
	ErrNoStore = errors.New("webhooks: store is required")

	// ErrEndpointNotFound is returned when an endpoint cannot be found.
	ErrEndpointNotFound = errors.New("webhooks: endpoint not found")

	// ErrUnknownEventType is returned when an event type is not in the catalog.
	ErrUnknownEventType = errors.New("webhooks: unknown event type")

	// ErrPayloadValidationFailed is returned when an event payload fails
	// JSON Schema validation.
	ErrPayloadValidationFailed = errors.New("webhooks: payload validation failed")

	// ErrDuplicateIdempotencyKey is returned by stores when a delivery with
	// the same idempotency key already exists. Enqueue treats it as a no-op.
	ErrDuplicateIdempotencyKey = errors.New("webhooks: duplicate idempotency key")

	// ErrDeliveryNotFound is returned when a delivery record cannot be found.
	ErrDeliveryNotFound = errors.New("webhooks: delivery not found")

	// ErrStaleDelivery is returned by conditional updates when the record is
	// no longer in the expected state. The caller's view of the record lost
	// a race and the write must be dropped.
	ErrStaleDelivery = delivery.ErrStaleDelivery

	// ErrStoreClosed is returned when a store operation is attempted after
	// the store is closed.
	ErrStoreClosed = errors.New("webhooks: store is closed")
)
