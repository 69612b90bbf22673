package endpoint

import (
	"context"

	"github.com/storefront-kit/webhooks/id"
)

// Store defines the persistence contract for webhook endpoints.
type Store interface {
	// CreateEndpoint persists a new endpoint.
	CreateEndpoint(ctx context.Context, ep *Endpoint) error

	// GetEndpoint returns an endpoint by ID.
	GetEndpoint(ctx context.Context, epID id.ID) (*Endpoint, error)

	// UpdateEndpoint modifies an existing endpoint.
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error

	// DeleteEndpoint removes an endpoint. Delivery records already enqueued
	// for it are left in place.
	DeleteEndpoint(ctx context.Context, epID id.ID) error

	// ListEndpoints returns endpoints, optionally filtered.
	ListEndpoints(ctx context.Context, opts ListOpts) ([]*Endpoint, error)

	// Resolve finds all active endpoints subscribed to an event type.
	// This is the enqueue hot path.
	Resolve(ctx context.Context, eventType string) ([]*Endpoint, error)

	// SetActive flips the active flag without touching queued deliveries.
	SetActive(ctx context.Context, epID id.ID, active bool) error
}
