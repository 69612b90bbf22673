// Package store defines the composite Store interface for all persistence
// used by the webhook engine.
//
// Each subsystem defines its own store interface; the aggregate Store
// composes them, so a backend implements everything in one place and
// callers depend only on the slice they need.
package store

import (
	"context"

	"github.com/storefront-kit/webhooks/delivery"
	"github.com/storefront-kit/webhooks/endpoint"
)

// Store is the aggregate persistence interface.
type Store interface {
	endpoint.Store
	delivery.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
