package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/storefront-kit/webhooks/id"
)

// ErrStaleDelivery is returned by Transition when the stored row is no
// longer in the expected state. The caller lost a race and must drop its
// write. Re-exported at the module root as webhooks.ErrStaleDelivery.
var ErrStaleDelivery = errors.New("webhooks: stale delivery transition")

// Store defines the persistence contract for delivery records.
//
// All mutation after enqueue is single-row and conditional: Claim and
// Transition succeed only when the row is still in the expected pre-update
// state, so re-application of a lost race is always a no-op.
type Store interface {
	// Enqueue creates a pending delivery record. Returns
	// webhooks.ErrDuplicateIdempotencyKey when a record with the same
	// idempotency key already exists; the insert is then a no-op.
	Enqueue(ctx context.Context, d *Delivery) error

	// Claim atomically selects up to limit due records (status pending and
	// next_retry_at <= now), transitions them to processing, increments
	// attempts, and stamps last_attempt_at. At most one caller ever
	// receives a given record.
	Claim(ctx context.Context, limit int) ([]*Delivery, error)

	// Transition writes d back conditionally: the update applies only if
	// the stored row is still in the from state. Returns
	// webhooks.ErrStaleDelivery when the row moved on, in which case the
	// caller must drop its write.
	Transition(ctx context.Context, d *Delivery, from Status) error

	// GetDelivery returns a delivery record by ID.
	GetDelivery(ctx context.Context, delID id.ID) (*Delivery, error)

	// GetDeliveryByKey returns a delivery record by idempotency key.
	GetDeliveryByKey(ctx context.Context, key string) (*Delivery, error)

	// ListDeliveries returns records, optionally filtered.
	ListDeliveries(ctx context.Context, opts ListOpts) ([]*Delivery, error)

	// ListByEndpoint returns delivery history for an endpoint.
	ListByEndpoint(ctx context.Context, epID id.ID, opts ListOpts) ([]*Delivery, error)

	// ListStuck returns records sitting in processing since before cutoff.
	// Used by the lease-reclaim sweep; ownership is taken per record via
	// Transition.
	ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*Delivery, error)

	// CountByStatus returns record counts keyed by status.
	CountByStatus(ctx context.Context) (map[Status]int64, error)

	// CountReplays returns how many replays exist for an original record.
	CountReplays(ctx context.Context, origID id.ID) (int, error)
}
