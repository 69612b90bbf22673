// Package memory provides an in-memory Store implementation for unit testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/storefront-kit/webhooks"
	"github.com/storefront-kit/webhooks/delivery"
	"github.com/storefront-kit/webhooks/endpoint"
	"github.com/storefront-kit/webhooks/id"
	whstore "github.com/storefront-kit/webhooks/store"
)

// compile-time interface check.
var _ whstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store for testing.
type Store struct {
	mu sync.RWMutex

	endpoints         map[string]*endpoint.Endpoint // keyed by ID string
	deliveries        map[string]*delivery.Delivery // keyed by ID string
	deliveriesByKey   map[string]string             // idempotency key -> delivery ID
	replaysByOriginal map[string]int                // original ID -> replay count

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		endpoints:         make(map[string]*endpoint.Endpoint),
		deliveries:        make(map[string]*delivery.Delivery),
		deliveriesByKey:   make(map[string]string),
		replaysByOriginal: make(map[string]int),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is still open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return webhooks.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// endpoint.Store
// ──────────────────────────────────────────────────

// CreateEndpoint persists a new endpoint.
func (s *Store) CreateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endpoints[ep.ID.String()] = copyEndpoint(ep)
	return nil
}

// GetEndpoint returns an endpoint by ID.
func (s *Store) GetEndpoint(_ context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.endpoints[epID.String()]
	if !ok {
		return nil, webhooks.ErrEndpointNotFound
	}
	return copyEndpoint(ep), nil
}

// UpdateEndpoint modifies an existing endpoint.
func (s *Store) UpdateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[ep.ID.String()]; !ok {
		return webhooks.ErrEndpointNotFound
	}
	ep.UpdatedAt = time.Now().UTC()
	s.endpoints[ep.ID.String()] = copyEndpoint(ep)
	return nil
}

// DeleteEndpoint removes an endpoint.
func (s *Store) DeleteEndpoint(_ context.Context, epID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[epID.String()]; !ok {
		return webhooks.ErrEndpointNotFound
	}
	delete(s.endpoints, epID.String())
	return nil
}

// ListEndpoints returns endpoints, optionally filtered.
func (s *Store) ListEndpoints(_ context.Context, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*endpoint.Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		if opts.EventType != "" && ep.EventType != opts.EventType {
			continue
		}
		if opts.Active != nil && ep.Active != *opts.Active {
			continue
		}
		result = append(result, copyEndpoint(ep))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// Resolve returns all active endpoints subscribed to an event type.
func (s *Store) Resolve(_ context.Context, eventType string) ([]*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*endpoint.Endpoint
	for _, ep := range s.endpoints {
		if !ep.Active || ep.EventType != eventType {
			continue
		}
		result = append(result, copyEndpoint(ep))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// SetActive activates or deactivates an endpoint.
func (s *Store) SetActive(_ context.Context, epID id.ID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[epID.String()]
	if !ok {
		return webhooks.ErrEndpointNotFound
	}
	ep.Active = active
	ep.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// Enqueue creates a pending delivery. Returns ErrDuplicateIdempotencyKey
// when the key is already present.
func (s *Store) Enqueue(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveriesByKey[d.IdempotencyKey]; ok {
		return webhooks.ErrDuplicateIdempotencyKey
	}

	s.deliveries[d.ID.String()] = copyDelivery(d)
	s.deliveriesByKey[d.IdempotencyKey] = d.ID.String()
	if !d.ReplayOf.IsNil() {
		s.replaysByOriginal[d.ReplayOf.String()]++
	}
	return nil
}

// Claim atomically moves up to limit due pending deliveries to processing,
// incrementing attempts and stamping last_attempt_at. Returns copies, oldest
// due first.
func (s *Store) Claim(_ context.Context, limit int) ([]*delivery.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	candidates := make([]*delivery.Delivery, 0, len(s.deliveries))

	for _, d := range s.deliveries {
		if d.Status != delivery.StatusPending {
			continue
		}
		if d.NextRetryAt == nil || d.NextRetryAt.After(now) {
			continue
		}
		candidates = append(candidates, d)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NextRetryAt.Before(*candidates[j].NextRetryAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	result := make([]*delivery.Delivery, 0, len(candidates))
	for _, d := range candidates {
		d.Status = delivery.StatusProcessing
		d.Attempts++
		at := now
		d.LastAttemptAt = &at
		d.UpdatedAt = now
		result = append(result, copyDelivery(d))
	}

	return result, nil
}

// Transition writes d back only if the stored row is still in the from
// state. Returns ErrStaleDelivery otherwise.
func (s *Store) Transition(_ context.Context, d *delivery.Delivery, from delivery.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.deliveries[d.ID.String()]
	if !ok {
		return webhooks.ErrDeliveryNotFound
	}
	if stored.Status != from {
		return webhooks.ErrStaleDelivery
	}

	d.UpdatedAt = time.Now().UTC()
	s.deliveries[d.ID.String()] = copyDelivery(d)
	return nil
}

// GetDelivery returns a copy of the delivery by ID.
func (s *Store) GetDelivery(_ context.Context, delID id.ID) (*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[delID.String()]
	if !ok {
		return nil, webhooks.ErrDeliveryNotFound
	}
	return copyDelivery(d), nil
}

// GetDeliveryByKey returns a copy of the delivery with the given
// idempotency key.
func (s *Store) GetDeliveryByKey(_ context.Context, key string) (*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	delID, ok := s.deliveriesByKey[key]
	if !ok {
		return nil, webhooks.ErrDeliveryNotFound
	}
	return copyDelivery(s.deliveries[delID]), nil
}

// ListDeliveries returns deliveries, newest first, optionally filtered.
func (s *Store) ListDeliveries(_ context.Context, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		if opts.Status != nil && d.Status != *opts.Status {
			continue
		}
		if opts.EventType != "" && d.EventType != opts.EventType {
			continue
		}
		result = append(result, copyDelivery(d))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ListByEndpoint returns delivery history for an endpoint, newest first.
func (s *Store) ListByEndpoint(_ context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		if d.EndpointID.String() != epID.String() {
			continue
		}
		if opts.Status != nil && d.Status != *opts.Status {
			continue
		}
		result = append(result, copyDelivery(d))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ListStuck returns deliveries sitting in processing since before cutoff,
// oldest first.
func (s *Store) ListStuck(_ context.Context, cutoff time.Time, limit int) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*delivery.Delivery
	for _, d := range s.deliveries {
		if d.Status != delivery.StatusProcessing {
			continue
		}
		if d.LastAttemptAt == nil || d.LastAttemptAt.After(cutoff) {
			continue
		}
		result = append(result, copyDelivery(d))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastAttemptAt.Before(*result[j].LastAttemptAt)
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// CountByStatus returns delivery counts keyed by status.
func (s *Store) CountByStatus(_ context.Context) (map[delivery.Status]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[delivery.Status]int64)
	for _, d := range s.deliveries {
		counts[d.Status]++
	}
	return counts, nil
}

// CountReplays returns how many replays exist for an original delivery.
func (s *Store) CountReplays(_ context.Context, origID id.ID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.replaysByOriginal[origID.String()], nil
}

// ──────────────────────────────────────────────────
// helpers
// ──────────────────────────────────────────────────

func copyEndpoint(ep *endpoint.Endpoint) *endpoint.Endpoint {
	cp := *ep
	if ep.Headers != nil {
		cp.Headers = make(map[string]string, len(ep.Headers))
		for k, v := range ep.Headers {
			cp.Headers[k] = v
		}
	}
	return &cp
}

func copyDelivery(d *delivery.Delivery) *delivery.Delivery {
	cp := *d
	return &cp
}

// applyPagination slices a result set by offset and limit.
func applyPagination[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
