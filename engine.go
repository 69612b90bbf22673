package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/storefront-kit/webhooks/catalog"
	"github.com/storefront-kit/webhooks/delivery"
	"github.com/storefront-kit/webhooks/endpoint"
	"github.com/storefront-kit/webhooks/id"
	"github.com/storefront-kit/webhooks/internal/entity"
	"github.com/storefront-kit/webhooks/observability"
	"github.com/storefront-kit/webhooks/store"
)

// Engine is the root webhook delivery engine.
type Engine struct {
	config      Config
	store       store.Store
	catalog     *catalog.Registry
	validator   *catalog.Validator
	endpointSvc *endpoint.Service
	dispatcher  *delivery.Engine
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	logger      *slog.Logger
}

// wireServices initializes the internal services after options have been applied.
func (e *Engine) wireServices() {
	e.catalog = catalog.NewRegistry()
	e.validator = catalog.NewValidator()
	e.endpointSvc = endpoint.NewService(e.store, e.catalog, e.logger)
	e.dispatcher = delivery.NewEngine(e.store, delivery.EngineConfig{
		Concurrency:     e.config.Concurrency,
		PollInterval:    e.config.PollInterval,
		BatchSize:       e.config.BatchSize,
		RequestTimeout:  e.config.RequestTimeout,
		LeaseTimeout:    e.config.LeaseTimeout,
		ReclaimInterval: e.config.ReclaimInterval,
		Metrics:         e.metrics,
		Tracer:          e.tracer,
	}, e.logger)
	e.endpointSvc.OnDelete(e.dispatcher.ReleaseEndpoint)
}

// Start begins the dispatcher and the reclaim sweep.
func (e *Engine) Start(ctx context.Context) {
	e.dispatcher.Start(ctx)
}

// Stop gracefully shuts down the dispatcher, waiting up to ShutdownTimeout
// for in-flight deliveries.
func (e *Engine) Stop(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, e.config.ShutdownTimeout)
	defer cancel()
	e.dispatcher.Stop(ctx)
}

// Enqueue accepts a storefront event and fans it out to every active
// endpoint subscribed to the event type, creating one pending delivery per
// endpoint. Returns the IDs of the delivery records covering this event,
// including pre-existing ones when the (endpoint, sourceEventID) pair was
// already enqueued.
//
// The critical path:
//  1. Reject unknown event types against the catalog.
//  2. Validate the payload against the type's JSON Schema, if one is set.
//  3. Resolve active endpoints subscribed to the type.
//  4. Insert one delivery per endpoint; duplicates by idempotency key
//     resolve to the existing record.
func (e *Engine) Enqueue(ctx context.Context, eventType, sourceEventID string, payload json.RawMessage) ([]id.ID, error) {
	def, ok := e.catalog.Lookup(eventType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	if sourceEventID == "" {
		return nil, errors.New("webhooks: source event id is required")
	}

	if len(def.Schema) > 0 {
		if err := e.validator.Validate(def.Schema, payload); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrPayloadValidationFailed, err.Error())
		}
	}

	endpoints, err := e.store.Resolve(ctx, eventType)
	if err != nil {
		return nil, fmt.Errorf("webhooks: resolve endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	ids := make([]id.ID, 0, len(endpoints))
	enqueued := 0

	for _, ep := range endpoints {
		d := &delivery.Delivery{
			Entity:         entity.New(),
			ID:             id.NewDeliveryID(),
			EndpointID:     ep.ID,
			SourceEventID:  sourceEventID,
			IdempotencyKey: delivery.IdempotencyKey(ep.ID, sourceEventID),
			EventType:      eventType,
			TargetURL:      ep.URL,
			Payload:        payload,
			Status:         delivery.StatusPending,
			MaxAttempts:    ep.RetryPolicy.MaxAttempts,
			NextRetryAt:    &now,
		}

		if enqErr := e.store.Enqueue(ctx, d); enqErr != nil {
			if errors.Is(enqErr, ErrDuplicateIdempotencyKey) {
				// Already accepted for this endpoint. Surface the existing
				// record's ID so the caller sees a stable result.
				existing, getErr := e.store.GetDeliveryByKey(ctx, d.IdempotencyKey)
				if getErr != nil {
					return nil, fmt.Errorf("webhooks: resolve duplicate: %w", getErr)
				}
				ids = append(ids, existing.ID)
				continue
			}
			return nil, fmt.Errorf("webhooks: enqueue delivery: %w", enqErr)
		}
		ids = append(ids, d.ID)
		enqueued++
	}

	if e.metrics != nil {
		e.metrics.EventsEnqueuedTotal.Inc()
		e.metrics.PendingDeliveries.Add(float64(enqueued))
	}

	e.logger.DebugContext(ctx, "event enqueued",
		"event_type", eventType,
		"source_event_id", sourceEventID,
		"endpoints", len(endpoints),
		"new_deliveries", enqueued,
	)

	return ids, nil
}

// Replay creates a fresh pending delivery carrying the same payload as an
// existing record. The original is never mutated; the new record points back
// to it via ReplayOf and gets a derived idempotency key so it cannot collide
// with the original or with earlier replays. Target URL and attempt budget
// are copied from the original record, so later endpoint edits or deletion
// do not affect what a replay carries.
func (e *Engine) Replay(ctx context.Context, deliveryID id.ID) (*delivery.Delivery, error) {
	orig, err := e.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	seq, err := e.store.CountReplays(ctx, orig.ID)
	if err != nil {
		return nil, fmt.Errorf("webhooks: count replays: %w", err)
	}
	seq++

	now := time.Now().UTC()
	for {
		d := &delivery.Delivery{
			Entity:         entity.New(),
			ID:             id.NewDeliveryID(),
			EndpointID:     orig.EndpointID,
			SourceEventID:  orig.SourceEventID,
			IdempotencyKey: delivery.ReplayKey(orig.IdempotencyKey, seq),
			EventType:      orig.EventType,
			TargetURL:      orig.TargetURL,
			Payload:        orig.Payload,
			Status:         delivery.StatusPending,
			MaxAttempts:    orig.MaxAttempts,
			NextRetryAt:    &now,
			ReplayOf:       orig.ID,
		}

		enqErr := e.store.Enqueue(ctx, d)
		if enqErr == nil {
			if e.metrics != nil {
				e.metrics.ReplaysTotal.Inc()
				e.metrics.PendingDeliveries.Inc()
			}
			e.logger.InfoContext(ctx, "delivery replayed",
				"original_id", orig.ID, "replay_id", d.ID, "sequence", seq)
			return d, nil
		}
		if errors.Is(enqErr, ErrDuplicateIdempotencyKey) {
			// Concurrent replay took this sequence number; bump and retry.
			seq++
			continue
		}
		return nil, fmt.Errorf("webhooks: enqueue replay: %w", enqErr)
	}
}

// Stats returns delivery record counts keyed by status.
func (e *Engine) Stats(ctx context.Context) (map[delivery.Status]int64, error) {
	return e.store.CountByStatus(ctx)
}

// Endpoints returns the endpoint management service.
func (e *Engine) Endpoints() *endpoint.Service {
	return e.endpointSvc
}

// Catalog returns the event type catalog.
func (e *Engine) Catalog() *catalog.Registry {
	return e.catalog
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store {
	return e.store
}
