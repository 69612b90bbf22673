package memory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/storefront-kit/webhooks"
	"github.com/storefront-kit/webhooks/delivery"
	"github.com/storefront-kit/webhooks/endpoint"
	"github.com/storefront-kit/webhooks/id"
	"github.com/storefront-kit/webhooks/internal/entity"
	"github.com/storefront-kit/webhooks/store/memory"
)

func newEndpoint(t *testing.T, s *memory.Store, eventType string) *endpoint.Endpoint {
	t.Helper()
	ep := &endpoint.Endpoint{
		Entity:      entity.New(),
		ID:          id.NewEndpointID(),
		Name:        "test",
		EventType:   eventType,
		URL:         "https://hooks.example.com/receive",
		Secret:      "whsec_test",
		RetryPolicy: endpoint.DefaultRetryPolicy,
		Active:      true,
	}
	if err := s.CreateEndpoint(context.Background(), ep); err != nil {
		t.Fatal(err)
	}
	return ep
}

func newDelivery(ep *endpoint.Endpoint, sourceEventID string, due time.Time) *delivery.Delivery {
	return &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		EndpointID:     ep.ID,
		SourceEventID:  sourceEventID,
		IdempotencyKey: delivery.IdempotencyKey(ep.ID, sourceEventID),
		EventType:      ep.EventType,
		TargetURL:      ep.URL,
		Status:         delivery.StatusPending,
		MaxAttempts:    5,
		NextRetryAt:    &due,
	}
}

func TestEnqueueDeduplicates(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	ep := newEndpoint(t, s, "order.created")

	now := time.Now().UTC()
	first := newDelivery(ep, "ord_1", now)
	if err := s.Enqueue(ctx, first); err != nil {
		t.Fatal(err)
	}

	dup := newDelivery(ep, "ord_1", now)
	if err := s.Enqueue(ctx, dup); !errors.Is(err, webhooks.ErrDuplicateIdempotencyKey) {
		t.Fatalf("expected ErrDuplicateIdempotencyKey, got %v", err)
	}

	// The original is retrievable by the shared key.
	got, err := s.GetDeliveryByKey(ctx, first.IdempotencyKey)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != first.ID {
		t.Fatalf("expected original record, got %s", got.ID)
	}
}

func TestClaimSelectsOnlyDue(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	ep := newEndpoint(t, s, "order.created")

	now := time.Now().UTC()
	due := newDelivery(ep, "ord_due", now.Add(-time.Second))
	future := newDelivery(ep, "ord_future", now.Add(time.Hour))

	for _, d := range []*delivery.Delivery{due, future} {
		if err := s.Enqueue(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	claimed, err := s.Claim(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 || claimed[0].ID != due.ID {
		t.Fatalf("expected only the due record, got %+v", claimed)
	}

	got := claimed[0]
	if got.Status != delivery.StatusProcessing {
		t.Fatalf("claimed record should be processing, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("claim should increment attempts, got %d", got.Attempts)
	}
	if got.LastAttemptAt == nil {
		t.Fatal("claim should stamp last_attempt_at")
	}

	// A second claim finds nothing due.
	again, err := s.Claim(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("record claimed twice: %+v", again)
	}
}

func TestClaimHonorsLimitOldestFirst(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	ep := newEndpoint(t, s, "order.created")

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		d := newDelivery(ep, fmt.Sprintf("ord_%d", i), now.Add(-time.Duration(5-i)*time.Minute))
		if err := s.Enqueue(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	claimed, err := s.Claim(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 records, got %d", len(claimed))
	}
	if claimed[0].SourceEventID != "ord_0" || claimed[1].SourceEventID != "ord_1" {
		t.Fatalf("expected oldest first, got %s, %s",
			claimed[0].SourceEventID, claimed[1].SourceEventID)
	}
}

func TestTransitionConditional(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	ep := newEndpoint(t, s, "order.created")

	now := time.Now().UTC()
	d := newDelivery(ep, "ord_1", now)
	if err := s.Enqueue(ctx, d); err != nil {
		t.Fatal(err)
	}

	claimed, err := s.Claim(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	rec := claimed[0]

	// Worker resolves the record.
	done := time.Now().UTC()
	rec.Status = delivery.StatusCompleted
	rec.CompletedAt = &done
	if err := s.Transition(ctx, rec, delivery.StatusProcessing); err != nil {
		t.Fatal(err)
	}

	// A late writer that still believes the record is processing loses.
	stale := *rec
	stale.Status = delivery.StatusFailed
	if err := s.Transition(ctx, &stale, delivery.StatusProcessing); !errors.Is(err, webhooks.ErrStaleDelivery) {
		t.Fatalf("expected ErrStaleDelivery, got %v", err)
	}

	got, err := s.GetDelivery(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != delivery.StatusCompleted {
		t.Fatalf("late write must not apply, got %s", got.Status)
	}
}

func TestTransitionMissingRecord(t *testing.T) {
	s := memory.New()
	d := &delivery.Delivery{ID: id.NewDeliveryID(), Status: delivery.StatusCompleted}

	err := s.Transition(context.Background(), d, delivery.StatusProcessing)
	if !errors.Is(err, webhooks.ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
}

func TestListStuck(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	ep := newEndpoint(t, s, "order.created")

	old := time.Now().UTC().Add(-time.Hour)
	fresh := time.Now().UTC()

	stuck := newDelivery(ep, "ord_stuck", old)
	stuck.Status = delivery.StatusProcessing
	stuck.Attempts = 1
	stuck.LastAttemptAt = &old

	active := newDelivery(ep, "ord_active", fresh)
	active.Status = delivery.StatusProcessing
	active.Attempts = 1
	active.LastAttemptAt = &fresh

	pending := newDelivery(ep, "ord_pending", fresh)

	for _, d := range []*delivery.Delivery{stuck, active, pending} {
		if err := s.Enqueue(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	cutoff := time.Now().UTC().Add(-time.Minute)
	got, err := s.ListStuck(ctx, cutoff, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != stuck.ID {
		t.Fatalf("expected only the stale processing record, got %+v", got)
	}
}

func TestListDeliveriesFilters(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	epA := newEndpoint(t, s, "order.created")
	epB := newEndpoint(t, s, "cart.abandoned")

	now := time.Now().UTC()
	a := newDelivery(epA, "ord_1", now)
	b := newDelivery(epB, "cart_1", now)
	b.Status = delivery.StatusCompleted

	for _, d := range []*delivery.Delivery{a, b} {
		if err := s.Enqueue(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	completed := delivery.StatusCompleted
	got, err := s.ListDeliveries(ctx, delivery.ListOpts{Status: &completed})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("status filter failed: %+v", got)
	}

	got, err = s.ListByEndpoint(ctx, epA.ID, delivery.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("endpoint filter failed: %+v", got)
	}
}

func TestCountByStatus(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	ep := newEndpoint(t, s, "order.created")

	now := time.Now().UTC()
	for i, status := range []delivery.Status{
		delivery.StatusPending, delivery.StatusPending,
		delivery.StatusCompleted, delivery.StatusFailed,
	} {
		d := newDelivery(ep, fmt.Sprintf("ord_%d", i), now)
		d.Status = status
		if err := s.Enqueue(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	counts, err := s.CountByStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[delivery.StatusPending] != 2 {
		t.Fatalf("expected 2 pending, got %d", counts[delivery.StatusPending])
	}
	if counts[delivery.StatusCompleted] != 1 || counts[delivery.StatusFailed] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestCountReplays(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	ep := newEndpoint(t, s, "order.created")

	now := time.Now().UTC()
	orig := newDelivery(ep, "ord_1", now)
	if err := s.Enqueue(ctx, orig); err != nil {
		t.Fatal(err)
	}

	for seq := 1; seq <= 2; seq++ {
		replay := newDelivery(ep, "ord_1", now)
		replay.ID = id.NewDeliveryID()
		replay.IdempotencyKey = delivery.ReplayKey(orig.IdempotencyKey, seq)
		replay.ReplayOf = orig.ID
		if err := s.Enqueue(ctx, replay); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.CountReplays(ctx, orig.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 replays, got %d", n)
	}
}

func TestCloseFailsPing(t *testing.T) {
	s := memory.New()

	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, webhooks.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}
