// Package webhooks provides the outbound webhook event delivery engine for
// the storefront.
//
// The engine notifies external systems (fulfillment tools, marketing
// automation, back-office integrations) of business events such as
// "order.created" or "stock.low" over HTTP, with at-least-once delivery,
// bounded retries with exponential backoff, duplicate suppression via
// idempotency keys, and operator-triggered replay of past deliveries.
//
// Key properties:
//   - Durable delivery records with conditional (CAS-style) state transitions
//   - Fixed-size worker pool dispatching signed HTTP POSTs
//   - Per-endpoint retry policies (exponential backoff with jitter)
//   - Lease-expiry sweep reclaiming records abandoned by crashed workers
//   - HMAC-SHA256 payload signing on every delivery
//   - Composable store pattern with Postgres, Redis, and in-memory backends
//
// Quick start:
//
//	eng, err := webhooks.New(
//	    webhooks.WithStore(memoryStore),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	eng.Start(ctx)
//
//	eng.Endpoints().Create(ctx, endpoint.Input{
//	    Name:      "erp-orders",
//	    URL:       "https://erp.example.com/hooks/orders",
//	    EventType: "order.created",
//	})
//
//	eng.Enqueue(ctx, "order.created", "ord_8812", payload)
//
// Enqueue never performs network I/O; the dispatcher delivers asynchronously.
package webhooks
