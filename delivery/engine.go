package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/storefront-kit/webhooks/endpoint"
	"github.com/storefront-kit/webhooks/id"
	"github.com/storefront-kit/webhooks/observability"
	"github.com/storefront-kit/webhooks/ratelimit"
)

// EngineStore is the interface the dispatcher needs for delivery work.
type EngineStore interface {
	Claim(ctx context.Context, limit int) ([]*Delivery, error)
	Transition(ctx context.Context, d *Delivery, from Status) error
	ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*Delivery, error)
	GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error)
	SetActive(ctx context.Context, epID id.ID, active bool) error
}

// EngineConfig holds dispatcher configuration.
type EngineConfig struct {
	Concurrency     int
	PollInterval    time.Duration
	BatchSize       int
	RequestTimeout  time.Duration
	LeaseTimeout    time.Duration
	ReclaimInterval time.Duration
	Metrics         *observability.Metrics
	Tracer          *observability.Tracer
}

// Engine is the dispatcher: a fixed-size worker pool that claims due
// records, performs the signed HTTP delivery, and applies outcome
// transitions. A companion sweep reclaims records whose worker died
// mid-flight.
type Engine struct {
	store   EngineStore
	sender  *Sender
	limiter *ratelimit.Limiter
	config  EngineConfig
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a dispatcher.
func NewEngine(store EngineStore, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		sender:  NewSender(cfg.RequestTimeout),
		limiter: ratelimit.New(),
		config:  cfg,
		logger:  logger,
	}
}

// Start begins the claim loop and the lease-reclaim sweep.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.pollLoop(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.reclaimLoop(ctx)
	}()
}

// Stop cancels the loops and waits for in-flight deliveries to resolve.
// Claimed-but-unresolved records left by a hard kill are recovered later by
// the reclaim sweep.
func (e *Engine) Stop(_ context.Context) {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// pollLoop periodically claims due records and hands them to workers. The
// semaphore bounds concurrency; the claim guarantees exclusivity.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, e.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := e.store.Claim(ctx, e.config.BatchSize)
			if err != nil {
				e.logger.ErrorContext(ctx, "claim failed", "error", err)
				continue
			}

			for _, d := range batch {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				e.wg.Add(1)
				go func(rec *Delivery) {
					defer e.wg.Done()
					defer func() { <-sem }()
					e.process(ctx, rec)
				}(d)
			}
		}
	}
}

// process handles one claimed record: load endpoint, send, decide, write the
// outcome back conditionally.
func (e *Engine) process(ctx context.Context, d *Delivery) {
	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartDeliverySpan(ctx, d.ID.String(), d.EndpointID.String(), d.EventType)
	}

	ep, err := e.store.GetEndpoint(ctx, d.EndpointID)
	if err != nil {
		// The endpoint was deleted under a queued record. Nothing left to
		// sign with; terminal.
		e.fail(ctx, d, "endpoint missing: "+err.Error())
		if span != nil {
			e.config.Tracer.EndDeliverySpan(span, 0, 0, "endpoint missing")
		}
		return
	}

	if waitErr := e.limiter.Wait(ctx, ep.ID.String(), ep.RateLimit); waitErr != nil {
		// Shutdown while throttled: release the claim so the record is
		// retried promptly after restart. No request was sent, so the
		// attempt taken at claim time is handed back.
		now := time.Now().UTC()
		d.Status = StatusPending
		d.Attempts--
		d.NextRetryAt = &now
		e.transition(context.WithoutCancel(ctx), d)
		if span != nil {
			e.config.Tracer.EndDeliverySpan(span, 0, 0, "cancelled while rate limited")
		}
		return
	}

	// Past the limiter a claimed record runs to resolution even during
	// shutdown. The sender's own timeout bounds it.
	ctx = context.WithoutCancel(ctx)

	result := e.sender.Send(ctx, ep, d)

	d.ResponseStatus = result.StatusCode
	d.ResponseBody = result.Response
	d.LastError = result.Error

	latencySeconds := float64(result.LatencyMs) / 1000.0

	switch Decide(result, d) {
	case Delivered:
		now := time.Now().UTC()
		d.Status = StatusCompleted
		d.CompletedAt = &now
		d.NextRetryAt = nil
		d.LastError = ""
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("completed", latencySeconds)
			e.config.Metrics.PendingDeliveries.Dec()
		}
		e.logger.DebugContext(ctx, "delivered",
			"delivery_id", d.ID, "status", result.StatusCode, "latency_ms", result.LatencyMs)

	case Retry:
		next := NextRetryAt(d.Attempts, ep.RetryPolicy)
		d.Status = StatusPending
		d.NextRetryAt = &next
		if d.LastError == "" {
			d.LastError = httpFailureMessage(result.StatusCode)
		}
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("retried", latencySeconds)
		}
		e.logger.DebugContext(ctx, "retry scheduled",
			"delivery_id", d.ID, "attempt", d.Attempts, "next_retry_at", next)

	case Fail:
		now := time.Now().UTC()
		d.Status = StatusFailed
		d.CompletedAt = &now
		d.NextRetryAt = nil
		if d.LastError == "" {
			d.LastError = httpFailureMessage(result.StatusCode)
		}
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("failed", latencySeconds)
			e.config.Metrics.PendingDeliveries.Dec()
		}
		e.logger.WarnContext(ctx, "delivery failed permanently",
			"delivery_id", d.ID, "status", result.StatusCode, "attempts", d.Attempts, "error", d.LastError)

	case DisableEndpoint:
		now := time.Now().UTC()
		d.Status = StatusFailed
		d.CompletedAt = &now
		d.NextRetryAt = nil
		if d.LastError == "" {
			d.LastError = httpFailureMessage(result.StatusCode)
		}
		if disableErr := e.store.SetActive(ctx, d.EndpointID, false); disableErr != nil {
			e.logger.ErrorContext(ctx, "deactivate endpoint failed",
				"endpoint_id", d.EndpointID, "error", disableErr)
		}
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("failed", latencySeconds)
			e.config.Metrics.PendingDeliveries.Dec()
		}
		e.logger.WarnContext(ctx, "endpoint deactivated (410 Gone)",
			"endpoint_id", d.EndpointID, "delivery_id", d.ID)
	}

	if span != nil {
		e.config.Tracer.EndDeliverySpan(span, result.StatusCode, result.LatencyMs, d.LastError)
	}

	e.transition(ctx, d)
}

// reclaimLoop periodically sweeps records stuck in processing past the lease
// timeout: a worker claimed them and never resolved (crash, kill -9). The
// orphaned claim is counted as a failed attempt and the record returns to
// pending, or to failed when its budget is spent.
func (e *Engine) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.reclaim(ctx)
		}
	}
}

func (e *Engine) reclaim(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-e.config.LeaseTimeout)

	stuck, err := e.store.ListStuck(ctx, cutoff, e.config.BatchSize)
	if err != nil {
		e.logger.ErrorContext(ctx, "list stuck deliveries failed", "error", err)
		return
	}

	for _, d := range stuck {
		d.LastError = "delivery lease expired; attempt counted as failed"

		if d.Attempts >= d.MaxAttempts {
			now := time.Now().UTC()
			d.Status = StatusFailed
			d.CompletedAt = &now
			d.NextRetryAt = nil
		} else {
			policy := endpoint.DefaultRetryPolicy
			if ep, epErr := e.store.GetEndpoint(ctx, d.EndpointID); epErr == nil {
				policy = ep.RetryPolicy
			}
			next := NextRetryAt(d.Attempts, policy)
			d.Status = StatusPending
			d.NextRetryAt = &next
		}

		// Conditional on the row still being processing: a slow worker that
		// resolves after the cutoff wins, and this write is dropped.
		if trErr := e.store.Transition(ctx, d, StatusProcessing); trErr != nil {
			if !errors.Is(trErr, ErrStaleDelivery) {
				e.logger.ErrorContext(ctx, "reclaim transition failed",
					"delivery_id", d.ID, "error", trErr)
			}
			continue
		}

		if e.config.Metrics != nil {
			e.config.Metrics.LeasesReclaimedTotal.Inc()
			if d.Status == StatusFailed {
				e.config.Metrics.RecordDelivery("failed", 0)
				e.config.Metrics.PendingDeliveries.Dec()
			}
		}
		e.logger.WarnContext(ctx, "reclaimed stuck delivery",
			"delivery_id", d.ID, "attempts", d.Attempts, "status", d.Status)
	}
}

// fail marks a claimed record as permanently failed.
func (e *Engine) fail(ctx context.Context, d *Delivery, msg string) {
	now := time.Now().UTC()
	d.Status = StatusFailed
	d.CompletedAt = &now
	d.NextRetryAt = nil
	d.LastError = msg
	if e.config.Metrics != nil {
		e.config.Metrics.RecordDelivery("failed", 0)
		e.config.Metrics.PendingDeliveries.Dec()
	}
	e.transition(ctx, d)
}

// ReleaseEndpoint drops per-endpoint throttling state. Called when an
// endpoint is deleted.
func (e *Engine) ReleaseEndpoint(epID string) {
	e.limiter.Forget(epID)
}

// transition applies the worker's outcome, tolerating a lost race with the
// reclaim sweep.
func (e *Engine) transition(ctx context.Context, d *Delivery) {
	if err := e.store.Transition(ctx, d, StatusProcessing); err != nil {
		if errors.Is(err, ErrStaleDelivery) {
			e.logger.WarnContext(ctx, "outcome dropped, record was reclaimed",
				"delivery_id", d.ID)
			return
		}
		e.logger.ErrorContext(ctx, "transition failed",
			"delivery_id", d.ID, "error", err)
	}
}

func httpFailureMessage(code int) string {
	if code == 0 {
		return "no response"
	}
	return fmt.Sprintf("unexpected status %d", code)
}
