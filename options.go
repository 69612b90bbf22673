package webhooks

import (
	"log/slog"
	"time"

	"github.com/storefront-kit/webhooks/observability"
	"github.com/storefront-kit/webhooks/store"
)

// Option configures an Engine instance.
type Option func(*Engine) error

// New creates a new Engine with the given options. A store is required.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.store == nil {
		return nil, ErrNoStore
	}
	e.wireServices()
	return e, nil
}

// WithStore sets the persistence backend.
func WithStore(s store.Store) Option {
	return func(e *Engine) error {
		e.store = s
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithConcurrency sets the number of delivery worker goroutines.
func WithConcurrency(n int) Option {
	return func(e *Engine) error {
		e.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the dispatcher checks for due deliveries.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of deliveries claimed per poll cycle.
func WithBatchSize(n int) Option {
	return func(e *Engine) error {
		e.config.BatchSize = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.RequestTimeout = d
		return nil
	}
}

// WithLeaseTimeout sets how long a claimed delivery may sit in processing
// before it is considered abandoned.
func WithLeaseTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.LeaseTimeout = d
		return nil
	}
}

// WithReclaimInterval sets how often the reclaim sweep runs.
func WithReclaimInterval(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.ReclaimInterval = d
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight
// deliveries on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.ShutdownTimeout = d
		return nil
	}
}

// WithMetrics wires metric instruments into the engine.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) error {
		e.metrics = m
		return nil
	}
}

// WithTracer wires an OpenTelemetry tracer into the delivery path.
func WithTracer(t *observability.Tracer) Option {
	return func(e *Engine) error {
		e.tracer = t
		return nil
	}
}
