package webhooks

import "time"

// Config holds the configuration for an Engine instance.
type Config struct {
	// Concurrency is the number of delivery worker goroutines.
	Concurrency int

	// PollInterval is how often the dispatcher checks for due deliveries.
	PollInterval time.Duration

	// BatchSize is the maximum number of deliveries claimed per poll cycle.
	BatchSize int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// LeaseTimeout is how long a claimed delivery may sit in processing
	// before the reclaim sweep treats its worker as dead.
	LeaseTimeout time.Duration

	// ReclaimInterval is how often the reclaim sweep runs.
	ReclaimInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight deliveries
	// on shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		PollInterval:    1 * time.Second,
		BatchSize:       50,
		RequestTimeout:  10 * time.Second,
		LeaseTimeout:    5 * time.Minute,
		ReclaimInterval: 30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}
