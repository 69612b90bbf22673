package delivery

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/storefront-kit/webhooks/endpoint"
)

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Delivered means the attempt succeeded (2xx).
	Delivered Decision = iota

	// Retry means the record should return to pending with a backoff.
	Retry

	// Fail means the record has permanently failed.
	Fail

	// DisableEndpoint means the endpoint itself should be deactivated
	// (410 Gone) in addition to failing the record.
	DisableEndpoint
)

// Result holds the outcome of a single HTTP delivery attempt.
type Result struct {
	StatusCode int
	Error      string
	Response   string
	LatencyMs  int
	TimedOut   bool
}

// Decide determines what to do with a claimed record after an attempt.
//
// Decision matrix:
//   - 2xx → Delivered
//   - 410 → DisableEndpoint (the target is gone for good)
//   - 400–499 except 410, 429 → Fail immediately (client errors are assumed
//     not to self-heal)
//   - 429 / 500–599 / 0 (timeout or network error) → Retry while attempts
//     remain, else Fail
func Decide(res Result, d *Delivery) Decision {
	code := res.StatusCode

	if code >= 200 && code < 300 {
		return Delivered
	}

	if code == 410 {
		return DisableEndpoint
	}

	if code >= 400 && code < 500 && code != 429 {
		return Fail
	}

	if d.Attempts < d.MaxAttempts {
		return Retry
	}
	return Fail
}

// Backoff returns the undithered delay before the attempt following the
// given failed attempt number (1-based):
//
//	min(maxDelay, baseDelay * multiplier^(attempt-1))
func Backoff(attempt int, p endpoint.RetryPolicy) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	if d > p.MaxDelay || d <= 0 {
		// Overflow of the float math lands here too.
		d = p.MaxDelay
	}
	return d
}

// NextRetryAt schedules the next attempt for a record whose attempt-th try
// just failed. A uniform jitter in [0.8, 1.2] spreads retries of records
// sharing a policy, avoiding thundering-herd resubmission.
func NextRetryAt(attempt int, p endpoint.RetryPolicy) time.Time {
	jitter := 0.8 + 0.4*rand.Float64()
	delay := time.Duration(float64(Backoff(attempt, p)) * jitter)
	return time.Now().UTC().Add(delay)
}
