package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/storefront-kit/webhooks/endpoint"
	"github.com/storefront-kit/webhooks/signature"
)

const maxResponseBody = 1024 // 1KB cap on stored response bodies

// Sender performs the HTTP webhook delivery.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender with the given per-attempt HTTP timeout.
func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{Timeout: timeout},
	}
}

// envelope is the outbound wire body.
type envelope struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// Send delivers a claimed record to its target and returns the result. The
// POST goes to the URL copied onto the record at enqueue time; the signing
// secret and custom headers come from the endpoint's current configuration.
func (s *Sender) Send(ctx context.Context, ep *endpoint.Endpoint, d *Delivery) Result {
	body, err := json.Marshal(envelope{
		EventType: d.EventType,
		Payload:   d.Payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Result{Error: fmt.Sprintf("marshal body: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.TargetURL, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "storefront-webhooks/1.0")
	req.Header.Set("X-Webhook-Signature", signature.Sign(body, ep.Secret))
	req.Header.Set("X-Idempotency-Key", d.IdempotencyKey)

	// Custom endpoint headers.
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // G704: URL is an operator-configured webhook destination; SSRF is by design.
	latency := time.Since(start).Milliseconds()

	if err != nil {
		r := Result{LatencyMs: int(latency)}
		if isTimeout(err) {
			r.TimedOut = true
			r.Error = fmt.Sprintf("timeout: %v", err)
		} else {
			r.Error = fmt.Sprintf("network error: %v", err)
		}
		return r
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
			LatencyMs:  int(latency),
		}
	}

	return Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  int(latency),
	}
}

// isTimeout reports whether the transport error was a timeout rather than a
// hard network failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
