package delivery_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/storefront-kit/webhooks/delivery"
	"github.com/storefront-kit/webhooks/endpoint"
	"github.com/storefront-kit/webhooks/id"
	"github.com/storefront-kit/webhooks/internal/entity"
	"github.com/storefront-kit/webhooks/signature"
)

func senderFixtures(url string) (*endpoint.Endpoint, *delivery.Delivery) {
	ep := &endpoint.Endpoint{
		Entity:    entity.New(),
		ID:        id.NewEndpointID(),
		Name:      "sender-test",
		EventType: "order.created",
		URL:       url,
		Secret:    "whsec_0123456789abcdef0123456789abcdef",
		Headers:   map[string]string{"X-Tenant": "acme"},
		Active:    true,
	}

	d := &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		EndpointID:     ep.ID,
		SourceEventID:  "ord_42",
		IdempotencyKey: delivery.IdempotencyKey(ep.ID, "ord_42"),
		EventType:      "order.created",
		TargetURL:      url,
		Payload:        json.RawMessage(`{"order_id":"ord_42","total":"19.90"}`),
	}
	return ep, d
}

func TestSenderRequestShape(t *testing.T) {
	type captured struct {
		method  string
		headers http.Header
		body    []byte
	}
	got := make(chan captured, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- captured{method: r.Method, headers: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep, d := senderFixtures(srv.URL)
	sender := delivery.NewSender(5 * time.Second)

	res := sender.Send(context.Background(), ep, d)
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}

	req := <-got
	if req.method != http.MethodPost {
		t.Fatalf("expected POST, got %s", req.method)
	}
	if ct := req.headers.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected Content-Type %q", ct)
	}
	if ua := req.headers.Get("User-Agent"); ua != "storefront-webhooks/1.0" {
		t.Fatalf("unexpected User-Agent %q", ua)
	}
	if key := req.headers.Get("X-Idempotency-Key"); key != d.IdempotencyKey {
		t.Fatalf("unexpected X-Idempotency-Key %q", key)
	}
	if tenant := req.headers.Get("X-Tenant"); tenant != "acme" {
		t.Fatalf("custom header not forwarded, got %q", tenant)
	}

	// Signature covers the exact bytes on the wire.
	sig := req.headers.Get("X-Webhook-Signature")
	if !signature.Verify(req.body, ep.Secret, sig) {
		t.Fatal("signature does not verify against the received body")
	}

	var env struct {
		EventType string          `json:"event_type"`
		Payload   json.RawMessage `json:"payload"`
		Timestamp string          `json:"timestamp"`
	}
	if err := json.Unmarshal(req.body, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if env.EventType != "order.created" {
		t.Fatalf("unexpected event_type %q", env.EventType)
	}
	if string(env.Payload) != string(d.Payload) {
		t.Fatalf("payload altered in transit: %s", env.Payload)
	}
	if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
		t.Fatalf("timestamp not RFC3339: %q", env.Timestamp)
	}
}

func TestSenderCapturesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	ep, d := senderFixtures(srv.URL)
	sender := delivery.NewSender(5 * time.Second)

	res := sender.Send(context.Background(), ep, d)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.StatusCode)
	}
	if res.Response != "upstream unavailable" {
		t.Fatalf("unexpected response body %q", res.Response)
	}
	if res.TimedOut {
		t.Fatal("a received response is not a timeout")
	}
}

func TestSenderTruncatesLargeResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	ep, d := senderFixtures(srv.URL)
	sender := delivery.NewSender(5 * time.Second)

	res := sender.Send(context.Background(), ep, d)
	if len(res.Response) != 1024 {
		t.Fatalf("expected response capped at 1024 bytes, got %d", len(res.Response))
	}
}

func TestSenderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	ep, d := senderFixtures(srv.URL)
	sender := delivery.NewSender(100 * time.Millisecond)

	res := sender.Send(context.Background(), ep, d)
	if !res.TimedOut {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if res.StatusCode != 0 {
		t.Fatalf("timeout should carry no status code, got %d", res.StatusCode)
	}
	if res.Error == "" {
		t.Fatal("timeout should carry an error message")
	}
}

func TestSenderConnectionRefused(t *testing.T) {
	// A freshly closed listener's port refuses connections.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	ep, d := senderFixtures(url)
	sender := delivery.NewSender(time.Second)

	res := sender.Send(context.Background(), ep, d)
	if res.StatusCode != 0 {
		t.Fatalf("expected no status, got %d", res.StatusCode)
	}
	if res.TimedOut {
		t.Fatal("connection refused is not a timeout")
	}
	if !strings.HasPrefix(res.Error, "network error:") {
		t.Fatalf("unexpected error classification %q", res.Error)
	}
}
