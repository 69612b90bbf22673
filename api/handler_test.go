package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/storefront-kit/webhooks"
	"github.com/storefront-kit/webhooks/api"
	"github.com/storefront-kit/webhooks/delivery"
	"github.com/storefront-kit/webhooks/endpoint"
	"github.com/storefront-kit/webhooks/store/memory"
)

func setupAPI(t *testing.T) (*httptest.Server, *webhooks.Engine) {
	t.Helper()
	engine, err := webhooks.New(webhooks.WithStore(memory.New()))
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(api.NewHandler(engine, nil))
	t.Cleanup(srv.Close)
	return srv, engine
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func createAPIEndpoint(t *testing.T, srv *httptest.Server) *endpoint.Endpoint {
	t.Helper()

	resp := doJSON(t, http.MethodPost, srv.URL+"/endpoints", endpoint.Input{
		Name:      "order-notifier",
		EventType: "order.created",
		URL:       "https://hooks.example.com/orders",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create endpoint: status %d", resp.StatusCode)
	}

	var ep endpoint.Endpoint
	decodeBody(t, resp, &ep)
	return &ep
}

func TestEndpointCRUD(t *testing.T) {
	srv, _ := setupAPI(t)

	ep := createAPIEndpoint(t, srv)
	if ep.ID.IsNil() {
		t.Fatal("created endpoint has no ID")
	}
	if ep.Secret != "" {
		t.Fatal("signing secret must not be serialized")
	}

	// Get.
	resp := doJSON(t, http.MethodGet, srv.URL+"/endpoints/"+ep.ID.String(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: status %d", resp.StatusCode)
	}
	var got endpoint.Endpoint
	decodeBody(t, resp, &got)
	if got.ID != ep.ID {
		t.Fatalf("get returned wrong endpoint: %s", got.ID)
	}

	// Update.
	resp = doJSON(t, http.MethodPut, srv.URL+"/endpoints/"+ep.ID.String(),
		map[string]string{"name": "renamed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: status %d", resp.StatusCode)
	}
	decodeBody(t, resp, &got)
	if got.Name != "renamed" {
		t.Fatalf("update not applied: %s", got.Name)
	}

	// List.
	resp = doJSON(t, http.MethodGet, srv.URL+"/endpoints", nil)
	var list []endpoint.Endpoint
	decodeBody(t, resp, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(list))
	}

	// Delete.
	resp = doJSON(t, http.MethodDelete, srv.URL+"/endpoints/"+ep.ID.String(), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/endpoints/"+ep.ID.String(), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: status %d", resp.StatusCode)
	}
}

func TestEndpointValidationErrors(t *testing.T) {
	srv, _ := setupAPI(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/endpoints", endpoint.Input{
		Name:      "bad",
		EventType: "order.created",
		URL:       "http://insecure.example.com",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/endpoints/not-a-typeid", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed ID, got %d", resp.StatusCode)
	}
}

func TestActivateDeactivate(t *testing.T) {
	srv, _ := setupAPI(t)
	ep := createAPIEndpoint(t, srv)

	resp := doJSON(t, http.MethodPatch, srv.URL+"/endpoints/"+ep.ID.String()+"/deactivate", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("deactivate: status %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/endpoints/"+ep.ID.String(), nil)
	var got endpoint.Endpoint
	decodeBody(t, resp, &got)
	if got.Active {
		t.Fatal("endpoint should be inactive")
	}

	resp = doJSON(t, http.MethodPatch, srv.URL+"/endpoints/"+ep.ID.String()+"/activate", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("activate: status %d", resp.StatusCode)
	}
}

func TestRotateSecretAPI(t *testing.T) {
	srv, _ := setupAPI(t)
	ep := createAPIEndpoint(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/endpoints/"+ep.ID.String()+"/rotate-secret", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotate: status %d", resp.StatusCode)
	}

	var body map[string]string
	decodeBody(t, resp, &body)
	if !strings.HasPrefix(body["secret"], "whsec_") {
		t.Fatalf("expected a fresh secret, got %q", body["secret"])
	}
}

func TestEnqueueAndInspectEvent(t *testing.T) {
	srv, _ := setupAPI(t)
	createAPIEndpoint(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/events", map[string]any{
		"event_type":      "order.created",
		"source_event_id": "ord_1001",
		"payload":         map[string]string{"order_id": "ord_1001"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("enqueue: status %d", resp.StatusCode)
	}

	var accepted struct {
		DeliveryIDs []string `json:"delivery_ids"`
	}
	decodeBody(t, resp, &accepted)
	if len(accepted.DeliveryIDs) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(accepted.DeliveryIDs))
	}

	// The record is inspectable.
	resp = doJSON(t, http.MethodGet, srv.URL+"/events/"+accepted.DeliveryIDs[0], nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get delivery: status %d", resp.StatusCode)
	}
	var rec delivery.Delivery
	decodeBody(t, resp, &rec)
	if rec.Status != delivery.StatusPending {
		t.Fatalf("expected pending, got %s", rec.Status)
	}

	// And listed.
	resp = doJSON(t, http.MethodGet, srv.URL+"/events?status=pending", nil)
	var recs []delivery.Delivery
	decodeBody(t, resp, &recs)
	if len(recs) != 1 {
		t.Fatalf("expected 1 pending record, got %d", len(recs))
	}
}

func TestEnqueueEventErrors(t *testing.T) {
	srv, _ := setupAPI(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/events", map[string]any{
		"event_type":      "order.exploded",
		"source_event_id": "ord_1",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown type: expected 400, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/events", map[string]any{
		"event_type": "order.created",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing source_event_id: expected 400, got %d", resp.StatusCode)
	}
}

func TestReplayAPI(t *testing.T) {
	srv, engine := setupAPI(t)
	createAPIEndpoint(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/events", map[string]any{
		"event_type":      "order.created",
		"source_event_id": "ord_1",
		"payload":         map[string]string{"order_id": "ord_1"},
	})
	var accepted struct {
		DeliveryIDs []string `json:"delivery_ids"`
	}
	decodeBody(t, resp, &accepted)

	resp = doJSON(t, http.MethodPost, srv.URL+"/events/"+accepted.DeliveryIDs[0]+"/replay", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("replay: status %d", resp.StatusCode)
	}

	var replay delivery.Delivery
	decodeBody(t, resp, &replay)
	if replay.ReplayOf.String() != accepted.DeliveryIDs[0] {
		t.Fatalf("replay_of mismatch: %s", replay.ReplayOf)
	}

	counts, err := engine.Stats(resp.Request.Context())
	if err != nil {
		t.Fatal(err)
	}
	if counts[delivery.StatusPending] != 2 {
		t.Fatalf("expected original plus replay pending, got %d", counts[delivery.StatusPending])
	}
}

func TestReplayMissingDelivery(t *testing.T) {
	srv, _ := setupAPI(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/events/whe_00000000000000000000000000/replay", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListEventTypes(t *testing.T) {
	srv, _ := setupAPI(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/event-types", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var defs []struct {
		Name string `json:"name"`
	}
	decodeBody(t, resp, &defs)
	if len(defs) != 8 {
		t.Fatalf("expected 8 builtin types, got %d", len(defs))
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := setupAPI(t)
	createAPIEndpoint(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/events", map[string]any{
		"event_type":      "order.created",
		"source_event_id": "ord_1",
		"payload":         map[string]string{},
	})
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var stats struct {
		Pending int64 `json:"pending"`
	}
	decodeBody(t, resp, &stats)
	if stats.Pending != 1 {
		t.Fatalf("expected 1 pending, got %d", stats.Pending)
	}
}
