package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/storefront-kit/webhooks/id"
)

func TestNewHasPrefix(t *testing.T) {
	ep := id.NewEndpointID()
	if !strings.HasPrefix(ep.String(), "hook_") {
		t.Fatalf("unexpected endpoint ID %s", ep)
	}

	del := id.NewDeliveryID()
	if !strings.HasPrefix(del.String(), "whe_") {
		t.Fatalf("unexpected delivery ID %s", del)
	}

	if ep.IsNil() || del.IsNil() {
		t.Fatal("generated IDs must not be nil")
	}
}

func TestParseRoundtrip(t *testing.T) {
	orig := id.NewDeliveryID()

	parsed, err := id.ParseDeliveryID(orig.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != orig {
		t.Fatalf("roundtrip mismatch: %s != %s", parsed, orig)
	}
}

func TestParseRejectsWrongPrefix(t *testing.T) {
	ep := id.NewEndpointID()

	if _, err := id.ParseDeliveryID(ep.String()); err == nil {
		t.Fatal("endpoint ID must not parse as a delivery ID")
	}
	if _, err := id.ParseEndpointID(""); err == nil {
		t.Fatal("empty string must not parse")
	}
	if _, err := id.Parse("not a typeid"); err == nil {
		t.Fatal("malformed string must not parse")
	}
}

func TestJSONRoundtrip(t *testing.T) {
	type doc struct {
		ID       id.ID `json:"id"`
		Optional id.ID `json:"optional,omitempty"`
	}

	in := doc{ID: id.NewDeliveryID()}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}

	var out doc
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID != in.ID {
		t.Fatalf("roundtrip mismatch: %s != %s", out.ID, in.ID)
	}
	if !out.Optional.IsNil() {
		t.Fatal("absent ID must unmarshal to Nil")
	}
}
