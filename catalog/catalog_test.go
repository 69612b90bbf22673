package catalog_test

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/storefront-kit/webhooks/catalog"
)

func TestBuiltinsAreKnown(t *testing.T) {
	r := catalog.NewRegistry()

	for _, name := range []string{
		"order.created", "order.updated", "order.cancelled", "order.fulfilled",
		"cart.abandoned", "stock.low", "review.requested", "customer.created",
	} {
		if !r.Known(name) {
			t.Errorf("builtin %q should be known", name)
		}
	}

	if r.Known("order.exploded") {
		t.Error("unknown type should not be known")
	}
}

func TestRegisterNameShape(t *testing.T) {
	r := catalog.NewRegistry()

	valid := []string{"loyalty.awarded", "gift_card.redeemed", "order.v2_created"}
	for _, name := range valid {
		if err := r.Register(catalog.Definition{Name: name}); err != nil {
			t.Errorf("Register(%q) = %v", name, err)
		}
	}

	invalid := []string{"", "order", "order.", ".created", "Order.Created", "order.created.v2", "order created"}
	for _, name := range invalid {
		if err := r.Register(catalog.Definition{Name: name}); err == nil {
			t.Errorf("Register(%q) should fail", name)
		}
	}
}

func TestRegisterReplacesDefinition(t *testing.T) {
	r := catalog.NewRegistry()

	if err := r.Register(catalog.Definition{Name: "order.created", Description: "custom"}); err != nil {
		t.Fatal(err)
	}

	def, ok := r.Lookup("order.created")
	if !ok {
		t.Fatal("definition missing after re-register")
	}
	if def.Description != "custom" {
		t.Fatalf("re-register should replace, got %q", def.Description)
	}
}

func TestListSorted(t *testing.T) {
	r := catalog.NewRegistry()
	if err := r.Register(catalog.Definition{Name: "aa.first"}); err != nil {
		t.Fatal(err)
	}

	defs := r.List()
	if len(defs) != 9 {
		t.Fatalf("expected 9 definitions, got %d", len(defs))
	}
	if !sort.SliceIsSorted(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name }) {
		t.Fatal("List must be sorted by name")
	}
}

func TestValidator(t *testing.T) {
	v := catalog.NewValidator()

	schema := json.RawMessage(`{
		"type": "object",
		"required": ["order_id"],
		"properties": {
			"order_id": {"type": "string"},
			"total": {"type": "string"}
		}
	}`)

	if err := v.Validate(schema, json.RawMessage(`{"order_id":"ord_1","total":"19.90"}`)); err != nil {
		t.Fatalf("conforming payload rejected: %v", err)
	}

	if err := v.Validate(schema, json.RawMessage(`{"total":"19.90"}`)); err == nil {
		t.Fatal("payload missing a required property must be rejected")
	}

	if err := v.Validate(schema, json.RawMessage(`{"order_id":123}`)); err == nil {
		t.Fatal("wrong property type must be rejected")
	}

	// No schema means no validation.
	if err := v.Validate(nil, json.RawMessage(`"anything"`)); err != nil {
		t.Fatalf("nil schema should accept any payload: %v", err)
	}
}
