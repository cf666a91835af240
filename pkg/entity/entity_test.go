package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKinds(t *testing.T) {
	assert.Equal(t, []Kind{KindStore, KindProduct, KindCustomer, KindPurchase}, Kinds())

	testCases := []struct {
		kind    Kind
		idField string
		topic   string
		pii     bool
	}{
		{KindStore, "store_id", "stores", true},
		{KindProduct, "product_id", "products", false},
		{KindCustomer, "customer_id", "customers", true},
		{KindPurchase, "purchase_id", "purchases", false},
	}

	for _, tc := range testCases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			assert.Equal(t, tc.idField, tc.kind.IDField())
			assert.Equal(t, tc.topic, tc.kind.Topic())
			assert.Equal(t, tc.topic, tc.kind.Collection())
			assert.Equal(t, tc.pii, tc.kind.HasPII())
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("customers")
	require.NoError(t, err)
	assert.Equal(t, KindCustomer, k)

	k, err = ParseKind("store")
	require.NoError(t, err)
	assert.Equal(t, KindStore, k)

	_, err = ParseKind("orders")
	assert.Error(t, err)
}

func TestRecordKey(t *testing.T) {
	testCases := []struct {
		name   string
		record Record
		want   string
	}{
		{"customer id", Record{Kind: KindCustomer, Fields: map[string]any{"customer_id": "cus-1000"}}, "cus-1000"},
		{"missing id", Record{Kind: KindProduct, Fields: map[string]any{"name": "x"}}, ""},
		{"nil id", Record{Kind: KindStore, Fields: map[string]any{"store_id": nil}}, ""},
		{"numeric id", Record{Kind: KindPurchase, Fields: map[string]any{"purchase_id": float64(42)}}, "42"},
		{"other kind's id ignored", Record{Kind: KindPurchase, Fields: map[string]any{"customer_id": "cus-1"}}, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.record.Key())
		})
	}
}

func TestRecordClone(t *testing.T) {
	orig := Record{Kind: KindStore, Fields: map[string]any{
		"store_id": "store-001",
		"manager":  map[string]any{"name": "A", "email": "a@b.com"},
		"labels":   []any{"x", map[string]any{"y": 1}},
	}}

	c := orig.Clone()
	c.Fields["manager"].(map[string]any)["email"] = "changed"
	c.Fields["labels"].([]any)[1].(map[string]any)["y"] = 2
	delete(c.Fields, "store_id")

	assert.Equal(t, "a@b.com", orig.Fields["manager"].(map[string]any)["email"])
	assert.Equal(t, 1, orig.Fields["labels"].([]any)[1].(map[string]any)["y"])
	assert.Equal(t, "store-001", orig.Fields["store_id"])
}
