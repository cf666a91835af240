package transform

import (
	"testing"

	"github.com/edgeflare/retailpipe/internal/testutil"
	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain(t *testing.T) {
	m := NewManager()
	m.RegisterBuiltins()

	chain, err := m.Chain([]Transformation{
		StripInternalID(),
		SanitizeWithSalt(testSalt),
		{Type: TypeDrop, Config: map[string]any{"fields": []string{"birth_date"}}},
	})
	require.NoError(t, err)

	rec := testutil.LoadRecord(t, entity.KindCustomer).Clone()
	out, err := chain(&rec)
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.NotContains(t, out.Fields, "_id")
	assert.NotContains(t, out.Fields, "birth_date")
	assert.NotContains(t, out.Fields, "email")
	assert.Equal(t, digest("+79991234567"), out.Fields["phone_hash"])
}

func TestChainErrors(t *testing.T) {
	m := NewManager()
	m.RegisterBuiltins()

	t.Run("unknown type", func(t *testing.T) {
		_, err := m.Chain([]Transformation{{Type: "encrypt"}})
		assert.Error(t, err)
	})

	t.Run("invalid drop config", func(t *testing.T) {
		_, err := m.Chain([]Transformation{{Type: TypeDrop}})
		assert.Error(t, err)
	})

	t.Run("not registered", func(t *testing.T) {
		_, err := NewManager().Chain([]Transformation{StripInternalID()})
		assert.Error(t, err)
	})
}

func TestChainFilter(t *testing.T) {
	r := NewRegistry()
	r.Register("reject", func(Config) Func {
		return func(*entity.Record) (*entity.Record, error) { return nil, nil }
	})
	factory, err := r.Get("reject")
	require.NoError(t, err)

	out, err := factory(nil)(&entity.Record{Kind: entity.KindProduct})
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestDrop(t *testing.T) {
	rec := entity.Record{Kind: entity.KindProduct, Fields: map[string]any{"_id": "x", "product_id": "prd-1"}}
	out, err := Drop(&DropConfig{Fields: []string{"_id", "absent"}})(&rec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"product_id": "prd-1"}, out.Fields)

	_, err = Drop(&DropConfig{Fields: []string{"_id"}})(nil)
	assert.Error(t, err)
}
