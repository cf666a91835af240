package mongo

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNormalize(t *testing.T) {
	oid := primitive.NewObjectID()
	ts := time.Date(2025, 9, 1, 10, 15, 0, 0, time.UTC)

	doc := bson.M{
		"_id":         oid,
		"customer_id": "cus-1000",
		"registered":  primitive.NewDateTimeFromTime(ts),
		"manager":     bson.D{{Key: "name", Value: "A"}, {Key: "email", Value: "a@b.com"}},
		"labels":      bson.A{"milk", bson.M{"code": "grains"}},
		"count":       int32(3),
	}

	got := Normalize(doc)
	assert.Equal(t, map[string]any{
		"_id":         oid.Hex(),
		"customer_id": "cus-1000",
		"registered":  ts,
		"manager":     map[string]any{"name": "A", "email": "a@b.com"},
		"labels":      []any{"milk", map[string]any{"code": "grains"}},
		"count":       int32(3),
	}, got)
}

func TestNormalizeNonFiniteDoubles(t *testing.T) {
	got := Normalize(bson.M{
		"rating":  math.NaN(),
		"ceiling": math.Inf(1),
		"scores":  bson.A{1.5, math.Inf(-1)},
	}).(map[string]any)

	assert.Equal(t, map[string]any{
		"rating":  nil,
		"ceiling": nil,
		"scores":  []any{1.5, nil},
	}, got)

	payload, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rating":null,"ceiling":null,"scores":[1.5,null]}`, string(payload))
}
