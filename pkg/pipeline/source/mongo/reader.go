// Package mongo reads entity collections from MongoDB.
package mongo

import (
	"context"
	"fmt"
	"iter"
	"math"
	"time"

	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/edgeflare/retailpipe/pkg/pipeline/source"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const serverSelectionTimeout = 5 * time.Second

// Reader implements source.Reader over the collections of one database.
type Reader struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects and pings the server; an unreachable server fails fast after
// the server selection timeout.
func Open(ctx context.Context, uri, database string) (source.Reader, error) {
	client, err := Connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	return &Reader{client: client, db: client.Database(database)}, nil
}

// Connect returns a pinged client.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(serverSelectionTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func (r *Reader) ReadAll(ctx context.Context, kind entity.Kind) iter.Seq2[entity.Record, error] {
	coll := kind.Collection()
	return func(yield func(entity.Record, error) bool) {
		projection := bson.D{{Key: entity.InternalIDField, Value: 0}}
		cur, err := r.db.Collection(coll).Find(ctx, bson.D{}, options.Find().SetProjection(projection))
		if err != nil {
			yield(entity.Record{}, source.Unavailable("find "+coll, err))
			return
		}
		defer cur.Close(context.WithoutCancel(ctx))

		for cur.Next(ctx) {
			var doc bson.M
			if err := cur.Decode(&doc); err != nil {
				yield(entity.Record{}, source.Unavailable("decode "+coll, err))
				return
			}
			fields := Normalize(doc).(map[string]any)
			delete(fields, entity.InternalIDField)
			if !yield(entity.Record{Kind: kind, Fields: fields}, nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(entity.Record{}, source.Unavailable("iterate "+coll, err))
		}
	}
}

func (r *Reader) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, nil); err != nil {
		return source.Unavailable("ping", err)
	}
	return nil
}

func (r *Reader) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Normalize converts BSON values into plain JSON-compatible Go values:
// documents become map[string]any, arrays []any, ObjectIDs hex strings and
// datetimes UTC time.Time. NaN and infinite doubles have no JSON form and
// become nil.
func Normalize(v any) any {
	switch t := v.(type) {
	case primitive.M:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = Normalize(e.Value)
		}
		return m
	case primitive.A:
		return normalizeSlice(t)
	case []any:
		return normalizeSlice(t)
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Decimal128:
		return t.String()
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	default:
		return v
	}
}

func normalizeMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = Normalize(v)
	}
	return out
}

func normalizeSlice(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = Normalize(v)
	}
	return out
}

func init() {
	source.Register(Open, "mongodb", "mongodb+srv")
}
