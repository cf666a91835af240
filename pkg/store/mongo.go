package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/edgeflare/retailpipe/pkg/pipeline/source/mongo"
	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoImporter inserts documents with unordered bulk inserts.
type MongoImporter struct {
	client *mongodrv.Client
	db     *mongodrv.Database
}

func NewMongoImporter(ctx context.Context, uri, database string) (*MongoImporter, error) {
	client, err := mongo.Connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	return &MongoImporter{client: client, db: client.Database(database)}, nil
}

func (m *MongoImporter) Import(ctx context.Context, kind entity.Kind, docs []map[string]any, clear bool) (int, error) {
	coll := m.db.Collection(kind.Collection())
	if clear {
		if _, err := coll.DeleteMany(ctx, bson.D{}); err != nil {
			return 0, fmt.Errorf("clear %s: %w", kind.Collection(), err)
		}
	}

	batch := make([]any, 0, len(docs))
	for _, d := range docs {
		batch = append(batch, d)
	}

	res, err := coll.InsertMany(ctx, batch, options.InsertMany().SetOrdered(false))
	var n int
	if res != nil {
		n = len(res.InsertedIDs)
	}
	var bulkErr mongodrv.BulkWriteException
	if errors.As(err, &bulkErr) {
		// unordered: every document without a write error was inserted
		return len(docs) - len(bulkErr.WriteErrors), err
	}
	return n, err
}

func (m *MongoImporter) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoImporter) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
