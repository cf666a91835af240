package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/edgeflare/retailpipe/pkg/pipeline/source/file"
	"go.uber.org/zap"
)

// Importer loads documents into one collection of a store.
type Importer interface {
	// Import inserts docs into the collection of kind, emptying it first when
	// clear is set. It returns the number of inserted documents.
	Import(ctx context.Context, kind entity.Kind, docs []map[string]any, clear bool) (int, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// OpenImporter selects the importer by the scheme of uri. MongoDB inserts
// unordered, so one rejected document does not stop the rest; PostgreSQL
// loads each collection in one transaction.
func OpenImporter(ctx context.Context, uri, database string) (Importer, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse store uri: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "mongodb", "mongodb+srv":
		return NewMongoImporter(ctx, uri, database)
	case "postgres", "postgresql":
		return NewPGImporter(ctx, uri)
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
}

// WaitReady pings the store with exponential backoff until it answers or
// maxWait elapsed.
func WaitReady(ctx context.Context, imp Importer, maxWait time.Duration, logger *zap.Logger) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = maxWait

	return backoff.RetryNotify(func() error {
		return imp.Ping(ctx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		logger.Warn("store not ready", zap.Error(err), zap.Duration("retry_in", next))
	})
}

// ImportDir loads every collection found under dir. Collections without
// files are skipped. It returns the number of inserted documents per kind.
func ImportDir(ctx context.Context, imp Importer, dir string, clear bool, logger *zap.Logger) (map[entity.Kind]int, error) {
	r := file.New(dir)
	if err := r.Ping(ctx); err != nil {
		return nil, err
	}

	counts := make(map[entity.Kind]int)
	for _, kind := range entity.Kinds() {
		var docs []map[string]any
		for rec, err := range r.ReadAll(ctx, kind) {
			if err != nil {
				return counts, err
			}
			docs = append(docs, rec.Fields)
		}
		logger.Info("collection read", zap.String("collection", kind.Collection()), zap.Int("documents", len(docs)))
		if len(docs) == 0 {
			continue
		}

		n, err := imp.Import(ctx, kind, docs, clear)
		counts[kind] = n
		if err != nil {
			return counts, fmt.Errorf("import %s: %w", kind.Collection(), err)
		}
		logger.Info("collection imported", zap.String("collection", kind.Collection()), zap.Int("inserted", n))
	}
	return counts, nil
}
