// Package pg reads entity collections stored as JSONB documents in PostgreSQL.
//
// Each collection is a table with a surrogate key and a single document column:
//
//	CREATE TABLE customers (id bigserial PRIMARY KEY, doc jsonb NOT NULL);
//
// Tables are resolved through the connection's search_path.
package pg

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/edgeflare/retailpipe/pkg/pipeline/source"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Reader implements source.Reader on a pgx connection pool.
type Reader struct {
	pool *pgxpool.Pool
}

// Open creates a pool for connString and pings it. The database name is
// already part of the connection string and is ignored.
func Open(ctx context.Context, connString, _ string) (source.Reader, error) {
	pool, err := NewPool(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &Reader{pool: pool}, nil
}

// NewPool returns a pinged pool.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	if connString == "" {
		return nil, errors.New("connection string must be provided")
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping connection: %w", err)
	}

	return pool, nil
}

// SelectSQL returns the query listing all documents of a kind.
func SelectSQL(kind entity.Kind) string {
	return fmt.Sprintf("SELECT doc FROM %s ORDER BY id", pgx.Identifier{kind.Collection()}.Sanitize())
}

func (r *Reader) ReadAll(ctx context.Context, kind entity.Kind) iter.Seq2[entity.Record, error] {
	coll := kind.Collection()
	return func(yield func(entity.Record, error) bool) {
		rows, err := r.pool.Query(ctx, SelectSQL(kind))
		if err != nil {
			yield(entity.Record{}, source.Unavailable("query "+coll, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var doc map[string]any
			if err := rows.Scan(&doc); err != nil {
				yield(entity.Record{}, source.Unavailable("scan "+coll, err))
				return
			}
			if doc == nil {
				doc = map[string]any{}
			}
			delete(doc, entity.InternalIDField)
			if !yield(entity.Record{Kind: kind, Fields: doc}, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(entity.Record{}, source.Unavailable("iterate "+coll, err))
		}
	}
}

func (r *Reader) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return source.Unavailable("ping", err)
	}
	return nil
}

func (r *Reader) Close(_ context.Context) error {
	r.pool.Close()
	return nil
}

func init() {
	source.Register(Open, "postgres", "postgresql")
}
