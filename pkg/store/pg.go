package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/edgeflare/retailpipe/pkg/pipeline/source/pg"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the pending schema migrations. connString is a postgres://
// URL.
func Migrate(connString string) error {
	m, err := newMigrator(connString)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// MigrateDown rolls back every migration.
func MigrateDown(connString string) error {
	m, err := newMigrator(connString)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

func newMigrator(connString string) (*migrate.Migrate, error) {
	u, err := url.Parse(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	// the pgx/v5 migrate driver is registered for pgx5://
	u.Scheme = "pgx5"

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, u.String())
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// PGImporter inserts documents into JSONB tables with COPY.
type PGImporter struct {
	pool *pgxpool.Pool
}

// NewPGImporter migrates the schema and connects a pool.
func NewPGImporter(ctx context.Context, connString string) (*PGImporter, error) {
	pool, err := pg.NewPool(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := Migrate(connString); err != nil {
		pool.Close()
		return nil, err
	}
	return &PGImporter{pool: pool}, nil
}

func (p *PGImporter) Import(ctx context.Context, kind entity.Kind, docs []map[string]any, clear bool) (int, error) {
	table := pgx.Identifier{kind.Collection()}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if clear {
		if _, err := tx.Exec(ctx, "TRUNCATE "+table.Sanitize()); err != nil {
			return 0, fmt.Errorf("clear %s: %w", kind.Collection(), err)
		}
	}

	n, err := tx.CopyFrom(ctx, table, []string{"doc"}, pgx.CopyFromSlice(len(docs), func(i int) ([]any, error) {
		return []any{docs[i]}, nil
	}))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", kind.Collection(), err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (p *PGImporter) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PGImporter) Close(_ context.Context) error {
	p.pool.Close()
	return nil
}
