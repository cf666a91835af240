package pg

import (
	"context"
	"testing"

	"github.com/edgeflare/retailpipe/internal/testutil/pgtest"
	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/edgeflare/retailpipe/pkg/pipeline/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectSQL(t *testing.T) {
	assert.Equal(t, `SELECT doc FROM "customers" ORDER BY id`, SelectSQL(entity.KindCustomer))
}

func TestReader(t *testing.T) {
	ctx := context.Background()
	conn := pgtest.Connect(ctx, t)

	_, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS purchases (id bigserial PRIMARY KEY, doc jsonb NOT NULL)`)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = conn.Exec(context.Background(), `DROP TABLE IF EXISTS purchases`) })
	_, err = conn.Exec(ctx, `INSERT INTO purchases (doc) VALUES ('{"_id": "y", "purchase_id": "ord-00001"}'), ('{"purchase_id": "ord-00002"}')`)
	require.NoError(t, err)

	r, err := source.Open(ctx, pgtest.ParseConfig(t).ConnString(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(ctx) })

	var keys []string
	for rec, err := range r.ReadAll(ctx, entity.KindPurchase) {
		require.NoError(t, err)
		assert.NotContains(t, rec.Fields, "_id")
		keys = append(keys, rec.Key())
	}
	assert.Equal(t, []string{"ord-00001", "ord-00002"}, keys)

	var errs []error
	for _, err := range r.ReadAll(ctx, entity.KindStore) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1, "missing table surfaces as a single error")
	assert.ErrorIs(t, errs[0], source.ErrSourceUnavailable)
}
