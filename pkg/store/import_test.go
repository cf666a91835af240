package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgeflare/retailpipe/internal/testutil"
	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memImporter struct {
	docs    map[entity.Kind][]map[string]any
	cleared []entity.Kind
	pings   int
	readyAt int
}

func (m *memImporter) Import(_ context.Context, kind entity.Kind, docs []map[string]any, clear bool) (int, error) {
	if m.docs == nil {
		m.docs = map[entity.Kind][]map[string]any{}
	}
	if clear {
		m.cleared = append(m.cleared, kind)
		m.docs[kind] = nil
	}
	m.docs[kind] = append(m.docs[kind], docs...)
	return len(docs), nil
}

func (m *memImporter) Ping(context.Context) error {
	m.pings++
	if m.pings < m.readyAt {
		return errors.New("connection refused")
	}
	return nil
}

func (m *memImporter) Close(context.Context) error { return nil }

func TestImportDir(t *testing.T) {
	sizes := Sizes{
		Networks:  []Network{{Name: "Тест", Stores: 3, Description: "Магазин."}},
		Products:  2,
		Purchases: 5,
	}
	dir := t.TempDir()
	_, err := Write(dir, NewGenerator(DefaultSeed, sizes, anchor).Generate())
	require.NoError(t, err)

	imp := &memImporter{}
	counts, err := ImportDir(context.Background(), imp, dir, true, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, map[entity.Kind]int{
		entity.KindStore:    3,
		entity.KindProduct:  2,
		entity.KindCustomer: 3,
		entity.KindPurchase: 5,
	}, counts)
	assert.Equal(t, entity.Kinds(), imp.cleared)
	assert.Equal(t, "store-001", imp.docs[entity.KindStore][0]["store_id"])
}

func TestImportDirLogsDocumentCount(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "products"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products", "all.json"),
		[]byte(`[{"product_id":"prd-1"},{"product_id":"prd-2"},{"product_id":"prd-3"}]`), 0o644))

	core, logs := observer.New(zap.InfoLevel)
	counts, err := ImportDir(context.Background(), &memImporter{}, dir, false, zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, 3, counts[entity.KindProduct])

	read := logs.FilterMessage("collection read").FilterField(zap.String("collection", "products")).All()
	require.Len(t, read, 1)
	assert.Equal(t, int64(3), read[0].ContextMap()["documents"])
}

func TestImportDirSkipsEmptyCollections(t *testing.T) {
	imp := &memImporter{}
	counts, err := ImportDir(context.Background(), imp, testutil.Dir(), false, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, counts)
	assert.Empty(t, imp.docs)
}

func TestImportDirMissing(t *testing.T) {
	_, err := ImportDir(context.Background(), &memImporter{}, "/does/not/exist", false, zap.NewNop())
	assert.Error(t, err)
}

func TestWaitReady(t *testing.T) {
	imp := &memImporter{readyAt: 3}
	require.NoError(t, WaitReady(context.Background(), imp, 10*time.Second, zap.NewNop()))
	assert.Equal(t, 3, imp.pings)

	never := &memImporter{readyAt: 1 << 30}
	assert.Error(t, WaitReady(context.Background(), never, 300*time.Millisecond, zap.NewNop()))
}

func TestOpenImporterUnsupported(t *testing.T) {
	_, err := OpenImporter(context.Background(), "file:///tmp/data", "")
	assert.ErrorContains(t, err, "unsupported store scheme")
}
