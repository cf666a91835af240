package source

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopReader struct{}

func (nopReader) ReadAll(context.Context, entity.Kind) iter.Seq2[entity.Record, error] {
	return func(func(entity.Record, error) bool) {}
}
func (nopReader) Ping(context.Context) error  { return nil }
func (nopReader) Close(context.Context) error { return nil }

func TestOpen(t *testing.T) {
	var gotConn, gotDB string
	Register(func(_ context.Context, connString, database string) (Reader, error) {
		gotConn, gotDB = connString, database
		return nopReader{}, nil
	}, "memtest")
	Register(func(context.Context, string, string) (Reader, error) {
		return nil, errors.New("connection refused")
	}, "downtest")

	t.Run("dispatches on scheme", func(t *testing.T) {
		r, err := Open(context.Background(), "MEMTEST://host:1", "piccha")
		require.NoError(t, err)
		assert.IsType(t, nopReader{}, r)
		assert.Equal(t, "MEMTEST://host:1", gotConn)
		assert.Equal(t, "piccha", gotDB)
	})

	t.Run("unknown scheme", func(t *testing.T) {
		_, err := Open(context.Background(), "redis://localhost", "")
		assert.ErrorContains(t, err, "unsupported source scheme")
		assert.NotErrorIs(t, err, ErrSourceUnavailable)
	})

	t.Run("connect failure is unavailable", func(t *testing.T) {
		_, err := Open(context.Background(), "downtest://x", "")
		assert.ErrorIs(t, err, ErrSourceUnavailable)
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestUnavailable(t *testing.T) {
	base := errors.New("boom")
	err := Unavailable("find stores", base)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, base)

	// not double wrapped
	assert.Equal(t, err, Unavailable("again", err))
}

func TestYield1(t *testing.T) {
	base := errors.New("boom")
	var errs []error
	for _, err := range Yield1(base) {
		errs = append(errs, err)
	}
	assert.Equal(t, []error{base}, errs)
}
