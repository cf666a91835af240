// Package source defines the Entity Reader: the component that streams raw
// documents of one entity kind out of the operational store.
package source

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/edgeflare/retailpipe/pkg/entity"
)

// ErrSourceUnavailable reports that the backing store cannot be reached or read.
var ErrSourceUnavailable = errors.New("source unavailable")

// Reader iterates the collection backing an entity kind.
//
// ReadAll returns a finite sequence of every record present at call time, with the
// internal storage identifier excluded. Each call starts a fresh cursor, so the
// sequence may be ranged over again and by concurrent callers. A read error is
// yielded once (wrapping ErrSourceUnavailable) and ends the sequence. Readers never
// retry.
type Reader interface {
	ReadAll(ctx context.Context, kind entity.Kind) iter.Seq2[entity.Record, error]
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Unavailable wraps err with ErrSourceUnavailable unless it already is one.
func Unavailable(op string, err error) error {
	if errors.Is(err, ErrSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, op, err)
}

// Yield1 is a sequence that yields a single error.
func Yield1(err error) iter.Seq2[entity.Record, error] {
	return func(yield func(entity.Record, error) bool) {
		yield(entity.Record{}, err)
	}
}
