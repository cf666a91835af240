// Package file reads entity collections from a directory of JSON documents laid
// out as <dir>/<collection>/*.json, the format written by `retailpipe generate`.
// A file holds either one document or an array of documents.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"slices"

	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/edgeflare/retailpipe/pkg/pipeline/source"
)

// Reader implements source.Reader over a fixture directory.
type Reader struct {
	dir string
}

// New returns a Reader rooted at dir.
func New(dir string) *Reader {
	return &Reader{dir: dir}
}

// Open accepts file:///abs/path or file://relative/path.
func Open(ctx context.Context, connString, _ string) (source.Reader, error) {
	u, err := url.Parse(connString)
	if err != nil {
		return nil, err
	}
	dir := u.Host + u.Path
	r := New(dir)
	if err := r.Ping(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) ReadAll(ctx context.Context, kind entity.Kind) iter.Seq2[entity.Record, error] {
	return func(yield func(entity.Record, error) bool) {
		paths, err := r.files(kind)
		if err != nil {
			yield(entity.Record{}, source.Unavailable("list "+kind.Collection(), err))
			return
		}

		for _, p := range paths {
			if err := ctx.Err(); err != nil {
				yield(entity.Record{}, err)
				return
			}
			docs, err := ReadDocuments(p)
			if err != nil {
				yield(entity.Record{}, source.Unavailable("read "+p, err))
				return
			}
			for _, doc := range docs {
				delete(doc, entity.InternalIDField)
				if !yield(entity.Record{Kind: kind, Fields: doc}, nil) {
					return
				}
			}
		}
	}
}

// files lists the collection's documents in name order. A missing collection
// directory is an empty collection.
func (r *Reader) files(kind entity.Kind) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(r.dir, kind.Collection(), "*.json"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	return paths, nil
}

// ReadDocuments decodes a file holding one JSON object or an array of them.
func ReadDocuments(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	switch v := raw.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		docs := make([]map[string]any, 0, len(v))
		for i, item := range v {
			doc, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s: element %d is not an object", path, i)
			}
			docs = append(docs, doc)
		}
		return docs, nil
	default:
		return nil, fmt.Errorf("%s: expected object or array", path)
	}
}

func (r *Reader) Ping(_ context.Context) error {
	info, err := os.Stat(r.dir)
	if err != nil {
		return source.Unavailable("stat "+r.dir, err)
	}
	if !info.IsDir() {
		return source.Unavailable("stat "+r.dir, &fs.PathError{Op: "open", Path: r.dir, Err: errors.New("not a directory")})
	}
	return nil
}

func (r *Reader) Close(_ context.Context) error { return nil }

func init() {
	source.Register(Open, "file")
}
