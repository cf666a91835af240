package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Opener constructs a Reader for a connection string and database name.
type Opener func(ctx context.Context, connString, database string) (Reader, error)

var (
	openers = make(map[string]Opener)
	mu      sync.RWMutex
)

// Register makes a Reader implementation available for the given URL schemes.
func Register(opener Opener, schemes ...string) {
	mu.Lock()
	defer mu.Unlock()
	for _, s := range schemes {
		openers[s] = opener
	}
}

// Open connects to the store named by connString. The scheme selects the
// implementation, eg mongodb://, postgres:// or file://.
func Open(ctx context.Context, connString, database string) (Reader, error) {
	u, err := url.Parse(connString)
	if err != nil {
		return nil, fmt.Errorf("parse source connection string: %w", err)
	}

	mu.RLock()
	opener, ok := openers[strings.ToLower(u.Scheme)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported source scheme %q", u.Scheme)
	}

	r, err := opener(ctx, connString, database)
	if err != nil {
		return nil, Unavailable("connect", err)
	}
	return r, nil
}
