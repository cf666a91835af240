// Package debug provides a Publisher that logs messages instead of sending
// them. Every message is confirmed immediately, which makes it useful for dry
// runs against a real source.
package debug

import (
	"context"
	"sync"

	"github.com/edgeflare/retailpipe/pkg/pipeline/peer"
	"go.uber.org/zap"
)

const Scheme = "debug"

func init() {
	peer.Register(Scheme, Open)
}

// Publisher logs each message and counts them per topic.
type Publisher struct {
	logger      *zap.Logger
	withPayload bool

	mu     sync.Mutex
	counts map[string]int
	closed bool
}

// Open returns a debug Publisher. Setting the "payload" option logs message
// bodies too.
func Open(_ context.Context, cfg peer.Config, logger *zap.Logger) (peer.Publisher, error) {
	p := New(logger)
	p.withPayload, _ = cfg.Options["payload"].(bool)
	return p, nil
}

func New(logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{logger: logger, counts: make(map[string]int)}
}

func (p *Publisher) Send(_ context.Context, topic, key string, payload []byte) peer.Future {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return peer.Resolved(peer.ErrClosed)
	}
	p.counts[topic]++

	fields := []zap.Field{
		zap.String("topic", topic),
		zap.String("key", key),
		zap.Int("bytes", len(payload)),
	}
	if p.withPayload {
		fields = append(fields, zap.ByteString("payload", payload))
	}
	p.logger.Info(Scheme, fields...)
	return peer.Resolved(nil)
}

// Count returns the number of messages sent to topic.
func (p *Publisher) Count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[topic]
}

func (p *Publisher) Flush(context.Context) error { return nil }

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
