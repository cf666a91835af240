package pipeline

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/edgeflare/retailpipe/pkg/pipeline/peer"
	"github.com/edgeflare/retailpipe/pkg/pipeline/source"
)

type memReader struct {
	records map[entity.Kind][]entity.Record
	// failAt yields a read error before the record at this index
	failAt  map[entity.Kind]int
	pingErr error
	reads   []entity.Kind
}

func (m *memReader) ReadAll(_ context.Context, kind entity.Kind) iter.Seq2[entity.Record, error] {
	m.reads = append(m.reads, kind)
	return func(yield func(entity.Record, error) bool) {
		for i, rec := range m.records[kind] {
			if at, ok := m.failAt[kind]; ok && at == i {
				yield(entity.Record{}, source.Unavailable("read "+kind.Collection(), fmt.Errorf("connection reset")))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (m *memReader) Ping(context.Context) error  { return m.pingErr }
func (m *memReader) Close(context.Context) error { return nil }

type message struct {
	topic   string
	key     string
	payload []byte
}

type countingFuture struct {
	err    error
	waited *int
	mu     *sync.Mutex
}

func (f countingFuture) Wait(context.Context) error {
	f.mu.Lock()
	*f.waited++
	f.mu.Unlock()
	return f.err
}

type memPublisher struct {
	mu       sync.Mutex
	messages []message
	// failAt fails the n-th send (1-based) to a topic
	failAt   map[string]int
	perTopic map[string]int
	// onSend runs after each send
	onSend  func(n int)
	waited  int
	flushes int
}

func newMemPublisher() *memPublisher {
	return &memPublisher{failAt: map[string]int{}, perTopic: map[string]int{}}
}

func (p *memPublisher) Send(_ context.Context, topic, key string, payload []byte) peer.Future {
	p.mu.Lock()
	p.messages = append(p.messages, message{topic: topic, key: key, payload: payload})
	p.perTopic[topic]++
	n := len(p.messages)
	var err error
	if at, ok := p.failAt[topic]; ok && p.perTopic[topic] == at {
		err = fmt.Errorf("%w: topic %s: not enough in-sync replicas", peer.ErrPublishFailed, topic)
	}
	p.mu.Unlock()

	if p.onSend != nil {
		p.onSend(n)
	}
	return countingFuture{err: err, waited: &p.waited, mu: &p.mu}
}

func (p *memPublisher) Flush(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	return nil
}

func (p *memPublisher) Close() error { return nil }

func (p *memPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.messages))
	for _, m := range p.messages {
		out = append(out, m.topic)
	}
	return out
}
