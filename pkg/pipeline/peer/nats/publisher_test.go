package nats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edgeflare/retailpipe/pkg/pipeline/peer"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJetStream struct {
	mu   sync.Mutex
	msgs []*nats.Msg
	fail map[string]error
	hold chan struct{}
}

func (f *fakeJetStream) PublishMsg(m *nats.Msg, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.hold != nil {
		<-f.hold
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[m.Header.Get(HeaderKey)]; err != nil {
		return nil, err
	}
	f.msgs = append(f.msgs, m)
	return &nats.PubAck{Stream: "RETAIL", Sequence: uint64(len(f.msgs))}, nil
}

func (f *fakeJetStream) published() []*nats.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	c, err := NewConfig(peer.Config{Address: "nats://localhost:4222"})
	require.NoError(t, err)
	return c
}

func TestNewConfig(t *testing.T) {
	c, err := NewConfig(peer.Config{
		Address: "nats://a:4222,b:4222",
		Options: map[string]any{"subjectPrefix": "shop"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, c.Servers)
	assert.Equal(t, "SHOP", c.Stream)
	assert.Equal(t, "shop.customers", c.Subject("customers"))
	assert.Equal(t, 256, c.Pending)
	assert.Equal(t, 10*time.Second, c.MaxBlock)
}

func TestPublisherPublishesInOrder(t *testing.T) {
	js := &fakeJetStream{}
	p := newPublisher(js, testConfig(t), nil)
	ctx := context.Background()

	f1 := p.Send(ctx, "customers", "cus-1", []byte(`{"n":1}`))
	f2 := p.Send(ctx, "customers", "", []byte(`{"n":2}`))
	require.NoError(t, f1.Wait(ctx))
	require.NoError(t, f2.Wait(ctx))
	require.NoError(t, p.Flush(ctx))

	msgs := js.published()
	require.Len(t, msgs, 2)
	assert.Equal(t, "retail.customers", msgs[0].Subject)
	assert.Equal(t, "cus-1", msgs[0].Header.Get(HeaderKey))
	assert.Equal(t, `{"n":1}`, string(msgs[0].Data))
	assert.Empty(t, msgs[1].Header.Get(HeaderKey))
	require.NoError(t, p.Close())
}

func TestPublisherFailure(t *testing.T) {
	js := &fakeJetStream{fail: map[string]error{"prd-5": nats.ErrNoStreamResponse}}
	p := newPublisher(js, testConfig(t), nil)

	err := peer.Publish(context.Background(), p, "products", "prd-5", []byte(`{}`))
	assert.ErrorIs(t, err, peer.ErrPublishFailed)
	assert.ErrorIs(t, err, nats.ErrNoStreamResponse)
	require.NoError(t, p.Close())
}

func TestPublisherQueueFull(t *testing.T) {
	js := &fakeJetStream{hold: make(chan struct{})}
	c := testConfig(t)
	c.Pending = 1
	c.MaxBlock = 20 * time.Millisecond
	p := newPublisher(js, c, nil)
	ctx := context.Background()

	// the worker holds the first message, the queue holds the second
	first := p.Send(ctx, "stores", "sto-1", nil)
	require.Eventually(t, func() bool { return len(p.queue) == 0 }, time.Second, time.Millisecond)
	second := p.Send(ctx, "stores", "sto-2", nil)
	third := p.Send(ctx, "stores", "sto-3", nil)

	err := third.Wait(ctx)
	assert.ErrorIs(t, err, peer.ErrPublishTimeout)

	close(js.hold)
	require.NoError(t, first.Wait(ctx))
	require.NoError(t, second.Wait(ctx))
	require.NoError(t, p.Close())
	assert.Len(t, js.published(), 2)
}

func TestPublisherClosed(t *testing.T) {
	p := newPublisher(&fakeJetStream{}, testConfig(t), nil)
	require.NoError(t, p.Close())

	err := p.Send(context.Background(), "stores", "sto-1", nil).Wait(context.Background())
	assert.True(t, errors.Is(err, peer.ErrClosed))
}

func TestStreamConfigEqual(t *testing.T) {
	a := nats.StreamConfig{Name: "RETAIL", Subjects: []string{"retail.>"}, Storage: nats.FileStorage, Replicas: 1}
	b := a
	assert.True(t, streamConfigEqual(a, b))

	b.Subjects = []string{"shop.>"}
	assert.False(t, streamConfigEqual(a, b))
}
