package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/edgeflare/retailpipe/pkg/pipeline/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func settledToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	msgs         []published
	failures     int // number of leading attempts rejected
	attempts     int
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload any) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.attempts <= c.failures {
		return settledToken(errors.New("not connected"))
	}
	c.msgs = append(c.msgs, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return settledToken(nil)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs
}

func testConfig(t *testing.T, retries int) *Config {
	t.Helper()
	c, err := NewConfig(peer.Config{Address: "mqtt://localhost:1883", Retries: retries, RetryBackoff: time.Millisecond})
	require.NoError(t, err)
	return c
}

func TestNewConfig(t *testing.T) {
	c, err := NewConfig(peer.Config{
		Address: "mqtt://a:1883,b:1883",
		Options: map[string]any{"topicPrefix": "/shop/", "qos": 2},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"tcp://a:1883", "tcp://b:1883"}, c.Servers)
	assert.Equal(t, byte(2), c.QoS)
	assert.Equal(t, "shop/customers/cus-1", c.Topic("customers", "cus-1"))
	assert.Equal(t, "shop/customers", c.Topic("customers", ""))
	assert.Equal(t, "shop/stores/a_b_c_", c.Topic("stores", "a/b+c#"))

	_, err = NewConfig(peer.Config{Options: map[string]any{"qos": 3}})
	assert.Error(t, err)

	c, err = NewConfig(peer.Config{})
	require.NoError(t, err)
	assert.Equal(t, byte(1), c.QoS)
	assert.Equal(t, []string{"tcp://127.0.0.1:1883"}, c.Servers)
}

func TestPublisherPublishesInOrder(t *testing.T) {
	cl := &fakeClient{}
	p := newPublisher(cl, testConfig(t, 0), nil)
	ctx := context.Background()

	f1 := p.Send(ctx, "customers", "cus-1", []byte(`{"n":1}`))
	f2 := p.Send(ctx, "customers", "cus-2", []byte(`{"n":2}`))
	require.NoError(t, f1.Wait(ctx))
	require.NoError(t, f2.Wait(ctx))
	require.NoError(t, p.Flush(ctx))

	msgs := cl.sent()
	require.Len(t, msgs, 2)
	assert.Equal(t, "retail/customers/cus-1", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)
	assert.Equal(t, `{"n":2}`, string(msgs[1].payload))

	require.NoError(t, p.Close())
	assert.True(t, cl.disconnected)
	assert.ErrorIs(t, p.Send(ctx, "customers", "cus-3", nil).Wait(ctx), peer.ErrClosed)
}

func TestPublisherRetries(t *testing.T) {
	cl := &fakeClient{failures: 2}
	p := newPublisher(cl, testConfig(t, 2), nil)
	defer p.Close()

	require.NoError(t, peer.Publish(context.Background(), p, "products", "prd-1", []byte("{}")))
	assert.Len(t, cl.sent(), 1)
}

func TestPublisherFailsAfterRetries(t *testing.T) {
	cl := &fakeClient{failures: 5}
	p := newPublisher(cl, testConfig(t, 1), nil)
	defer p.Close()

	err := peer.Publish(context.Background(), p, "products", "prd-1", []byte("{}"))
	assert.ErrorIs(t, err, peer.ErrPublishFailed)
	assert.Contains(t, err.Error(), "not connected")
	assert.Equal(t, 2, cl.attempts)
}

type fakeConnector struct {
	token        paho.Token
	disconnected bool
}

func (c *fakeConnector) Connect() paho.Token { return c.token }
func (c *fakeConnector) Disconnect(uint)     { c.disconnected = true }

func TestConnect(t *testing.T) {
	testCases := []struct {
		name    string
		token   paho.Token
		wantErr bool
	}{
		{"accepted", settledToken(nil), false},
		{"refused", settledToken(errors.New("not authorized")), true},
		{"no connack", &fakeToken{done: make(chan struct{})}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cl := &fakeConnector{token: tc.token}
			err := connect(cl, 20*time.Millisecond)
			if !tc.wantErr {
				require.NoError(t, err)
				assert.False(t, cl.disconnected)
				return
			}
			assert.ErrorIs(t, err, peer.ErrPublishFailed)
			assert.True(t, cl.disconnected, "failed connect releases the client")
		})
	}
}
