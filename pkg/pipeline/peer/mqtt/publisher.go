package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/edgeflare/retailpipe/pkg/metrics"
	"github.com/edgeflare/retailpipe/pkg/pipeline/peer"
	"go.uber.org/zap"
)

// Scheme selects this publisher in peer.Open.
const Scheme = "mqtt"

var errNoAck = errors.New("no acknowledgement from broker")

func init() {
	peer.Register(Scheme, Open)
}

// client is the part of paho.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
	Disconnect(quiesce uint)
}

type message struct {
	topic   string
	mqtt    string
	payload []byte
	pending *peer.Pending
}

// Publisher implements peer.Publisher on an MQTT session.
type Publisher struct {
	client   client
	config   *Config
	logger   *zap.Logger
	queue    chan message
	inflight *peer.InFlight

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// Open connects to the broker with a persistent session.
func Open(_ context.Context, cfg peer.Config, logger *zap.Logger) (peer.Publisher, error) {
	c, err := NewConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts, err := c.clientOptions()
	if err != nil {
		return nil, err
	}

	cl := paho.NewClient(opts)
	if err := connect(cl, c.RequestTimeout); err != nil {
		return nil, err
	}

	logger.Info("mqtt connected", zap.Strings("servers", c.Servers), zap.Uint8("qos", c.QoS))
	return newPublisher(cl, c, logger), nil
}

type connector interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
}

// connect waits at most timeout for the CONNACK. The client is disconnected
// on failure so paho stops its reconnect loop.
func connect(cl connector, timeout time.Duration) error {
	token := cl.Connect()
	if !token.WaitTimeout(timeout) {
		cl.Disconnect(0)
		return fmt.Errorf("%w: connect to MQTT broker: timed out after %s", peer.ErrPublishFailed, timeout)
	}
	if err := token.Error(); err != nil {
		cl.Disconnect(0)
		return fmt.Errorf("%w: connect to MQTT broker: %w", peer.ErrPublishFailed, err)
	}
	return nil
}

func newPublisher(cl client, config *Config, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		client:   cl,
		config:   config,
		logger:   logger,
		queue:    make(chan message, config.Pending),
		inflight: peer.NewInFlight(),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// Send queues the message, waiting at most MaxBlock for queue space.
func (p *Publisher) Send(ctx context.Context, topic, key string, payload []byte) peer.Future {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return peer.Resolved(peer.ErrClosed)
	}

	pending := peer.NewPending(topic)
	p.inflight.Add()
	timer := time.NewTimer(p.config.MaxBlock)
	defer timer.Stop()

	select {
	case p.queue <- message{topic: topic, mqtt: p.config.Topic(topic, key), payload: payload, pending: pending}:
		return pending.Accept(p.config.DeliveryTimeout)
	case <-timer.C:
		p.inflight.Done()
		return peer.Resolved(fmt.Errorf("%w: topic %s: publish queue full for %s", peer.ErrPublishTimeout, topic, p.config.MaxBlock))
	case <-ctx.Done():
		p.inflight.Done()
		return peer.Resolved(peer.ContextError(topic, ctx.Err()))
	}
}

// run publishes queued messages in order until the queue is closed. A message
// is retried up to Retries times before its future fails.
func (p *Publisher) run() {
	defer close(p.done)
	for m := range p.queue {
		err := p.publish(m)
		metrics.PublishDuration.WithLabelValues(m.topic).Observe(m.pending.Elapsed().Seconds())
		if err != nil {
			p.logger.Debug("message failed", zap.String("topic", m.mqtt), zap.Error(err))
			m.pending.Resolve(fmt.Errorf("%w: topic %s: %w", peer.ErrPublishFailed, m.topic, err))
		} else {
			p.logger.Debug("message delivered", zap.String("topic", m.mqtt))
			m.pending.Resolve(nil)
		}
		p.inflight.Done()
	}
}

func (p *Publisher) publish(m message) error {
	var err error
	for attempt := 0; attempt <= p.config.Retries; attempt++ {
		if attempt > 0 {
			time.Sleep(p.config.RetryBackoff)
		}
		token := p.client.Publish(m.mqtt, p.config.QoS, false, m.payload)
		if !token.WaitTimeout(p.config.RequestTimeout) {
			err = errNoAck
			continue
		}
		if err = token.Error(); err == nil {
			return nil
		}
	}
	return err
}

// Flush waits until every queued message is acknowledged or failed.
func (p *Publisher) Flush(ctx context.Context) error {
	return p.inflight.Wait(ctx)
}

// Close flushes, bounded by DeliveryTimeout, stops the worker and disconnects.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), p.config.DeliveryTimeout)
		defer cancel()
		p.closeErr = p.inflight.Wait(ctx)

		select {
		case <-p.done:
		case <-ctx.Done():
		}
		p.client.Disconnect(250)
		p.logger.Debug("mqtt client disconnected")
	})
	return p.closeErr
}
