package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/edgeflare/retailpipe/pkg/metrics"
	"github.com/edgeflare/retailpipe/pkg/pipeline/peer"
	"go.uber.org/zap"
)

func init() {
	peer.Register(peer.SchemeKafka, Open)
}

// Publisher implements peer.Publisher on a sarama AsyncProducer.
type Publisher struct {
	producer sarama.AsyncProducer
	config   *Config
	logger   *zap.Logger
	inflight *peer.InFlight

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// Open connects an async producer to the brokers named by cfg.Address.
func Open(_ context.Context, cfg peer.Config, logger *zap.Logger) (peer.Publisher, error) {
	c, err := NewConfig(cfg)
	if err != nil {
		return nil, err
	}
	conf, err := c.ToSaramaConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create sarama config: %w", err)
	}

	producer, err := sarama.NewAsyncProducer(c.GetBrokers(), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %v: %w", peer.ErrPublishFailed, c.GetBrokers(), err)
	}
	logger.Info("kafka producer connected", zap.Strings("brokers", c.GetBrokers()))
	return NewPublisher(producer, c, logger), nil
}

// NewPublisher wraps an already constructed producer. The producer must have
// Return.Successes and Return.Errors enabled.
func NewPublisher(producer sarama.AsyncProducer, config *Config, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		producer: producer,
		config:   config,
		logger:   logger,
		inflight: peer.NewInFlight(),
		done:     make(chan struct{}),
	}
	go p.dispatch()
	return p
}

// Send enqueues the message, waiting at most MaxBlock for the producer to
// accept it.
func (p *Publisher) Send(ctx context.Context, topic, key string, payload []byte) peer.Future {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return peer.Resolved(peer.ErrClosed)
	}

	pending := peer.NewPending(topic)
	msg := &sarama.ProducerMessage{
		Topic:    topic,
		Value:    sarama.ByteEncoder(payload),
		Metadata: pending,
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	p.inflight.Add()
	timer := time.NewTimer(p.config.MaxBlock)
	defer timer.Stop()

	select {
	case p.producer.Input() <- msg:
		return pending.Accept(p.config.DeliveryTimeout)
	case <-timer.C:
		p.inflight.Done()
		return peer.Resolved(fmt.Errorf("%w: topic %s: producer buffer full for %s", peer.ErrPublishTimeout, topic, p.config.MaxBlock))
	case <-ctx.Done():
		p.inflight.Done()
		return peer.Resolved(peer.ContextError(topic, ctx.Err()))
	}
}

// Flush waits until every accepted message is confirmed or failed.
func (p *Publisher) Flush(ctx context.Context) error {
	return p.inflight.Wait(ctx)
}

// Close flushes outstanding messages, bounded by DeliveryTimeout, and shuts
// the producer down. Subsequent Sends fail with peer.ErrClosed.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), p.config.DeliveryTimeout)
		defer cancel()
		p.closeErr = p.Flush(ctx)

		p.producer.AsyncClose()
		<-p.done
		p.logger.Debug("kafka producer closed")
	})
	return p.closeErr
}

// dispatch routes producer results to the futures until both result
// channels are closed.
func (p *Publisher) dispatch() {
	defer close(p.done)

	successes, errs := p.producer.Successes(), p.producer.Errors()
	for successes != nil || errs != nil {
		select {
		case msg, ok := <-successes:
			if !ok {
				successes = nil
				continue
			}
			p.resolve(msg, nil)
		case perr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.resolve(perr.Msg, perr.Err)
		}
	}
}

func (p *Publisher) resolve(msg *sarama.ProducerMessage, err error) {
	if msg == nil {
		return
	}
	pending, ok := msg.Metadata.(*peer.Pending)
	if !ok {
		return
	}
	metrics.PublishDuration.WithLabelValues(msg.Topic).Observe(pending.Elapsed().Seconds())

	if err != nil {
		p.logger.Debug("message failed", zap.String("topic", msg.Topic), zap.Error(err))
		pending.Resolve(fmt.Errorf("%w: topic %s: %w", peer.ErrPublishFailed, msg.Topic, err))
	} else {
		p.logger.Debug("message delivered",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset))
		pending.Resolve(nil)
	}
	p.inflight.Done()
}
