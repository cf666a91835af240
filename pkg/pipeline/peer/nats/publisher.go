package nats

import (
	"cmp"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/edgeflare/retailpipe/pkg/metrics"
	"github.com/edgeflare/retailpipe/pkg/pipeline/peer"
	"github.com/mitchellh/mapstructure"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Scheme selects this publisher in peer.Open.
const Scheme = "nats"

// HeaderKey carries the message key.
const HeaderKey = "Retail-Key"

func init() {
	peer.Register(Scheme, Open)
}

// Config represents NATS configuration, decoded from peer.Config.Options.
type Config struct {
	Servers       []string `mapstructure:"-"`
	Stream        string   `mapstructure:"stream"`
	SubjectPrefix string   `mapstructure:"subjectPrefix"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
	// Pending bounds the number of accepted, unpublished messages.
	Pending int `mapstructure:"pending"`
	TLS     struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"certFile"`
		KeyFile  string `mapstructure:"keyFile"`
		CAFile   string `mapstructure:"caFile"`
	} `mapstructure:"tls"`

	Retries         int           `mapstructure:"-"`
	RetryBackoff    time.Duration `mapstructure:"-"`
	RequestTimeout  time.Duration `mapstructure:"-"`
	MaxBlock        time.Duration `mapstructure:"-"`
	DeliveryTimeout time.Duration `mapstructure:"-"`
}

// NewConfig derives the NATS configuration from the generic publisher config.
func NewConfig(cfg peer.Config) (*Config, error) {
	def := peer.DefaultConfig()

	c := &Config{}
	if err := mapstructure.Decode(cfg.Options, c); err != nil {
		return nil, fmt.Errorf("decode nats options: %w", err)
	}

	_, hosts := peer.SplitAddress(cfg.Address)
	for _, h := range hosts {
		c.Servers = append(c.Servers, "nats://"+h)
	}
	if len(c.Servers) == 0 {
		c.Servers = []string{nats.DefaultURL}
	}
	c.SubjectPrefix = cmp.Or(c.SubjectPrefix, "retail")
	c.Stream = cmp.Or(c.Stream, strings.ToUpper(c.SubjectPrefix))
	c.Pending = cmp.Or(c.Pending, 256)
	c.Retries = cfg.Retries
	c.RetryBackoff = cmp.Or(cfg.RetryBackoff, def.RetryBackoff)
	c.RequestTimeout = cmp.Or(cfg.RequestTimeout, def.RequestTimeout)
	c.MaxBlock = cmp.Or(cfg.MaxBlock, def.MaxBlock)
	c.DeliveryTimeout = cmp.Or(cfg.DeliveryTimeout, def.DeliveryTimeout)
	return c, nil
}

// Subject returns the subject a topic is published to.
func (c *Config) Subject(topic string) string {
	return c.SubjectPrefix + "." + topic
}

// jetStream is the part of nats.JetStreamContext the publisher uses.
type jetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type message struct {
	msg     *nats.Msg
	topic   string
	pending *peer.Pending
}

// Publisher implements peer.Publisher on JetStream.
type Publisher struct {
	nc       *nats.Conn
	js       jetStream
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

// Open connects to the first reachable server and ensures the stream exists.
func Open(_ context.Context, cfg peer.Config, logger *zap.Logger) (peer.Publisher, error) {
	c, err := NewConfig(cfg)
	if err != nil {
		return nil, err
	}

	opts := defaultOptions(c)
	var nc *nats.Conn
	for _, server := range c.Servers {
		nc, err = nats.Connect(server, opts...)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: connect to NATS server: %w", peer.ErrPublishFailed, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if err := ensureStream(js, c, logger); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	logger.Info("nats connected", zap.String("url", nc.ConnectedUrl()), zap.String("stream", c.Stream))
	p := newPublisher(js, c, logger)
	p.nc = nc
	return p, nil
}

func newPublisher(js jetStream, config *Config, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		js:       js,
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

	msg := nats.NewMsg(p.config.Subject(topic))
	msg.Data = payload
	if key != "" {
		msg.Header.Set(HeaderKey, key)
	}

	pending := peer.NewPending(topic)
	p.inflight.Add()
	timer := time.NewTimer(p.config.MaxBlock)
	defer timer.Stop()

	select {
	case p.queue <- message{msg: msg, topic: topic, pending: pending}:
		return pending.Accept(p.config.DeliveryTimeout)
	case <-timer.C:
		p.inflight.Done()
		return peer.Resolved(fmt.Errorf("%w: topic %s: publish queue full for %s", peer.ErrPublishTimeout, topic, p.config.MaxBlock))
	case <-ctx.Done():
		p.inflight.Done()
		return peer.Resolved(peer.ContextError(topic, ctx.Err()))
	}
}

// run publishes queued messages in order until the queue is closed.
func (p *Publisher) run() {
	defer close(p.done)
	for m := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.DeliveryTimeout)
		ack, err := p.js.PublishMsg(m.msg,
			nats.Context(ctx),
			nats.RetryAttempts(p.config.Retries),
			nats.RetryWait(p.config.RetryBackoff),
		)
		cancel()

		metrics.PublishDuration.WithLabelValues(m.topic).Observe(m.pending.Elapsed().Seconds())
		if err != nil {
			p.logger.Debug("message failed", zap.String("topic", m.topic), zap.Error(err))
			m.pending.Resolve(fmt.Errorf("%w: topic %s: %w", peer.ErrPublishFailed, m.topic, err))
		} else {
			p.logger.Debug("message delivered",
				zap.String("topic", m.topic),
				zap.String("stream", ack.Stream),
				zap.Uint64("sequence", ack.Sequence))
			m.pending.Resolve(nil)
		}
		p.inflight.Done()
	}
}

// Flush waits until every queued message is acknowledged or failed, then
// flushes the connection buffer.
func (p *Publisher) Flush(ctx context.Context) error {
	if err := p.inflight.Wait(ctx); err != nil {
		return err
	}
	if p.nc == nil {
		return nil
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: flush: %w", peer.ErrPublishFailed, err)
	}
	return nil
}

// Close flushes, bounded by DeliveryTimeout, stops the worker and closes the
// connection.
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
		if p.nc != nil {
			p.nc.Close()
		}
	})
	return p.closeErr
}

// ensureStream creates or updates the stream capturing the prefix
func ensureStream(js nats.JetStreamContext, c *Config, logger *zap.Logger) error {
	config := &nats.StreamConfig{
		Name:     c.Stream,
		Subjects: []string{c.SubjectPrefix + ".>"},
		Storage:  nats.FileStorage,
		Replicas: 1,
	}

	stream, err := js.StreamInfo(c.Stream)
	if err == nil {
		if !streamConfigEqual(stream.Config, *config) {
			if _, err = js.UpdateStream(config); err != nil {
				return fmt.Errorf("update stream: %w", err)
			}
			logger.Info("stream updated", zap.String("stream", c.Stream))
		}
		return nil
	}

	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("get stream info: %w", err)
	}

	if _, err := js.AddStream(config); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	logger.Info("stream created", zap.String("stream", c.Stream))
	return nil
}

// streamConfigEqual checks if two nats.StreamConfig are equivalent
func streamConfigEqual(a, b nats.StreamConfig) bool {
	if a.Name != b.Name || a.Storage != b.Storage || a.Replicas != b.Replicas {
		return false
	}

	if len(a.Subjects) != len(b.Subjects) {
		return false
	}

	for i := range a.Subjects {
		if a.Subjects[i] != b.Subjects[i] {
			return false
		}
	}
	return true
}

func defaultOptions(c *Config) []nats.Option {
	opts := []nats.Option{
		nats.Name("retailpipe"),
		nats.Timeout(c.RequestTimeout),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.MaxReconnects(c.Retries),
		nats.ReconnectWait(c.RetryBackoff),
	}

	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}

	if c.TLS.Enabled {
		if c.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(c.TLS.CAFile))
		}
		if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
			opts = append(opts, nats.ClientCert(c.TLS.CertFile, c.TLS.KeyFile))
		}
	}

	return opts
}
