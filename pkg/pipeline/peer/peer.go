// Package peer defines the Publisher: durable, keyed delivery of messages to a
// named topic of a streaming bus. Implementations live in sub-packages (kafka,
// nats, mqtt, debug) and register themselves for a broker address scheme.
package peer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrPublishFailed reports a send the broker did not confirm, after retries.
	ErrPublishFailed = errors.New("publish failed")
	// ErrPublishTimeout reports a send that exceeded its buffering or confirmation bound.
	ErrPublishTimeout = fmt.Errorf("%w: timed out", ErrPublishFailed)
	// ErrClosed is returned by Send after Close.
	ErrClosed = fmt.Errorf("%w: publisher closed", ErrPublishFailed)
)

// Publisher delivers key/payload messages to topics. Messages sharing a key are
// routed to the same ordered partition.
type Publisher interface {
	// Send hands the message to the transport, waiting at most the configured
	// buffering bound, and returns a Future for its confirmation.
	Send(ctx context.Context, topic, key string, payload []byte) Future
	// Flush blocks until every message sent so far is confirmed or failed.
	Flush(ctx context.Context) error
	// Close flushes and releases the transport.
	Close() error
}

// Future resolves once the broker confirmed or rejected a message. Wait is
// bounded by the publisher's confirmation timeout and may be called repeatedly.
type Future interface {
	Wait(ctx context.Context) error
}

// Publish sends one message and waits for its confirmation.
func Publish(ctx context.Context, p Publisher, topic, key string, payload []byte) error {
	return p.Send(ctx, topic, key, payload).Wait(ctx)
}

type resolved struct{ err error }

func (r resolved) Wait(context.Context) error { return r.err }

// Resolved returns a Future that is already complete with err.
func Resolved(err error) Future { return resolved{err: err} }

// Config holds transport-independent publisher settings. Options carries the
// transport-specific part, decoded by the implementation.
type Config struct {
	// Address of the broker(s), eg localhost:9093, kafka://a:9092,b:9092, nats://localhost:4222
	Address string `mapstructure:"address"`
	// Retries is the bounded number of automatic retries on transient failures.
	Retries        int           `mapstructure:"retries"`
	RetryBackoff   time.Duration `mapstructure:"retryBackoff"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
	// MaxBlock bounds the wait for buffer space before a message is accepted.
	MaxBlock time.Duration `mapstructure:"maxBlock"`
	// DeliveryTimeout bounds the wait for a confirmation once accepted.
	DeliveryTimeout time.Duration  `mapstructure:"deliveryTimeout"`
	Linger          time.Duration  `mapstructure:"linger"`
	ClientID        string         `mapstructure:"clientID"`
	Options         map[string]any `mapstructure:"options"`
}

// DefaultConfig mirrors the producer settings the pipeline has always used:
// three retries, 10s request and blocking bounds and a 10ms linger.
func DefaultConfig() Config {
	return Config{
		Address:         "localhost:9093",
		Retries:         3,
		RetryBackoff:    100 * time.Millisecond,
		RequestTimeout:  10 * time.Second,
		MaxBlock:        10 * time.Second,
		DeliveryTimeout: 10 * time.Second,
		Linger:          10 * time.Millisecond,
		ClientID:        "retailpipe",
	}
}

// Opener constructs a Publisher from its config.
type Opener func(ctx context.Context, cfg Config, logger *zap.Logger) (Publisher, error)

// SchemeKafka is assumed for addresses without a scheme.
const SchemeKafka = "kafka"

var (
	openers = make(map[string]Opener)
	mu      sync.RWMutex
)

// Register makes a Publisher implementation available for an address scheme.
func Register(scheme string, opener Opener) {
	mu.Lock()
	defer mu.Unlock()
	openers[scheme] = opener
}

// Open connects the publisher selected by the scheme of cfg.Address.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Publisher, error) {
	scheme, _ := SplitAddress(cfg.Address)

	mu.RLock()
	opener, ok := openers[scheme]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported broker scheme %q", scheme)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return opener(ctx, cfg, logger)
}

// SplitAddress separates the scheme from a broker address and splits the
// remainder into hosts. Addresses without a scheme are Kafka bootstrap lists.
func SplitAddress(address string) (string, []string) {
	scheme, rest, found := strings.Cut(address, "://")
	if !found {
		scheme, rest = SchemeKafka, address
	}

	var hosts []string
	for _, h := range strings.Split(rest, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return strings.ToLower(scheme), hosts
}
