package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Pending is a Future settled by a transport once the broker answered.
// Wait is bounded by the deadline set when the transport accepted the message.
type Pending struct {
	ch       chan struct{}
	err      error
	topic    string
	start    time.Time
	deadline time.Time
}

// NewPending returns an unsettled Future for a message to topic.
func NewPending(topic string) *Pending {
	return &Pending{
		ch:    make(chan struct{}),
		topic: topic,
		start: time.Now(),
	}
}

// Accept starts the confirmation bound. It must be called before the future
// is handed to the caller.
func (p *Pending) Accept(timeout time.Duration) *Pending {
	p.deadline = time.Now().Add(timeout)
	return p
}

// Resolve settles the future. It must be called exactly once.
func (p *Pending) Resolve(err error) {
	p.err = err
	close(p.ch)
}

// Elapsed is the time since the message was handed to the transport.
func (p *Pending) Elapsed() time.Duration { return time.Since(p.start) }

// Wait blocks until the broker answered, the deadline passed or ctx is done.
// A done ctx does not settle the future; a later Wait may still observe the
// confirmation.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.ch:
		return p.err
	default:
	}

	timer := time.NewTimer(max(time.Until(p.deadline), 0))
	defer timer.Stop()

	select {
	case <-p.ch:
		return p.err
	case <-timer.C:
		return fmt.Errorf("%w: topic %s: no confirmation before deadline", ErrPublishTimeout, p.topic)
	case <-ctx.Done():
		return ContextError(p.topic, ctx.Err())
	}
}

// ContextError maps a context error to the publish error it represents.
func ContextError(topic string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: topic %s: %w", ErrPublishTimeout, topic, err)
	}
	return fmt.Errorf("%w: topic %s: %w", ErrPublishFailed, topic, err)
}

// InFlight counts accepted but unsettled messages so Flush can wait for zero.
type InFlight struct {
	mu   sync.Mutex
	n    int
	zero chan struct{}
}

func NewInFlight() *InFlight {
	z := make(chan struct{})
	close(z)
	return &InFlight{zero: z}
}

func (i *InFlight) Add() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.n == 0 {
		i.zero = make(chan struct{})
	}
	i.n++
}

func (i *InFlight) Done() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.n--
	if i.n == 0 {
		close(i.zero)
	}
}

// Zero returns a channel closed once no message is in flight.
func (i *InFlight) Zero() <-chan struct{} {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.zero
}

func (i *InFlight) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.n
}

// Wait blocks until no message is in flight or ctx is done.
func (i *InFlight) Wait(ctx context.Context) error {
	select {
	case <-i.Zero():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: flush: %d messages unconfirmed: %w", ErrPublishTimeout, i.Len(), ctx.Err())
	}
}
