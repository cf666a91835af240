package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/edgeflare/retailpipe/pkg/metrics"
	"github.com/edgeflare/retailpipe/pkg/pipeline/peer"
	"github.com/edgeflare/retailpipe/pkg/pipeline/source"
	"github.com/edgeflare/retailpipe/pkg/pipeline/transform"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runner moves every record of the configured kinds from a Reader to a
// Publisher. A Runner is used for one run at a time; it does not own the
// reader or the publisher.
type Runner struct {
	reader    source.Reader
	publisher peer.Publisher
	logger    *zap.Logger

	salt            string
	kinds           []entity.Kind
	transformations map[entity.Kind][]transform.Transformation
	window          int
	progressEvery   int
	drainTimeout    time.Duration

	state atomic.Int32
}

type Option func(*Runner)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSalt sets the salt mixed into PII digests.
func WithSalt(salt string) Option {
	return func(r *Runner) { r.salt = salt }
}

// WithTransformations appends transformations to the chain of kind.
func WithTransformations(kind entity.Kind, ts ...transform.Transformation) Option {
	return func(r *Runner) {
		r.transformations[kind] = append(r.transformations[kind], ts...)
	}
}

// WithWindow sets how many sends may await confirmation at once. Values
// below 1 are treated as 1.
func WithWindow(n int) Option {
	return func(r *Runner) { r.window = max(n, 1) }
}

// WithProgressEvery sets the progress log interval in confirmed records; 0
// disables progress logs.
func WithProgressEvery(n int) Option {
	return func(r *Runner) { r.progressEvery = max(n, 0) }
}

// WithKinds restricts the run to the given kinds. The fixed kind order is kept.
func WithKinds(kinds ...entity.Kind) Option {
	return func(r *Runner) {
		r.kinds = slices.DeleteFunc(entity.Kinds(), func(k entity.Kind) bool {
			return !slices.Contains(kinds, k)
		})
	}
}

// WithDrainTimeout bounds the flush after the last record of a kind.
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.drainTimeout = d
		}
	}
}

func NewRunner(reader source.Reader, publisher peer.Publisher, opts ...Option) *Runner {
	r := &Runner{
		reader:          reader,
		publisher:       publisher,
		logger:          zap.NewNop(),
		kinds:           entity.Kinds(),
		transformations: make(map[entity.Kind][]transform.Transformation),
		window:          1,
		progressEvery:   50,
		drainTimeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current phase.
func (r *Runner) State() State {
	return State(r.state.Load())
}

func (r *Runner) setState(s State) {
	if old := State(r.state.Swap(int32(s))); old != s {
		r.logger.Debug("state", zap.Stringer("from", old), zap.Stringer("to", s))
	}
}

// Run forwards all kinds in order. It stops at the first failure and returns
// a *KindError carrying the failing kind and its confirmed count. Cancelling
// ctx stops reading; sends already made are still awaited.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{
		RunID:  uuid.NewString(),
		Counts: make(map[entity.Kind]int, len(r.kinds)),
	}
	logger := r.logger.With(zap.String("run_id", report.RunID))

	report, err := r.run(ctx, logger, report)
	report.Duration = time.Since(start)

	switch {
	case err == nil:
		r.setState(StateDone)
		metrics.RunsTotal.WithLabelValues("success").Inc()
		logger.Info("pipeline finished",
			zap.Int("total", report.Total()),
			zap.Duration("duration", report.Duration))
	case errors.Is(err, context.Canceled):
		r.setState(StateFailed)
		metrics.RunsTotal.WithLabelValues("cancelled").Inc()
		logger.Warn("pipeline cancelled", zap.Int("total", report.Total()), zap.Error(err))
	default:
		r.setState(StateFailed)
		metrics.RunsTotal.WithLabelValues("failure").Inc()
		logger.Error("pipeline failed", zap.Int("total", report.Total()), zap.Error(err))
	}
	return report, err
}

func (r *Runner) run(ctx context.Context, logger *zap.Logger, report Report) (Report, error) {
	chains, err := chains(r.kinds, r.salt, r.transformations)
	if err != nil {
		return report, err
	}

	r.setState(StateConnecting)
	if err := r.reader.Ping(ctx); err != nil {
		return report, source.Unavailable("connect", err)
	}

	for _, kind := range r.kinds {
		report.Order = append(report.Order, kind)
		klog := logger.With(zap.Stringer("kind", kind), zap.String("topic", kind.Topic()))

		sent, err := r.forward(ctx, klog, kind, chains[kind])
		report.Counts[kind] = sent
		if err != nil {
			klog.Error("kind failed", zap.Int("sent", sent), zap.Error(err))
			return report, &KindError{Kind: kind, Sent: sent, Err: err}
		}
		klog.Info("kind finished", zap.Int("sent", sent))
	}
	return report, nil
}
