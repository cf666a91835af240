package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/edgeflare/retailpipe/pkg/metrics"
	"github.com/edgeflare/retailpipe/pkg/pipeline/peer"
	"github.com/edgeflare/retailpipe/pkg/pipeline/transform"
	"go.uber.org/zap"
)

// forward reads, transforms and publishes every record of kind. It returns
// the number of records confirmed in send order before the first failure.
// Outstanding sends are always awaited before it returns, also on failure or
// cancellation.
func (r *Runner) forward(ctx context.Context, logger *zap.Logger, kind entity.Kind, chain transform.Func) (int, error) {
	topic := kind.Topic()
	// futures are awaited without the run ctx; each is bounded by the
	// publisher's confirmation timeout.
	wctx := context.WithoutCancel(ctx)

	var (
		sent    int
		failure error
		broken  bool
		queue   []peer.Future
	)
	// settle awaits the oldest send. Confirmations after a failed send are
	// awaited but not counted, so sent stays an in-order prefix.
	settle := func() {
		f := queue[0]
		queue = queue[1:]
		err := f.Wait(wctx)
		if broken {
			return
		}
		if err != nil {
			metrics.PublishErrors.WithLabelValues(kind.String(), topic).Inc()
			broken = true
			if failure == nil {
				failure = err
			}
			return
		}
		sent++
		metrics.RecordsPublished.WithLabelValues(kind.String(), topic).Inc()
		if r.progressEvery > 0 && sent%r.progressEvery == 0 {
			logger.Info("progress", zap.Int("sent", sent))
		}
	}

	r.setState(StateReading)
	for rec, err := range r.reader.ReadAll(ctx, kind) {
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			failure = err
			break
		}
		metrics.RecordsRead.WithLabelValues(kind.String()).Inc()

		r.setState(StateSanitizing)
		key, payload, err := encode(rec, chain)
		if err != nil {
			metrics.TransformationErrors.WithLabelValues(kind.String()).Inc()
			failure = fmt.Errorf("transform %s record: %w", kind, err)
			break
		}
		if payload == nil {
			r.setState(StateReading)
			continue
		}

		r.setState(StatePublishing)
		queue = append(queue, r.publisher.Send(ctx, topic, key, payload))
		for len(queue) >= r.window && failure == nil {
			settle()
		}
		if failure != nil {
			break
		}
		r.setState(StateReading)
	}
	if failure == nil && ctx.Err() != nil {
		failure = ctx.Err()
	}

	for len(queue) > 0 {
		settle()
	}

	r.setState(StateFlushing)
	fctx, cancel := context.WithTimeout(wctx, r.drainTimeout)
	defer cancel()
	if err := r.publisher.Flush(fctx); err != nil && failure == nil {
		failure = err
	}
	return sent, failure
}

// encode applies the chain to a copy of rec and returns the message key and
// JSON payload. The key is taken from rec itself so operator steps that
// rename or drop fields never change it. A nil payload means the record was
// filtered out.
func encode(rec entity.Record, chain transform.Func) (string, []byte, error) {
	clone := rec.Clone()
	out, err := chain(&clone)
	if err != nil {
		return "", nil, err
	}
	if out == nil {
		return "", nil, nil
	}
	if out.Fields == nil {
		out.Fields = map[string]any{}
	}

	payload, err := json.Marshal(out.Fields)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s record: %w", out.Kind, err)
	}
	return rec.Key(), payload, nil
}
