// Package metrics exposes the pipeline's Prometheus instruments and the
// /metrics endpoint.
package metrics

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	RecordsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailpipe_records_read_total",
			Help: "Total number of records read from the source by entity kind",
		},
		[]string{"kind"},
	)

	RecordsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailpipe_records_published_total",
			Help: "Total number of records confirmed by the broker by entity kind and topic",
		},
		[]string{"kind", "topic"},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailpipe_publish_errors_total",
			Help: "Total number of failed or timed out sends by entity kind and topic",
		},
		[]string{"kind", "topic"},
	)

	TransformationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailpipe_transformation_errors_total",
			Help: "Total number of transformation errors by entity kind",
		},
		[]string{"kind"},
	)

	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retailpipe_publish_duration_seconds",
			Help:    "Time from handing a message to the transport until its confirmation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailpipe_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"outcome"},
	)
)

type PromServerOpts struct {
	Addr              string
	Path              string        // Path for metrics endpoint, defaults to "/metrics"
	ShutdownTimeout   time.Duration // Timeout for server shutdown, defaults to 5 seconds
	ReadHeaderTimeout time.Duration // Timeout for reading request headers, defaults to 3 seconds
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Serve runs a Prometheus metrics server until ctx is canceled, then shuts it
// down gracefully. It returns nil on a clean shutdown.
func Serve(ctx context.Context, opts *PromServerOpts, logger *zap.Logger) error {
	// merge with defaults
	effectiveOpts := defaultPrometheusServerOptions()
	if opts != nil {
		effectiveOpts.Addr = cmp.Or(opts.Addr, effectiveOpts.Addr)
		effectiveOpts.Path = cmp.Or(opts.Path, effectiveOpts.Path)
		effectiveOpts.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, effectiveOpts.ShutdownTimeout)
		effectiveOpts.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, effectiveOpts.ReadHeaderTimeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle(effectiveOpts.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              effectiveOpts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: effectiveOpts.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting Prometheus metrics server", zap.String("addr", effectiveOpts.Addr))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), effectiveOpts.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Metrics server shutdown timed out", zap.Error(err))
		return nil
	}
	logger.Debug("Metrics server shutdown complete")
	return nil
}
