package retailpipe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgeflare/retailpipe/pkg/config"
	"github.com/edgeflare/retailpipe/pkg/metrics"
	"github.com/edgeflare/retailpipe/pkg/pipeline"
	"github.com/edgeflare/retailpipe/pkg/pipeline/peer"
	"github.com/edgeflare/retailpipe/pkg/pipeline/source"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	// Register readers and publishers
	_ "github.com/edgeflare/retailpipe/pkg/pipeline/peer/debug"
	_ "github.com/edgeflare/retailpipe/pkg/pipeline/peer/kafka"
	_ "github.com/edgeflare/retailpipe/pkg/pipeline/peer/mqtt"
	_ "github.com/edgeflare/retailpipe/pkg/pipeline/peer/nats"
	_ "github.com/edgeflare/retailpipe/pkg/pipeline/source/file"
	_ "github.com/edgeflare/retailpipe/pkg/pipeline/source/mongo"
	_ "github.com/edgeflare/retailpipe/pkg/pipeline/source/pg"
)

var (
	prometheusEnabled bool
	prometheusAddr    string
	window            int
	strictSalt        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Forward every entity kind once",
	Long: `Forward all stores, products, customers and purchases to their topics.
The run stops at the first failure and reports the failing kind together
with the number of its records confirmed by the broker.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().BoolVar(&prometheusEnabled, "metrics", false, "Enable Prometheus metrics server")
	runCmd.Flags().StringVar(&prometheusAddr, "metrics-addr", ":9100", "Prometheus metrics server address")
	runCmd.Flags().IntVar(&window, "window", 1, "Number of sends awaiting confirmation at once")
	runCmd.Flags().BoolVar(&strictSalt, "strict-salt", false, "Refuse to run with an empty or placeholder PII salt")
}

func applyRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled = prometheusEnabled
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = prometheusAddr
	}
	if flags.Changed("window") {
		cfg.Pipeline.Window = window
	}
	if flags.Changed("strict-salt") {
		cfg.PII.Strict = strictSalt
	}
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	applyRunFlags(cmd)
	if cfg.SaltMisconfigured() && !cfg.PII.Strict {
		log.Warn("PII salt is empty or the placeholder value, set PII_SALT",
			zap.Error(config.ErrMisconfiguredSalt))
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	reader, err := source.Open(ctx, cfg.Source.URI, cfg.Source.Database)
	if err != nil {
		log.Error("source unavailable", zap.Error(err))
		return err
	}
	defer func() {
		if err := reader.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("closing source", zap.Error(err))
		}
	}()

	pub, err := peer.Open(ctx, cfg.Publisher, log)
	if err != nil {
		log.Error("publisher unavailable", zap.Error(err))
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn("closing publisher", zap.Error(err))
		}
	}()

	opts, err := cfg.Pipeline.Options()
	if err != nil {
		return fmt.Errorf("invalid pipeline configuration: %w", err)
	}
	opts = append(opts, pipeline.WithLogger(log), pipeline.WithSalt(cfg.PII.Salt))
	runner := pipeline.NewRunner(reader, pub, opts...)

	g, gctx := errgroup.WithContext(ctx)
	metricsCtx, stopMetrics := context.WithCancel(gctx)
	defer stopMetrics()

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(metricsCtx, &metrics.PromServerOpts{Addr: cfg.Metrics.Addr}, log)
		})
	}

	g.Go(func() error {
		defer stopMetrics()
		report, err := runner.Run(gctx)
		logReport(report, err)
		return err
	})

	return g.Wait()
}

func logReport(report pipeline.Report, err error) {
	fields := []zap.Field{zap.String("run_id", report.RunID), zap.Int("total", report.Total())}
	for _, k := range report.Order {
		fields = append(fields, zap.Int(k.Collection(), report.Counts[k]))
	}

	var kerr *pipeline.KindError
	if errors.As(err, &kerr) {
		fields = append(fields, zap.Stringer("kind", kerr.Kind), zap.Int("sent", kerr.Sent))
		log.Error("run incomplete", append(fields, zap.Error(kerr.Err))...)
		return
	}
	if err != nil {
		log.Error("run incomplete", append(fields, zap.Error(err))...)
		return
	}
	log.Info("run complete", fields...)
}
