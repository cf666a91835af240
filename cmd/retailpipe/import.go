package retailpipe

import (
	"cmp"
	"context"
	"time"

	"github.com/edgeflare/retailpipe/pkg/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	importDir   string
	importClear bool
	importWait  time.Duration
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load fixture documents into the source store",
	Long: `Load every <dir>/<collection>/*.json file into the store named by the source
uri (MongoDB or PostgreSQL). PostgreSQL tables are created by migrations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dir := cmp.Or(importDir, cfg.DataDir)

		imp, err := store.OpenImporter(ctx, cfg.Source.URI, cfg.Source.Database)
		if err != nil {
			return err
		}
		defer imp.Close(context.WithoutCancel(ctx))

		if err := store.WaitReady(ctx, imp, importWait, log); err != nil {
			return err
		}

		counts, err := store.ImportDir(ctx, imp, dir, importClear, log)
		total := 0
		for _, n := range counts {
			total += n
		}
		if err != nil {
			log.Error("import incomplete", zap.Int("inserted", total), zap.Error(err))
			return err
		}
		log.Info("import complete", zap.String("dir", dir), zap.Int("inserted", total))
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", "", "fixture directory (default DATA_DIR)")
	importCmd.Flags().BoolVar(&importClear, "clear", false, "empty each collection before importing")
	importCmd.Flags().DurationVar(&importWait, "wait", 30*time.Second, "how long to wait for the store to become ready")
}
