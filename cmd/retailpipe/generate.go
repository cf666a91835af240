package retailpipe

import (
	"cmp"
	"time"

	"github.com/edgeflare/retailpipe/pkg/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	generateOut  string
	generateSeed int64
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate fixture documents",
	Long: `Generate a deterministic retail dataset (45 stores, 20 products, a customer
per store and 200 purchases) as one JSON file per document under
<out>/{stores,products,customers,purchases}.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmp.Or(generateOut, cfg.DataDir)
		ds := store.NewGenerator(generateSeed, store.DefaultSizes(), time.Now()).Generate()

		n, err := store.Write(out, ds)
		if err != nil {
			return err
		}
		log.Info("dataset generated", zap.String("dir", out), zap.Int("files", n), zap.Int64("seed", generateSeed))
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateOut, "out", "", "output directory (default DATA_DIR)")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", store.DefaultSeed, "random seed")
}
