// Package retailpipe implements the retailpipe command line.
package retailpipe

import (
	"fmt"
	"os"

	"github.com/edgeflare/retailpipe/pkg/config"
	"github.com/edgeflare/retailpipe/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
	log      *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "retailpipe",
	Short: "retailpipe forwards retail entities to a streaming bus",
	Long: `retailpipe reads stores, products, customers and purchases from the
operational store, replaces personal data with salted digests and publishes
every record to its topic.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
	Run: func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			fmt.Println(config.Version)
			return
		}

		// If no subcommand is provided, print help
		cmd.Help()
	},
}

func Main() {
	err := rootCmd.Execute()
	if log != nil {
		_ = log.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/retailpipe.yaml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "L", "info", "log at this level (debug, info, warn, error, fatal, none)")
	rootCmd.Flags().BoolP("version", "v", false, "Print the version number")

	rootCmd.AddCommand(runCmd, generateCmd, importCmd, topicsCmd, versionCmd)
}

func initConfig(cmd *cobra.Command, _ []string) error {
	var err error
	if log, err = logger.New(logLevel); err != nil {
		return err
	}
	if cfg, err = config.Load(cfgFile); err != nil {
		return err
	}
	if f := cfg.File(); f != "" {
		log.Info("using config file", zap.String("file", f))
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.Version)
	},
}
