// campaignsmith turns a marketing brief into a reviewed campaign deliverable
// through a fixed pipeline of specialist stages.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"campaignsmith/internal/config"
	"campaignsmith/internal/logging"
)

var (
	verbose      bool
	campaignRoot string
	timeout      time.Duration

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "campaignsmith",
	Short: "campaignsmith - brief-to-deliverable campaign pipeline",
	Long: `campaignsmith runs a content brief through five specialist stages
(data collection, content, design, quality, delivery), with structured
handoffs between stages and a quality gate before anything ships.

Artifacts live in a campaign workspace; re-running a stage overwrites its
artifacts and nothing else.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(campaignRoot)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Debug = true
			cfg.Logging.Level = "debug"
		}
		return logging.Initialize(cfg.Workspace.Root, cfg.LoggingSettings())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&campaignRoot, "root", "r", ".", "Campaign root directory")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Overall run timeout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
