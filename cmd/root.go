package cmd

import (
	"fmt"
	"os"

	"cloudsync/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// configDir is the directory holding config.yaml and .env.
var configDir string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "cloudsync",
	Short: "Local folder to remote storage synchronization",
	Long: `cloudsync keeps a local directory and a remote storage (S3 compatible
bucket or mounted share) in sync in both directions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Failures are reported through a console
// logger, which prints ISO8601 timestamps, before exiting with status 1.
func Execute() {
	err := RootCmd.Execute()
	if err == nil {
		return
	}

	l, logErr := logger.New(&logger.Config{Level: "debug", Format: "console"})
	if logErr != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	l.Error("command failed", zap.Error(err))
	_ = l.Sync()
	os.Exit(1)
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory containing config.yaml and .env")
}
