package main

import (
	"github.com/spf13/cobra"

	"agentreflect/internal/version"
)

var (
	configPath string
	outputDir  string
	verbose    bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "agentreflect",
	Short: "agentreflect - daily reflection on coding-agent sessions",
	Long: `agentreflect searches coding-agent session history for recurring
anti-patterns and wins, asks a text-generation CLI to summarize the evidence,
and writes trend-aware daily reports plus a per-project work log.`,
	Version:       version.Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("agentreflect version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to the TOML config file (default: ~/.config/cass/daily-report.toml)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "",
		"Override general.output_dir")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all logging")
}
