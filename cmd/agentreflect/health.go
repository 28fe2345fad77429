package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var healthFormat string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the session-search index",
	Long: `Run "cass health --json" and report whether the index is usable.

Exits non-zero when the index is unhealthy.`,
	Args: cobra.NoArgs,
	Run:  runHealth,
}

func init() {
	healthCmd.Flags().StringVar(&healthFormat, "format", "json", "Output format (json, human)")
	rootCmd.AddCommand(healthCmd)
}

// HealthResponseCLI is the output of the health command.
type HealthResponseCLI struct {
	Healthy  bool   `json:"healthy"`
	CassPath string `json:"cassPath,omitempty"`
}

func runHealth(cmd *cobra.Command, args []string) {
	res, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := newCassClient(res.Config, newLogger(res.Config))
	resp := &HealthResponseCLI{Healthy: client.Health(ctx), CassPath: res.Config.General.CassPath}

	if err := writeHealth(cmd.OutOrStdout(), resp, OutputFormat(healthFormat)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !resp.Healthy {
		stop()
		os.Exit(1)
	}
}

func writeHealth(w io.Writer, resp *HealthResponseCLI, format OutputFormat) error {
	if format == FormatHuman {
		status := "healthy"
		if !resp.Healthy {
			status = "UNHEALTHY (run 'agentreflect run --force-index' to rebuild)"
		}
		_, err := fmt.Fprintf(w, "Index: %s\n", status)
		return err
	}
	return writeJSON(w, resp, true)
}
