package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"agentreflect/internal/pipeline"
)

var (
	runDryRun     bool
	runForceIndex bool
	runNoWorkLog  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily analysis once",
	Long: `Search session history for every configured category, analyze the
evidence, and write the daily report and work log.

Exit status is 0 on success, 1 on a fatal failure and 130 when interrupted.

Examples:
  agentreflect run
  agentreflect run --dry-run --verbose
  agentreflect run --force-index --output-dir /tmp/reports`,
	Args: cobra.NoArgs,
	Run:  runDaily,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Search and write reports without calling the text-generation CLI")
	runCmd.Flags().BoolVar(&runForceIndex, "force-index", false, "Rebuild the session index before searching")
	runCmd.Flags().BoolVar(&runNoWorkLog, "no-worklog", false, "Skip the work log")
	rootCmd.AddCommand(runCmd)
}

func runDaily(cmd *cobra.Command, args []string) {
	res, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(pipeline.ExitFailure)
	}
	logger := newLogger(res.Config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	p, closer := newPipeline(res.Config, logger)
	out, err := p.Execute(ctx, pipeline.Options{
		DryRun:     runDryRun,
		ForceIndex: runForceIndex,
		NoWorkLog:  runNoWorkLog,
	})
	_ = closer.Close()
	stop()

	if err == nil {
		printOutcome(cmd.OutOrStdout(), out)
	}
	os.Exit(pipeline.ExitCode(err))
}

// printOutcome writes the one-screen run summary.
func printOutcome(w io.Writer, out *pipeline.Outcome) {
	if out == nil || out.Report == nil {
		return
	}
	s := out.Report.Summary
	fmt.Fprintf(w, "Report for %s\n", out.Report.Date)
	fmt.Fprintf(w, "  Sessions:      %s\n", humanize.Comma(int64(s.TotalSessions)))
	fmt.Fprintf(w, "  Anti-patterns: %d\n", s.AntiPatternCount)
	fmt.Fprintf(w, "  Wins:          %d\n", s.WinCount)
	if out.Written != nil {
		fmt.Fprintf(w, "  JSON:          %s\n", out.Written.JSON)
		fmt.Fprintf(w, "  Markdown:      %s\n", out.Written.Markdown)
		if out.Written.WorkLog != "" {
			fmt.Fprintf(w, "  Work log:      %s\n", out.Written.WorkLog)
		}
	}
	if out.Pushed != nil {
		fmt.Fprintf(w, "  Remote:        %d sent, %d rejected\n", out.Pushed.Sent, out.Pushed.Failed)
	}
	if len(out.Archived) > 0 {
		fmt.Fprintf(w, "  Archived:      %d\n", len(out.Archived))
	}
	if out.Run != nil && out.Run.DryRun {
		fmt.Fprintln(w, "  (dry run: last-run marker not updated)")
	}
}
