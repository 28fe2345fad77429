package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"agentreflect/internal/paths"
	"agentreflect/internal/storage"
)

var (
	historyLimit  int
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	Long: `List runs recorded in <output_dir>/history.db, newest first.

Examples:
  agentreflect history
  agentreflect history --limit 5 --format json
  agentreflect history show 3f2a9c1e-...`,
	Args: cobra.NoArgs,
	Run:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with per-category counts",
	Args:  cobra.ExactArgs(1),
	Run:   runHistoryShow,
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyFormat, "format", "human", "Output format (json, human)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to list")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory() *storage.Store {
	res, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	store, err := storage.Open(paths.HistoryDBPath(res.Config.General.OutputDir), newLogger(res.Config))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runHistoryList(cmd *cobra.Command, args []string) {
	store := openHistory()
	defer store.Close()

	runs, err := store.ListRuns(historyLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	w := cmd.OutOrStdout()
	if OutputFormat(historyFormat) == FormatJSON {
		if runs == nil {
			runs = []*storage.Run{}
		}
		err = writeJSON(w, runs, false)
	} else {
		err = writeRunsHuman(w, runs, time.Now())
		if err == nil {
			err = writeLastSuccess(w, store, time.Now())
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// writeLastSuccess prints when the newest successful non-dry run started.
func writeLastSuccess(w io.Writer, store *storage.Store, now time.Time) error {
	last, err := store.LastSuccessful()
	if err != nil {
		return err
	}
	if last == nil {
		_, err = fmt.Fprintln(w, "No successful run yet.")
		return err
	}
	_, err = fmt.Fprintf(w, "Last successful run: %s (%s)\n",
		humanize.RelTime(last.StartedAt, now, "ago", "from now"), shortID(last.ID))
	return err
}

func runHistoryShow(cmd *cobra.Command, args []string) {
	store := openHistory()
	defer store.Close()

	run, err := store.GetRun(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	w := cmd.OutOrStdout()
	if OutputFormat(historyFormat) == FormatJSON {
		err = writeJSON(w, run, false)
	} else {
		err = writeRunHuman(w, run, time.Now())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func writeRunsHuman(w io.Writer, runs []*storage.Run, now time.Time) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded yet.")
		return err
	}
	fmt.Fprintf(w, "%-8s  %-16s  %-11s  %8s  %9s  %5s\n", "RUN", "STARTED", "STATUS", "DURATION", "PATTERNS", "WINS")
	fmt.Fprintln(w, strings.Repeat("─", 66))
	for _, r := range runs {
		status := string(r.Status)
		if r.DryRun {
			status += "*"
		}
		fmt.Fprintf(w, "%-8s  %-16s  %-11s  %8s  %9d  %5d\n",
			shortID(r.ID),
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			status,
			formatDuration(r.Duration()),
			r.AntiPatterns,
			r.Wins,
		)
	}
	_, err := fmt.Fprintln(w, "\n* dry run")
	return err
}

func writeRunHuman(w io.Writer, r *storage.Run, now time.Time) error {
	fmt.Fprintf(w, "Run %s\n", r.ID)
	fmt.Fprintln(w, strings.Repeat("─", 50))
	fmt.Fprintf(w, "Status:    %s\n", r.Status)
	fmt.Fprintf(w, "Started:   %s (%s)\n", r.StartedAt.Local().Format(time.RFC3339), humanize.RelTime(r.StartedAt, now, "ago", "from now"))
	fmt.Fprintf(w, "Duration:  %s\n", formatDuration(r.Duration()))
	if r.DryRun {
		fmt.Fprintln(w, "Dry run:   yes")
	}
	if !r.Since.IsZero() {
		fmt.Fprintf(w, "Window:    %s to %s\n", r.Since.Local().Format(time.RFC3339), r.Until.Local().Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Sessions:  %s\n", humanize.Comma(int64(r.TotalSessions)))
	if r.ReportPath != "" {
		fmt.Fprintf(w, "Report:    %s\n", r.ReportPath)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", r.Error)
	}
	if len(r.Categories) == 0 {
		return nil
	}

	fmt.Fprintf(w, "\n%-26s  %5s  %8s  %4s  %6s\n", "CATEGORY", "HITS", "PATTERNS", "WINS", "DELTA")
	for _, c := range r.Categories {
		fmt.Fprintf(w, "%-26s  %5d  %8d  %4d  %+6.1f\n", c.Name, c.Hits, c.AntiPatterns, c.Wins, c.Delta)
		if c.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", c.Error)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
