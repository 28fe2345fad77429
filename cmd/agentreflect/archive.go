package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"agentreflect/internal/paths"
	"agentreflect/internal/report"
	"agentreflect/internal/storage"
)

var (
	archiveKeepDays int
	archivePrune    bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Compress old reports",
	Long: `Compress daily reports and work logs older than archive.keep_days
into .zst files and remove the originals. With --prune-history, runs older
than the same cutoff are also removed from the history database.`,
	Args: cobra.NoArgs,
	Run:  runArchive,
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <file.zst>",
	Short: "Print an archived report",
	Long: `Decompress an archived report or work log to stdout. A bare file name
is resolved inside the output directory.`,
	Args: cobra.ExactArgs(1),
	Run:  runArchiveShow,
}

func init() {
	archiveCmd.AddCommand(archiveShowCmd)
	archiveCmd.Flags().IntVar(&archiveKeepDays, "keep-days", 0, "Override archive.keep_days")
	archiveCmd.Flags().BoolVar(&archivePrune, "prune-history", false, "Also delete old runs from the history database")
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, args []string) {
	res, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg := res.Config
	logger := newLogger(cfg)

	keep := cfg.Archive.KeepDays
	if archiveKeepDays > 0 {
		if err := cfg.CheckKeepDays(archiveKeepDays); err != nil {
			fmt.Fprintf(os.Stderr, "Error: --keep-days: %v\n", err)
			os.Exit(1)
		}
		keep = archiveKeepDays
	}
	if keep <= 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Archiving disabled (archive.keep_days = 0)")
		return
	}

	now := time.Now()
	archived, err := report.Archive(cfg.General.OutputDir, now, keep)
	for _, path := range archived {
		logger.Debug("Archived", "path", path)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Archived %s older than %s\n",
		english.Plural(len(archived), "file", ""), english.Plural(keep, "day", ""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !archivePrune {
		return
	}
	store, err := storage.Open(paths.HistoryDBPath(cfg.General.OutputDir), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	removed, err := store.Prune(now.AddDate(0, 0, -keep))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %s from history\n", english.Plural(int(removed), "run", ""))
}

func runArchiveShow(cmd *cobra.Command, args []string) {
	path := paths.ExpandHome(args[0])
	if !filepath.IsAbs(path) && filepath.Base(path) == path {
		res, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		path = filepath.Join(res.Config.General.OutputDir, path)
	}

	data, err := report.ReadArchived(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	_, _ = cmd.OutOrStdout().Write(data)
}
