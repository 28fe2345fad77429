package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"agentreflect/internal/config"
	"agentreflect/internal/paths"
)

var (
	configFormat    string
	configInitForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage agentreflect configuration",
	Long:  "View and create the daily-report TOML configuration.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration after defaults and environment overrides.

Examples:
  agentreflect config show
  agentreflect config show --format json
  agentreflect config show --format toml > daily-report.toml`,
	Args: cobra.NoArgs,
	Run:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a commented default configuration to the --config path
(default ~/.config/cass/daily-report.toml). An existing file is kept
unless --force is given.`,
	Args: cobra.NoArgs,
	Run:  runConfigInit,
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "human", "Output format (json, human, toml)")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// ConfigShowResponse is the response format for config show
type ConfigShowResponse struct {
	ConfigPath   string         `json:"configPath,omitempty"`
	UsedDefaults bool           `json:"usedDefaults"`
	EnvOverrides []string       `json:"envOverrides,omitempty"`
	Config       *config.Config `json:"config"`
}

func runConfigShow(cmd *cobra.Command, args []string) {
	res, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	w := cmd.OutOrStdout()
	switch OutputFormat(configFormat) {
	case FormatJSON:
		err = writeJSON(w, ConfigShowResponse{
			ConfigPath:   res.ConfigPath,
			UsedDefaults: res.UsedDefaults,
			EnvOverrides: res.EnvOverrides,
			Config:       res.Config,
		}, false)
	case FormatTOML:
		err = res.Config.EncodeTOML(w)
	case FormatHuman:
		err = writeConfigHuman(w, res)
	default:
		err = fmt.Errorf("unsupported format: %s", configFormat)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runConfigInit(cmd *cobra.Command, args []string) {
	path := configPath
	if path == "" {
		path = paths.DefaultConfigPath()
	}
	if err := config.WriteDefault(path, configInitForce); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", paths.ExpandHome(path))
}

func writeConfigHuman(w io.Writer, res *config.LoadResult) error {
	cfg := res.Config
	defaults := config.DefaultConfig()

	fmt.Fprintln(w, "agentreflect Configuration")
	fmt.Fprintln(w, strings.Repeat("─", 50))
	if res.UsedDefaults {
		fmt.Fprintf(w, "Source: defaults (no config file at %s)\n", res.ConfigPath)
	} else {
		fmt.Fprintf(w, "Source: %s\n", res.ConfigPath)
	}
	if len(res.EnvOverrides) > 0 {
		fmt.Fprintf(w, "Environment overrides: %s\n", strings.Join(res.EnvOverrides, ", "))
	}

	fmt.Fprintln(w, "\ngeneral:")
	printConfigSection(w, "  output_dir", cfg.General.OutputDir, defaults.General.OutputDir)
	printConfigSection(w, "  trend_window", cfg.General.TrendWindow, defaults.General.TrendWindow)
	printConfigSection(w, "  log_level", cfg.General.LogLevel, defaults.General.LogLevel)
	printConfigSection(w, "  cass_path", cfg.General.CassPath, defaults.General.CassPath)
	printConfigSection(w, "  timeout_seconds", cfg.General.TimeoutSeconds, defaults.General.TimeoutSeconds)

	fmt.Fprintln(w, "\nqueries:")
	printConfigSection(w, "  max_parallel", cfg.Queries.MaxParallel, defaults.Queries.MaxParallel)
	printConfigSection(w, "  scope", cfg.Queries.Scope, defaults.Queries.Scope)
	printConfigSection(w, "  limit", cfg.Queries.Limit, defaults.Queries.Limit)
	printConfigSection(w, "  agents", cfg.Queries.Agents, defaults.Queries.Agents)
	printConfigSection(w, "  workspace_include", cfg.Queries.WorkspaceInclude, defaults.Queries.WorkspaceInclude)
	printConfigSection(w, "  workspace_exclude", cfg.Queries.WorkspaceExclude, defaults.Queries.WorkspaceExclude)

	fmt.Fprintln(w, "\nllm:")
	printConfigSection(w, "  method", cfg.LLM.Method, defaults.LLM.Method)
	printConfigSection(w, "  prompt_template", cfg.LLM.PromptTemplate, defaults.LLM.PromptTemplate)
	printConfigSection(w, "  max_retries", cfg.LLM.MaxRetries, defaults.LLM.MaxRetries)
	printConfigSection(w, "  retry_backoff_seconds", cfg.LLM.RetryBackoffSeconds, defaults.LLM.RetryBackoffSeconds)

	fmt.Fprintln(w, "\nnotifications:")
	printConfigSection(w, "  email_enabled", cfg.Notifications.EmailEnabled, defaults.Notifications.EmailEnabled)
	printConfigSection(w, "  email_to", cfg.Notifications.EmailTo, defaults.Notifications.EmailTo)
	printConfigSection(w, "  sendgrid key", secretState(cfg.Secrets.SendGridAPIKey), "unset")

	fmt.Fprintln(w, "\nsync:")
	printConfigSection(w, "  sync_enabled", cfg.Sync.SyncEnabled, defaults.Sync.SyncEnabled)
	printConfigSection(w, "  sync_sources", cfg.Sync.SyncSources, defaults.Sync.SyncSources)
	printConfigSection(w, "  remote_enabled", cfg.Sync.RemoteEnabled, defaults.Sync.RemoteEnabled)
	printConfigSection(w, "  remote url", secretState(cfg.Secrets.RemoteURL), "unset")

	fmt.Fprintln(w, "\ndocuments:")
	printConfigSection(w, "  dirs", cfg.Documents.Dirs, defaults.Documents.Dirs)
	printConfigSection(w, "  patterns", cfg.Documents.Patterns, defaults.Documents.Patterns)

	fmt.Fprintln(w, "\nworklog:")
	printConfigSection(w, "  enabled", cfg.WorkLog.Enabled, defaults.WorkLog.Enabled)

	fmt.Fprintln(w, "\nschedule:")
	printConfigSection(w, "  expression", cfg.Schedule.Expression, defaults.Schedule.Expression)

	fmt.Fprintln(w, "\narchive:")
	printConfigSection(w, "  keep_days", cfg.Archive.KeepDays, defaults.Archive.KeepDays)

	cats, err := cfg.Categories()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\ncategories (%d):\n", len(cats))
	for _, c := range cats {
		fmt.Fprintf(w, "  %-24s %d queries\n", c.Name, len(c.Queries))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Use 'agentreflect config show --format json' for full configuration")
	return nil
}

func printConfigSection(w io.Writer, name string, value, defaultValue any) {
	modified := ""
	if !isEqual(value, defaultValue) {
		modified = fmt.Sprintf(" (default: %v)", defaultValue)
	}
	fmt.Fprintf(w, "%s: %v%s\n", name, value, modified)
}

func isEqual(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func secretState(v string) string {
	if v == "" {
		return "unset"
	}
	return "set"
}
