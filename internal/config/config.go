// Package config loads the daily-report TOML configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"agentreflect/internal/evidence"
	"agentreflect/internal/paths"
)

// Scopes accepted by queries.scope.
const (
	ScopeSinceLastRun = "since_last_run"
	ScopeLast24h      = "last_24h"
	ScopeLast7d       = "last_7d"
)

// Environment variables read on load.
const (
	EnvOutputDir   = "AGENTREFLECT_OUTPUT_DIR"
	EnvCassPath    = "AGENTREFLECT_CASS_PATH"
	EnvLLMMethod   = "AGENTREFLECT_LLM_METHOD"
	EnvSendGridKey = "SENDGRID_API_KEY"
	EnvRemoteURL   = "AGENTREFLECT_REMOTE_URL"
	EnvRemoteToken = "AGENTREFLECT_REMOTE_TOKEN"
)

// Config is the complete daily-report configuration.
type Config struct {
	General          GeneralConfig       `json:"general" toml:"general" mapstructure:"general"`
	Queries          QueriesConfig       `json:"queries" toml:"queries" mapstructure:"queries"`
	LLM              LLMConfig           `json:"llm" toml:"llm" mapstructure:"llm"`
	Notifications    NotificationsConfig `json:"notifications" toml:"notifications" mapstructure:"notifications"`
	Sync             SyncConfig          `json:"sync" toml:"sync" mapstructure:"sync"`
	Documents        DocumentsConfig     `json:"documents" toml:"documents" mapstructure:"documents"`
	WorkLog          WorkLogConfig       `json:"worklog" toml:"worklog" mapstructure:"worklog"`
	Schedule         ScheduleConfig      `json:"schedule" toml:"schedule" mapstructure:"schedule"`
	Archive          ArchiveConfig       `json:"archive" toml:"archive" mapstructure:"archive"`
	CustomCategories []evidence.Category `json:"custom_categories" toml:"custom_categories" mapstructure:"custom_categories"`
	CategoryFiles    []string            `json:"category_files" toml:"category_files" mapstructure:"category_files"`

	Secrets Secrets `json:"-" toml:"-" mapstructure:"-"`
}

// GeneralConfig holds paths and run-wide settings.
type GeneralConfig struct {
	OutputDir      string `json:"output_dir" toml:"output_dir" mapstructure:"output_dir"`
	TrendWindow    int    `json:"trend_window" toml:"trend_window" mapstructure:"trend_window"`
	LogLevel       string `json:"log_level" toml:"log_level" mapstructure:"log_level"`
	CassPath       string `json:"cass_path" toml:"cass_path" mapstructure:"cass_path"`
	TimeoutSeconds int    `json:"timeout_seconds" toml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// QueriesConfig scopes the evidence searches.
type QueriesConfig struct {
	MaxParallel      int      `json:"max_parallel" toml:"max_parallel" mapstructure:"max_parallel"`
	Scope            string   `json:"scope" toml:"scope" mapstructure:"scope"`
	Agents           []string `json:"agents" toml:"agents" mapstructure:"agents"`
	WorkspaceInclude []string `json:"workspace_include" toml:"workspace_include" mapstructure:"workspace_include"`
	WorkspaceExclude []string `json:"workspace_exclude" toml:"workspace_exclude" mapstructure:"workspace_exclude"`
	Limit            int      `json:"limit" toml:"limit" mapstructure:"limit"`
}

// LLMConfig configures the text-generation command.
type LLMConfig struct {
	Method              string `json:"method" toml:"method" mapstructure:"method"`
	PromptTemplate      string `json:"prompt_template" toml:"prompt_template" mapstructure:"prompt_template"`
	MaxRetries          int    `json:"max_retries" toml:"max_retries" mapstructure:"max_retries"`
	RetryBackoffSeconds []int  `json:"retry_backoff_seconds" toml:"retry_backoff_seconds" mapstructure:"retry_backoff_seconds"`
}

// NotificationsConfig configures the failure email.
type NotificationsConfig struct {
	EmailEnabled  bool   `json:"email_enabled" toml:"email_enabled" mapstructure:"email_enabled"`
	EmailProvider string `json:"email_provider" toml:"email_provider" mapstructure:"email_provider"`
	EmailTo       string `json:"email_to" toml:"email_to" mapstructure:"email_to"`
	EmailFrom     string `json:"email_from" toml:"email_from" mapstructure:"email_from"`
}

// SyncConfig configures source sync and the remote store push.
type SyncConfig struct {
	SyncEnabled   bool     `json:"sync_enabled" toml:"sync_enabled" mapstructure:"sync_enabled"`
	SyncSources   []string `json:"sync_sources" toml:"sync_sources" mapstructure:"sync_sources"`
	RemoteEnabled bool     `json:"remote_enabled" toml:"remote_enabled" mapstructure:"remote_enabled"`
}

// DocumentsConfig lists extra document trees to search.
type DocumentsConfig struct {
	Dirs     []string `json:"dirs" toml:"dirs" mapstructure:"dirs"`
	Patterns []string `json:"patterns" toml:"patterns" mapstructure:"patterns"`
}

// WorkLogConfig configures the work log.
type WorkLogConfig struct {
	Enabled bool   `json:"enabled" toml:"enabled" mapstructure:"enabled"`
	Query   string `json:"query" toml:"query" mapstructure:"query"`
	Limit   int    `json:"limit" toml:"limit" mapstructure:"limit"`
}

// ScheduleConfig configures the daemon.
type ScheduleConfig struct {
	Expression string `json:"expression" toml:"expression" mapstructure:"expression"`
}

// ArchiveConfig configures report archival.
type ArchiveConfig struct {
	KeepDays int `json:"keep_days" toml:"keep_days" mapstructure:"keep_days"`
}

// Secrets are read only from the environment.
type Secrets struct {
	SendGridAPIKey string
	RemoteURL      string
	RemoteToken    string
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			OutputDir:      paths.DefaultOutputDir(),
			TrendWindow:    7,
			LogLevel:       "info",
			CassPath:       "cass",
			TimeoutSeconds: 300,
		},
		Queries: QueriesConfig{
			MaxParallel:      3,
			Scope:            ScopeSinceLastRun,
			Agents:           []string{},
			WorkspaceInclude: []string{},
			WorkspaceExclude: []string{},
			Limit:            50,
		},
		LLM: LLMConfig{
			Method:              "pi",
			PromptTemplate:      paths.DefaultPromptPath(),
			MaxRetries:          3,
			RetryBackoffSeconds: []int{5, 15, 45},
		},
		Notifications: NotificationsConfig{
			EmailProvider: "sendgrid",
		},
		Sync: SyncConfig{
			SyncEnabled: true,
			SyncSources: []string{},
		},
		Documents: DocumentsConfig{
			Dirs:     []string{},
			Patterns: []string{"*.md"},
		},
		WorkLog: WorkLogConfig{
			Enabled: true,
			Query:   "*",
			Limit:   500,
		},
		Schedule: ScheduleConfig{
			Expression: "daily at 06:00",
		},
		Archive: ArchiveConfig{
			KeepDays: 30,
		},
		CustomCategories: []evidence.Category{},
		CategoryFiles:    []string{},
	}
}

// LoadResult describes where the effective configuration came from.
type LoadResult struct {
	Config       *Config
	ConfigPath   string
	UsedDefaults bool
	EnvOverrides []string
}

var envBindings = map[string]string{
	"general.output_dir": EnvOutputDir,
	"general.cass_path":  EnvCassPath,
	"llm.method":         EnvLLMMethod,
}

// Load reads the TOML file at path over the defaults and applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*LoadResult, error) {
	if path == "" {
		path = paths.DefaultConfigPath()
	}
	path = paths.ExpandHome(path)

	cfg := DefaultConfig()
	res := &LoadResult{Config: cfg, ConfigPath: path}

	v := viper.New()
	v.SetConfigType("toml")
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
		if val, ok := os.LookupEnv(env); ok && val != "" {
			res.EnvOverrides = append(res.EnvOverrides, env)
		}
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigError{Field: "file", Message: fmt.Sprintf("cannot parse %s: %v", path, err)}
		}
	} else if os.IsNotExist(err) {
		res.UsedDefaults = true
	} else {
		return nil, &ConfigError{Field: "file", Message: err.Error()}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, &ConfigError{Field: "file", Message: fmt.Sprintf("cannot decode %s: %v", path, err)}
	}

	cfg.Secrets = Secrets{
		SendGridAPIKey: os.Getenv(EnvSendGridKey),
		RemoteURL:      os.Getenv(EnvRemoteURL),
		RemoteToken:    os.Getenv(EnvRemoteToken),
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Config) expandPaths() {
	c.General.OutputDir = paths.ExpandHome(c.General.OutputDir)
	c.LLM.PromptTemplate = paths.ExpandHome(c.LLM.PromptTemplate)
	for i, d := range c.Documents.Dirs {
		c.Documents.Dirs[i] = paths.ExpandHome(d)
	}
	for i, f := range c.CategoryFiles {
		c.CategoryFiles[i] = paths.ExpandHome(f)
	}
}

// Validate checks value ranges and the category list.
func (c *Config) Validate() error {
	switch c.Queries.Scope {
	case ScopeSinceLastRun, ScopeLast24h, ScopeLast7d:
	default:
		return &ConfigError{Field: "queries.scope", Message: fmt.Sprintf("must be one of %s, %s, %s; got %q",
			ScopeSinceLastRun, ScopeLast24h, ScopeLast7d, c.Queries.Scope)}
	}
	if c.Queries.MaxParallel < 1 {
		return &ConfigError{Field: "queries.max_parallel", Message: "must be at least 1"}
	}
	if c.LLM.MaxRetries < 1 {
		return &ConfigError{Field: "llm.max_retries", Message: "must be at least 1"}
	}
	for _, b := range c.LLM.RetryBackoffSeconds {
		if b < 0 {
			return &ConfigError{Field: "llm.retry_backoff_seconds", Message: "entries must not be negative"}
		}
	}
	if c.General.TrendWindow < 0 {
		return &ConfigError{Field: "general.trend_window", Message: "must not be negative"}
	}
	if err := c.CheckKeepDays(c.Archive.KeepDays); err != nil {
		return err
	}
	if c.General.TimeoutSeconds < 0 {
		return &ConfigError{Field: "general.timeout_seconds", Message: "must not be negative"}
	}

	cats, err := c.Categories()
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(cats))
	for _, cat := range cats {
		if strings.TrimSpace(cat.Name) == "" {
			return &ConfigError{Field: "custom_categories", Message: "category without a name"}
		}
		if seen[cat.Name] {
			return &ConfigError{Field: "custom_categories", Message: fmt.Sprintf("duplicate category %q", cat.Name)}
		}
		seen[cat.Name] = true
	}
	return nil
}

// CheckKeepDays rejects an archive horizon that would compress reports the
// trend engine still reads. 0 disables archiving.
func (c *Config) CheckKeepDays(days int) error {
	switch {
	case days < 0:
		return &ConfigError{Field: "archive.keep_days", Message: "must not be negative"}
	case days > 0 && days < c.General.TrendWindow:
		return &ConfigError{Field: "archive.keep_days", Message: fmt.Sprintf(
			"must be 0 or at least general.trend_window (%d); got %d", c.General.TrendWindow, days)}
	}
	return nil
}

// Timeout is the per-call limit for external commands.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.General.TimeoutSeconds) * time.Second
}

// Backoff converts the retry schedule to durations.
func (c *Config) Backoff() []time.Duration {
	out := make([]time.Duration, len(c.LLM.RetryBackoffSeconds))
	for i, s := range c.LLM.RetryBackoffSeconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

// EncodeTOML writes c as TOML.
func (c *Config) EncodeTOML(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.Indent = ""
	return enc.Encode(c)
}

// WriteDefault writes a commented default configuration to path. It
// refuses to overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	path = paths.ExpandHome(path)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := `# agentreflect daily-report configuration
#
# Environment overrides: AGENTREFLECT_OUTPUT_DIR, AGENTREFLECT_CASS_PATH,
# AGENTREFLECT_LLM_METHOD. Secrets are read only from the environment:
# SENDGRID_API_KEY, AGENTREFLECT_REMOTE_URL, AGENTREFLECT_REMOTE_TOKEN.
#
# Add categories with:
#   [[custom_categories]]
#   name = "flaky_tests"
#   display = "Flaky Tests"
#   description = "Tests that pass only on retry"
#   queries = ["flaky", "retry passed"]

`
	if _, err := io.WriteString(f, header); err != nil {
		return err
	}
	return DefaultConfig().EncodeTOML(f)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
