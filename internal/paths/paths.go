// Package paths resolves the default on-disk locations used by agentreflect.
package paths

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// ConfigFileName is the default TOML config file name.
	ConfigFileName = "daily-report.toml"
	// PromptFileName is the default prompt template file name.
	PromptFileName = "daily-report-prompt.md"
	// LastRunFileName marks the last successful run inside the output directory.
	LastRunFileName = ".last-run"
	// HistoryDBName is the SQLite run history inside the output directory.
	HistoryDBName = "history.db"
)

// DateLayout is the calendar-date layout used in report file names.
const DateLayout = "2006-01-02"

func home() string {
	h, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return h
}

// ConfigDir returns ~/.config/cass
func ConfigDir() string {
	return filepath.Join(home(), ".config", "cass")
}

// DefaultConfigPath returns ~/.config/cass/daily-report.toml
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), ConfigFileName)
}

// DefaultPromptPath returns ~/.config/cass/daily-report-prompt.md
func DefaultPromptPath() string {
	return filepath.Join(ConfigDir(), PromptFileName)
}

// DefaultOutputDir returns ~/Documents/docs/cass-reports
func DefaultOutputDir() string {
	return filepath.Join(home(), "Documents", "docs", "cass-reports")
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) string {
	if p == "~" {
		return home()
	}
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		return filepath.Join(home(), p[2:])
	}
	return p
}

// ReportJSONPath returns <dir>/daily-report-YYYY-MM-DD.json
func ReportJSONPath(dir string, day time.Time) string {
	return filepath.Join(dir, "daily-report-"+day.Format(DateLayout)+".json")
}

// ReportMarkdownPath returns <dir>/daily-report-YYYY-MM-DD.md
func ReportMarkdownPath(dir string, day time.Time) string {
	return filepath.Join(dir, "daily-report-"+day.Format(DateLayout)+".md")
}

// WorkLogPath returns <dir>/work-log-YYYY-MM-DD.md
func WorkLogPath(dir string, day time.Time) string {
	return filepath.Join(dir, "work-log-"+day.Format(DateLayout)+".md")
}

// LastRunPath returns <dir>/.last-run
func LastRunPath(dir string) string {
	return filepath.Join(dir, LastRunFileName)
}

// HistoryDBPath returns <dir>/history.db
func HistoryDBPath(dir string) string {
	return filepath.Join(dir, HistoryDBName)
}

// LogPath returns <dir>/logs/agentreflect.log
func LogPath(dir string) string {
	return filepath.Join(dir, "logs", "agentreflect.log")
}
