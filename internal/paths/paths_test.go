package paths

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandHome(t *testing.T) {
	h, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~", h},
		{"~/reports", filepath.Join(h, "reports")},
		{"/abs/path", "/abs/path"},
		{"rel/path", "rel/path"},
		{"~other/x", "~other/x"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ExpandHome(tt.in); got != tt.want {
				t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestReportPaths(t *testing.T) {
	day := time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC)

	if got, want := ReportJSONPath("/out", day), "/out/daily-report-2026-03-09.json"; got != want {
		t.Errorf("ReportJSONPath = %q, want %q", got, want)
	}
	if got, want := ReportMarkdownPath("/out", day), "/out/daily-report-2026-03-09.md"; got != want {
		t.Errorf("ReportMarkdownPath = %q, want %q", got, want)
	}
	if got, want := WorkLogPath("/out", day), "/out/work-log-2026-03-09.md"; got != want {
		t.Errorf("WorkLogPath = %q, want %q", got, want)
	}
	if got, want := LastRunPath("/out"), "/out/.last-run"; got != want {
		t.Errorf("LastRunPath = %q, want %q", got, want)
	}
}
