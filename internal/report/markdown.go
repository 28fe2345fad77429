package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"agentreflect/internal/worklog"
)

const separator = "---\n"

// frontMatter is the YAML header on both Markdown artifacts.
type frontMatter struct {
	Title        string   `yaml:"title"`
	Date         string   `yaml:"date"`
	Type         string   `yaml:"type"`
	Since        string   `yaml:"since,omitempty"`
	Until        string   `yaml:"until,omitempty"`
	Sessions     int      `yaml:"sessions"`
	AntiPatterns int      `yaml:"anti_patterns,omitempty"`
	Wins         int      `yaml:"wins,omitempty"`
	Tags         []string `yaml:"tags,omitempty"`
}

func renderFrontMatter(meta frontMatter, body string) (string, error) {
	raw, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(separator)
	buf.Write(raw)
	buf.WriteString(separator)
	if !strings.HasPrefix(body, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString(body)
	return buf.String(), nil
}

// formatDelta renders +1.5, 0 or -2 the way the trend table shows them.
func formatDelta(d float64) string {
	s := strconv.FormatFloat(d, 'f', -1, 64)
	switch {
	case d > 0:
		return "+" + s
	case d == 0:
		return "0"
	default:
		return s
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Markdown renders the analysis report.
func (r *Report) Markdown() (string, error) {
	var b strings.Builder
	w := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	w("# Agent Reflection Report - %s", r.Date)
	w("")
	w("> Daily analysis of coding agent sessions for patterns and improvements")
	w("")
	w("## Executive Summary")
	w("")
	w("- **%d anti-patterns** detected across %s sessions", r.Summary.AntiPatternCount, humanize.Comma(int64(r.Summary.TotalSessions)))
	w("- **%d wins** identified showing good practices", r.Summary.WinCount)

	if top, ok := r.topIssue(); ok {
		w("- **%s** is the most common issue (%s vs 7-day avg)", r.Display(top), formatDelta(r.Categories.Entries[top].Delta))
	}

	w("")
	w("## Anti-Patterns by Category")
	w("")
	for _, name := range r.Categories.Names {
		c := r.Categories.Entries[name]
		if len(c.AntiPatterns) == 0 {
			continue
		}
		w("### %s (%d occurrences, %s vs avg)", c.Display, len(c.AntiPatterns), formatDelta(c.Delta))
		w("")
		for _, ap := range head(c.AntiPatterns, 5) {
			severity := ap.Severity
			if severity == "" {
				severity = "medium"
			}
			desc := ap.Description
			if desc == "" {
				desc = "No description"
			}
			w("- **[%s]** %s", strings.ToUpper(severity), desc)
			for _, s := range head(ap.ExampleSessions, 2) {
				w("  - `%s`", s)
			}
			if ap.Recommendation != "" {
				w("  - *Recommendation*: %s", ap.Recommendation)
			}
		}
		w("")
	}

	w("## Wins")
	w("")
	for _, name := range r.Categories.Names {
		c := r.Categories.Entries[name]
		if len(c.Wins) == 0 {
			continue
		}
		w("### %s", c.Display)
		w("")
		for _, win := range head(c.Wins, 3) {
			desc := win.Description
			if desc == "" {
				desc = "No description"
			}
			w("- %s", desc)
			for _, s := range head(win.ExampleSessions, 2) {
				w("  - `%s`", s)
			}
		}
		w("")
	}

	var failed []string
	for _, name := range r.Categories.Names {
		if e := r.Categories.Entries[name].Error; e != "" {
			failed = append(failed, fmt.Sprintf("- **%s**: %s", r.Display(name), e))
		}
	}
	if len(failed) > 0 {
		w("## Errors")
		w("")
		for _, line := range failed {
			w("%s", line)
		}
		w("")
	}

	w("## Trends (7-Day Rolling)")
	w("")
	w("| Category | Today | 7-Day Avg | Delta |")
	w("|----------|-------|-----------|-------|")
	for _, name := range r.Categories.Names {
		c := r.Categories.Entries[name]
		w("| %s | %d | %s | %s |", c.Display, c.Count, formatFloat(c.Average), formatDelta(c.Delta))
	}

	w("")
	w("## Raw Data")
	w("")
	w("- **Sessions analyzed**: %d", r.Summary.TotalSessions)
	w("- **Time range**: %s to %s", formatTime(r.TimeRange.Since), formatTime(r.TimeRange.Until))
	w("- **Categories analyzed**: %d", len(r.Categories.Names))
	w("")
	w("## Session Links")
	w("")
	w("All sessions with findings (VS Code clickable):")
	w("")
	for _, link := range r.SessionLinks {
		ref := link.Path
		if link.Line > 0 {
			ref = fmt.Sprintf("%s:%d", link.Path, link.Line)
		}
		w("- `%s` - %s", ref, r.Display(link.Category))
	}

	return renderFrontMatter(frontMatter{
		Title:        "Agent Reflection Report - " + r.Date,
		Date:         r.Date,
		Type:         "daily-report",
		Since:        formatTime(r.TimeRange.Since),
		Until:        formatTime(r.TimeRange.Until),
		Sessions:     r.Summary.TotalSessions,
		AntiPatterns: r.Summary.AntiPatternCount,
		Wins:         r.Summary.WinCount,
		Tags:         []string{"agent-reflection"},
	}, b.String())
}

// topIssue is the category with the most anti-patterns; the first in order
// wins ties. ok is false when no category has any.
func (r *Report) topIssue() (string, bool) {
	best, bestCount := "", 0
	for _, name := range r.Categories.Names {
		if n := len(r.Categories.Entries[name].AntiPatterns); n > bestCount {
			best, bestCount = name, n
		}
	}
	return best, bestCount > 0
}

// WorkLogMarkdown renders the work log for the report's date.
func (r *Report) WorkLogMarkdown() (string, error) {
	wl := r.WorkLog
	if wl == nil {
		wl = &worklog.WorkLog{}
	}

	var b strings.Builder
	w := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	w("# Work Log - %s", r.Date)
	w("")
	w("## Highlights")
	w("")
	if len(wl.Highlights) == 0 {
		w("- No recorded activity")
	}
	for _, h := range wl.Highlights {
		w("- %s", h)
	}
	w("")

	w("## Projects")
	w("")
	for _, p := range wl.Projects {
		w("### %s", p.Name)
		w("")
		w("- **Sessions**: %d", p.Count)
		w("- **Estimated time**: %s", formatMinutes(p.Minutes))
		if len(p.Files) > 0 {
			w("- **Files touched**:")
			for _, f := range p.Files {
				w("  - `%s`", f)
			}
		}
		w("")
	}

	w("## Documents")
	w("")
	w("### Created")
	w("")
	writeList(w, wl.CreatedDocs)
	w("")
	w("### Modified")
	w("")
	writeList(w, wl.ModifiedDocs)
	w("")

	w("## Totals")
	w("")
	w("- **Sessions**: %d", wl.TotalSessions)
	w("- **Projects**: %d", len(wl.Projects))
	w("- **Estimated time**: %s", formatMinutes(wl.TotalMinutes))

	return renderFrontMatter(frontMatter{
		Title:    "Work Log - " + r.Date,
		Date:     r.Date,
		Type:     "work-log",
		Since:    formatTime(wl.Since),
		Sessions: wl.TotalSessions,
		Tags:     []string{"work-log"},
	}, b.String())
}

func writeList(w func(string, ...any), items []string) {
	if len(items) == 0 {
		w("- None")
		return
	}
	for _, it := range items {
		w("- `%s`", it)
	}
}

func formatMinutes(m int) string {
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	if m%60 == 0 {
		return fmt.Sprintf("%dh", m/60)
	}
	return fmt.Sprintf("%dh %dm", m/60, m%60)
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format(time.RFC3339)
}
