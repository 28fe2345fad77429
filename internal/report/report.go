// Package report assembles and persists the daily analysis artifacts.
package report

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"agentreflect/internal/evidence"
	"agentreflect/internal/paths"
	"agentreflect/internal/trends"
	"agentreflect/internal/worklog"
)

// Input is everything a run produced.
type Input struct {
	Date          time.Time
	GeneratedAt   time.Time
	Since         time.Time
	Until         time.Time
	Results       *evidence.ResultSet
	Trends        *trends.Table
	WorkLog       *worklog.WorkLog
	TotalSessions int
}

// TimeRange is the analysis window.
type TimeRange struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

// Summary holds run-wide counts.
type Summary struct {
	TotalSessions    int `json:"total_sessions"`
	AntiPatternCount int `json:"anti_pattern_count"`
	WinCount         int `json:"win_count"`
}

// Category is one category's entry in the JSON report.
type Category struct {
	Display      string                 `json:"display"`
	Description  string                 `json:"description"`
	AntiPatterns []evidence.AntiPattern `json:"anti_patterns"`
	Wins         []evidence.Win         `json:"wins"`
	Summary      string                 `json:"summary"`
	Count        int                    `json:"count"`
	Average      float64                `json:"seven_day_avg"`
	Delta        float64                `json:"delta"`
	Error        string                 `json:"error,omitempty"`
}

// Categories is an ordered name-to-entry mapping.
type Categories struct {
	Names   []string
	Entries map[string]Category
}

// MarshalJSON writes entries as an object keyed in order.
func (c Categories) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.Names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.Entries[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// SessionLink points at an example session referenced by a finding.
type SessionLink struct {
	Path     string `json:"path"`
	Line     int    `json:"line"`
	Category string `json:"category"`
}

// Report is the persisted JSON document.
type Report struct {
	Date         string           `json:"date"`
	GeneratedAt  time.Time        `json:"generated_at"`
	TimeRange    TimeRange        `json:"time_range"`
	Summary      Summary          `json:"summary"`
	Categories   Categories       `json:"categories"`
	SessionLinks []SessionLink    `json:"session_links"`
	Trends       *trends.Table    `json:"trends"`
	WorkLog      *worklog.WorkLog `json:"worklog,omitempty"`

	displays map[string]string
}

// Build assembles the report from a run's outputs.
func Build(in Input) *Report {
	r := &Report{
		Date:         in.Date.Format(paths.DateLayout),
		GeneratedAt:  in.GeneratedAt.UTC(),
		TimeRange:    TimeRange{Since: in.Since, Until: in.Until},
		Summary:      Summary{TotalSessions: in.TotalSessions},
		Categories:   Categories{Entries: make(map[string]Category, in.Results.Len())},
		SessionLinks: []SessionLink{},
		Trends:       in.Trends,
		WorkLog:      in.WorkLog,
		displays:     make(map[string]string, in.Results.Len()),
	}

	for _, res := range in.Results.All() {
		name := res.Category.Name
		entry := Category{
			Display:      res.Category.Label(),
			Description:  res.Category.Description,
			AntiPatterns: nonNilAnti(res.AntiPatterns),
			Wins:         nonNilWins(res.Wins),
			Summary:      res.Summary,
			Count:        len(res.AntiPatterns),
			Error:        res.Error,
		}
		if in.Trends != nil {
			if t, ok := in.Trends.Get(name); ok {
				entry.Average, entry.Delta = t.Average, t.Delta
			}
		}
		r.Categories.Names = append(r.Categories.Names, name)
		r.Categories.Entries[name] = entry
		r.displays[name] = entry.Display

		r.Summary.AntiPatternCount += len(res.AntiPatterns)
		r.Summary.WinCount += len(res.Wins)

		for _, ap := range res.AntiPatterns {
			for _, ref := range ap.ExampleSessions {
				r.SessionLinks = append(r.SessionLinks, ParseSessionLink(ref, name))
			}
		}
	}
	return r
}

// ParseSessionLink splits "path:line". A missing or non-numeric suffix
// yields line 0 and the whole reference as path.
func ParseSessionLink(ref, category string) SessionLink {
	i := strings.LastIndex(ref, ":")
	if i < 0 {
		return SessionLink{Path: ref, Category: category}
	}
	line, err := strconv.Atoi(ref[i+1:])
	if err != nil {
		return SessionLink{Path: ref, Category: category}
	}
	return SessionLink{Path: ref[:i], Line: line, Category: category}
}

// Display returns the label for a category name.
func (r *Report) Display(name string) string {
	if d, ok := r.displays[name]; ok {
		return d
	}
	return name
}

// JSON encodes the report with two-space indentation.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func nonNilAnti(a []evidence.AntiPattern) []evidence.AntiPattern {
	if a == nil {
		return []evidence.AntiPattern{}
	}
	return a
}

func nonNilWins(w []evidence.Win) []evidence.Win {
	if w == nil {
		return []evidence.Win{}
	}
	return w
}
