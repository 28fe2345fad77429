// Package worklog reconstructs a day's activity from raw session records
// and the document tree.
package worklog

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize/english"

	"agentreflect/internal/cass"
	"agentreflect/internal/doctree"
)

const (
	unknownProject    = "unknown"
	minutesPerSession = 5
	minMinutes        = 5
	maxMinutes        = 480
)

// touchPattern finds file paths after an action verb. Matches are a
// best-effort hint: it misses some touches and reports some false ones.
var touchPattern = regexp.MustCompile(`(?i)\b(?:wrote|created|modified|edited|read)\s+["'` + "`" + `]?([\w./~-]+\.[a-z0-9]{1,10})\b`)

// ProjectWork is one workspace's activity.
type ProjectWork struct {
	Name      string               `json:"name"`
	Sessions  []cass.SessionRecord `json:"-"`
	Count     int                  `json:"session_count"`
	Files     []string             `json:"files_touched"`
	Minutes   int                  `json:"estimated_minutes"`
	Workspace string               `json:"workspace,omitempty"`
}

// WorkLog is a run's activity reconstruction.
type WorkLog struct {
	Since         time.Time      `json:"since"`
	Projects      []*ProjectWork `json:"projects"`
	CreatedDocs   []string       `json:"created_docs"`
	ModifiedDocs  []string       `json:"modified_docs"`
	Highlights    []string       `json:"highlights"`
	TotalMinutes  int            `json:"total_minutes"`
	TotalSessions int            `json:"total_sessions"`
}

// Build clusters sessions into projects and classifies documents touched
// at or after since.
func Build(sessions []cass.SessionRecord, docs *doctree.Tree, since time.Time) *WorkLog {
	wl := &WorkLog{
		Since:         since,
		Projects:      GroupProjects(sessions),
		CreatedDocs:   []string{},
		ModifiedDocs:  []string{},
		TotalSessions: len(sessions),
	}
	for _, p := range wl.Projects {
		wl.TotalMinutes += p.Minutes
	}
	wl.CreatedDocs, wl.ModifiedDocs = ClassifyDocuments(docs, since)
	wl.Highlights = Highlights(wl)
	return wl
}

// GroupProjects groups sessions by the last segment of their workspace,
// most sessions first. Ties keep first-seen order.
func GroupProjects(sessions []cass.SessionRecord) []*ProjectWork {
	var projects []*ProjectWork
	byName := make(map[string]*ProjectWork)
	for _, s := range sessions {
		name := ProjectName(s.Workspace)
		p, ok := byName[name]
		if !ok {
			p = &ProjectWork{Name: name, Workspace: s.Workspace}
			byName[name] = p
			projects = append(projects, p)
		}
		p.Sessions = append(p.Sessions, s)
	}

	for _, p := range projects {
		p.Count = len(p.Sessions)
		p.Files = TouchedFiles(p.Sessions)
		p.Minutes = EstimateMinutes(p.Sessions)
	}
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].Count > projects[j].Count
	})
	if projects == nil {
		projects = []*ProjectWork{}
	}
	return projects
}

// ProjectName returns the workspace's final path segment, or "unknown".
func ProjectName(workspace string) string {
	ws := strings.TrimRight(strings.ReplaceAll(workspace, `\`, "/"), "/")
	if ws == "" {
		return unknownProject
	}
	return path.Base(ws)
}

// TouchedFiles extracts the sorted distinct file paths mentioned after an
// action verb in the sessions' content.
func TouchedFiles(sessions []cass.SessionRecord) []string {
	set := make(map[string]struct{})
	for _, s := range sessions {
		for _, m := range touchPattern.FindAllStringSubmatch(s.Content, -1) {
			set[m[1]] = struct{}{}
		}
	}
	files := make([]string, 0, len(set))
	for f := range set {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// EstimateMinutes spans the earliest to the latest session timestamp,
// clamped to [5, 480]. With fewer than two timestamps it allows five
// minutes per session.
func EstimateMinutes(sessions []cass.SessionRecord) int {
	var stamps []int64
	for _, s := range sessions {
		if s.CreatedAt.Valid {
			stamps = append(stamps, s.CreatedAt.Millis)
		}
	}
	if len(stamps) < 2 {
		return minutesPerSession * len(sessions)
	}
	lo, hi := stamps[0], stamps[0]
	for _, ts := range stamps[1:] {
		lo = min(lo, ts)
		hi = max(hi, ts)
	}
	minutes := int((hi - lo) / 60000)
	return max(minMinutes, min(minutes, maxMinutes))
}

// ClassifyDocuments splits in-window documents into created and modified.
// A file is created when its birth time is also in the window; files
// without a birth time count as modified.
func ClassifyDocuments(docs *doctree.Tree, since time.Time) (created, modified []string) {
	created, modified = []string{}, []string{}
	for _, f := range docs.Files(since) {
		if !f.BirthTime.IsZero() && !f.BirthTime.Before(since) {
			created = append(created, f.Path)
		} else {
			modified = append(modified, f.Path)
		}
	}
	return created, modified
}

// Highlights returns the narrative lines for wl, empty when there are no
// projects.
func Highlights(wl *WorkLog) []string {
	if len(wl.Projects) == 0 {
		return []string{}
	}
	top := wl.Projects[0]
	return []string{
		fmt.Sprintf("Most active project: %s (%s)", top.Name, english.Plural(top.Count, "session", "")),
		fmt.Sprintf("Created %s", english.Plural(len(wl.CreatedDocs), "new document", "")),
	}
}
