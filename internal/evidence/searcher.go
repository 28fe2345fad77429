package evidence

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"agentreflect/internal/cass"
	"agentreflect/internal/doctree"
)

// snippetLimit caps document hit content, in characters.
const snippetLimit = 200

// Backend is the session-search service.
type Backend interface {
	Search(ctx context.Context, query string, opts cass.SearchOptions) ([]cass.SessionRecord, error)
}

// Scope narrows every search issued by a Searcher.
type Scope struct {
	Since            time.Time // zero means no floor
	Agents           []string
	WorkspaceInclude []string
	WorkspaceExclude []string
	Limit            int
}

// Searcher collects evidence for a category.
type Searcher struct {
	backend Backend
	docs    *doctree.Tree
	scope   Scope
	logger  *slog.Logger
}

// NewSearcher creates a searcher. docs may be nil.
func NewSearcher(backend Backend, docs *doctree.Tree, scope Scope, logger *slog.Logger) *Searcher {
	return &Searcher{backend: backend, docs: docs, scope: scope, logger: logger}
}

// Search runs every query phrase of c against the index and the document
// tree. Failed phrases are skipped; only context cancellation is returned.
func (s *Searcher) Search(ctx context.Context, c Category) (*CategoryResult, error) {
	result := NewCategoryResult(c)
	if len(c.Queries) == 0 {
		return result, nil
	}

	opts := cass.SearchOptions{
		Since:      s.scope.Since,
		Agents:     s.scope.Agents,
		Workspaces: s.scope.WorkspaceInclude,
		Limit:      s.scope.Limit,
	}
	for _, q := range c.Queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := s.backend.Search(ctx, q, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("Search phrase skipped",
				"category", c.Name,
				"query", q,
				"error", err.Error(),
			)
			continue
		}
		for _, rec := range records {
			if s.scope.Excludes(rec.Workspace) {
				continue
			}
			result.Indexed.Add(Hit{
				SourcePath: rec.SourcePath,
				LineNumber: rec.LineNumber,
				Snippet:    rec.Content,
				Query:      q,
				Kind:       KindIndexed,
				Workspace:  rec.Workspace,
				Agent:      rec.Agent,
				Title:      rec.Title,
				CreatedAt:  rec.CreatedAt,
			})
		}
	}

	if !s.docs.Empty() {
		if err := s.scanDocuments(ctx, c.Queries, &result.Documents); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("Category searched",
		"category", c.Name,
		"indexed", result.Indexed.Len(),
		"documents", result.Documents.Len(),
	)
	return result, nil
}

// Excludes reports whether workspace contains any WorkspaceExclude entry.
func (sc Scope) Excludes(workspace string) bool {
	for _, sub := range sc.WorkspaceExclude {
		if sub != "" && strings.Contains(workspace, sub) {
			return true
		}
	}
	return false
}

// scanDocuments reads each in-window file once and matches every phrase
// against every line, phrase by phrase.
func (s *Searcher) scanDocuments(ctx context.Context, queries []string, set *HitSet) error {
	type doc struct {
		path  string
		lines []string
		lower []string
	}
	var docs []doc
	for _, f := range s.docs.Files(s.scope.Since) {
		if err := ctx.Err(); err != nil {
			return err
		}
		lines, ok := doctree.ReadLines(f.Path)
		if !ok {
			continue
		}
		d := doc{path: f.Path, lines: lines, lower: make([]string, len(lines))}
		for i, l := range lines {
			d.lower[i] = strings.ToLower(l)
		}
		docs = append(docs, d)
	}

	for _, q := range queries {
		needle := strings.ToLower(q)
		if needle == "" {
			continue
		}
		for _, d := range docs {
			for i, l := range d.lower {
				if !strings.Contains(l, needle) {
					continue
				}
				set.Add(Hit{
					SourcePath: d.path,
					LineNumber: i + 1,
					Snippet:    truncate(strings.TrimSpace(d.lines[i]), snippetLimit),
					Query:      q,
					Kind:       KindDocument,
				})
			}
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
