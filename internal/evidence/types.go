// Package evidence gathers per-category evidence from the session-search
// index and the local document tree.
package evidence

import (
	"encoding/json"
	"strconv"
	"strings"

	"agentreflect/internal/cass"
)

// SourceKind tags where a hit came from.
type SourceKind string

const (
	KindIndexed  SourceKind = "indexed"
	KindDocument SourceKind = "document"
)

// Category is a named topical lens with its search phrases.
type Category struct {
	Name        string   `json:"name" toml:"name" mapstructure:"name"`
	Display     string   `json:"display" toml:"display" mapstructure:"display"`
	Description string   `json:"description" toml:"description" mapstructure:"description"`
	Queries     []string `json:"queries" toml:"queries" mapstructure:"queries"`
}

// Label returns the display name, falling back to Name.
func (c Category) Label() string {
	if c.Display != "" {
		return c.Display
	}
	return c.Name
}

// Hit is one matched unit of evidence.
type Hit struct {
	SourcePath string         `json:"source_path"`
	LineNumber int            `json:"line_number"`
	Snippet    string         `json:"content"`
	Query      string         `json:"query"`
	Kind       SourceKind     `json:"source_kind"`
	Workspace  string         `json:"workspace,omitempty"`
	Agent      string         `json:"agent,omitempty"`
	Title      string         `json:"title,omitempty"`
	CreatedAt  cass.Timestamp `json:"created_at"`
}

type hitKey struct {
	source string
	line   int
}

// HitSet accumulates hits, dropping repeats of the same (source, line).
type HitSet struct {
	hits []Hit
	seen map[hitKey]struct{}
}

// Add appends h unless an equal (source, line) pair is already present.
// It reports whether the hit was added.
func (s *HitSet) Add(h Hit) bool {
	if s.seen == nil {
		s.seen = make(map[hitKey]struct{})
	}
	k := hitKey{h.SourcePath, h.LineNumber}
	if _, dup := s.seen[k]; dup {
		return false
	}
	s.seen[k] = struct{}{}
	s.hits = append(s.hits, h)
	return true
}

// Len returns the number of distinct hits.
func (s *HitSet) Len() int { return len(s.hits) }

// Hits returns the hits in insertion order.
func (s *HitSet) Hits() []Hit {
	if len(s.hits) == 0 {
		return []Hit{}
	}
	return append([]Hit(nil), s.hits...)
}

// Count is an occurrence count. Generated output sometimes encodes it as a
// string or something else entirely; anything that is not a number decodes
// to 0 rather than failing the record.
type Count int

func (c *Count) UnmarshalJSON(data []byte) error {
	*c = 0
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch n := v.(type) {
	case float64:
		*c = Count(n)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			*c = Count(f)
		}
	}
	return nil
}

// Sessions is a list of example session references. A non-array value
// decodes to nil and non-string members are dropped.
type Sessions []string

func (s *Sessions) UnmarshalJSON(data []byte) error {
	*s = nil
	var items []any
	if json.Unmarshal(data, &items) != nil {
		return nil
	}
	for _, it := range items {
		if ref, ok := it.(string); ok {
			*s = append(*s, ref)
		}
	}
	return nil
}

// AntiPattern is a negative finding extracted by the analysis service.
type AntiPattern struct {
	Description     string   `json:"description"`
	Severity        string   `json:"severity,omitempty"`
	Occurrences     Count    `json:"occurrences"`
	ExampleSessions Sessions `json:"example_sessions,omitempty"`
	Recommendation  string   `json:"recommendation,omitempty"`
}

// Win is a positive finding extracted by the analysis service.
type Win struct {
	Description     string   `json:"description"`
	Occurrences     Count    `json:"occurrences"`
	ExampleSessions Sessions `json:"example_sessions,omitempty"`
}

// CategoryResult owns one category's evidence and, after analysis, its
// findings. Error is set when search or analysis failed for the category.
type CategoryResult struct {
	Category     Category
	Indexed      HitSet
	Documents    HitSet
	AntiPatterns []AntiPattern
	Wins         []Win
	Summary      string
	Error        string
}

// NewCategoryResult returns an empty result for c.
func NewCategoryResult(c Category) *CategoryResult {
	return &CategoryResult{Category: c, AntiPatterns: []AntiPattern{}, Wins: []Win{}}
}

// Failed returns the marker result used when a category could not be
// searched at all.
func Failed(c Category, err error) *CategoryResult {
	r := NewCategoryResult(c)
	r.Error = err.Error()
	return r
}

// TotalHits is the number of indexed plus document hits.
func (r *CategoryResult) TotalHits() int {
	return r.Indexed.Len() + r.Documents.Len()
}

// Payload is the evidence serialized for the analysis prompt.
func (r *CategoryResult) Payload() ([]byte, error) {
	return json.MarshalIndent(struct {
		Indexed   []Hit `json:"indexed"`
		Documents []Hit `json:"documents"`
	}{r.Indexed.Hits(), r.Documents.Hits()}, "", "  ")
}

// ResultSet is an ordered association from category name to result.
// Iteration always follows insertion order.
type ResultSet struct {
	names []string
	byKey map[string]*CategoryResult
}

// NewResultSet creates an empty set sized for n categories.
func NewResultSet(n int) *ResultSet {
	return &ResultSet{names: make([]string, 0, n), byKey: make(map[string]*CategoryResult, n)}
}

// Put stores r under its category name, keeping the first insertion position.
func (s *ResultSet) Put(r *CategoryResult) {
	name := r.Category.Name
	if _, ok := s.byKey[name]; !ok {
		s.names = append(s.names, name)
	}
	s.byKey[name] = r
}

// Get returns the result for name.
func (s *ResultSet) Get(name string) (*CategoryResult, bool) {
	r, ok := s.byKey[name]
	return r, ok
}

// Names returns category names in order.
func (s *ResultSet) Names() []string {
	return append([]string(nil), s.names...)
}

// All returns results in order.
func (s *ResultSet) All() []*CategoryResult {
	out := make([]*CategoryResult, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, s.byKey[n])
	}
	return out
}

// Len returns the number of categories.
func (s *ResultSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}
