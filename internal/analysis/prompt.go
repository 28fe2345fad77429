// Package analysis turns a category's evidence into findings by calling an
// external text-generation command.
package analysis

import (
	"os"
	"strings"
)

// DefaultTemplate is used when no template file is configured or readable.
const DefaultTemplate = `You are analyzing coding agent session data from CASS (Coding Agent Session Search).

## Task
Analyze the following session data for:
1. **Anti-patterns**: Issues, mistakes, or bad practices
2. **Wins**: Good practices, successful patterns, improvements

## Category Being Analyzed
{category_name}: {category_description}

## Session Data (JSON)
{cass_results}

## Output Format
Respond with ONLY valid JSON (no markdown, no explanation):
{{
  "anti_patterns": [
    {{
      "description": "Brief description of the issue",
      "severity": "high|medium|low",
      "occurrences": 3,
      "example_sessions": ["path/to/session.jsonl:42"],
      "recommendation": "How to improve"
    }}
  ],
  "wins": [
    {{
      "description": "Brief description of good practice",
      "occurrences": 5,
      "example_sessions": ["path/to/session.jsonl:100"]
    }}
  ],
  "summary": "One sentence summary of findings for this category"
}}
`

// LoadTemplate returns the contents of path, or DefaultTemplate when path is
// empty or unreadable.
func LoadTemplate(path string) (tmpl string, fromFile bool) {
	if path == "" {
		return DefaultTemplate, false
	}
	data, err := os.ReadFile(path)
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return DefaultTemplate, false
	}
	return string(data), true
}

// Render substitutes {name} placeholders from vars. "{{" and "}}" produce
// literal braces; unknown placeholders are left as written.
func Render(tmpl string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		switch {
		case ch == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case ch == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case ch == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				b.WriteByte(ch)
				continue
			}
			name := tmpl[i+1 : i+1+end]
			if v, ok := vars[name]; ok {
				b.WriteString(v)
				i += end + 1
				continue
			}
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
