package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"agentreflect/internal/evidence"
)

// BuiltinCategories are always searched, before any custom categories.
var BuiltinCategories = []evidence.Category{
	{
		Name:        "testing_gaps",
		Display:     "Testing Gaps",
		Description: "Agents claiming to test without actually running tests",
		Queries:     []string{"claim to test", "should work", "looks correct", "assuming it works"},
	},
	{
		Name:        "unused_artifacts",
		Display:     "Unused Artifacts",
		Description: "Screenshots or files created but never analyzed",
		Queries:     []string{"screenshot", "captured", "saved image"},
	},
	{
		Name:        "debug_pollution",
		Display:     "Debug Pollution",
		Description: "Debug logging left in production code",
		Queries:     []string{"console.log", "println!", "dbg!", "print(", "debugger"},
	},
	{
		Name:        "state_management",
		Display:     "State Management",
		Description: "Missing state update notifications after mutations",
		Queries:     []string{"notify", "setState", "signal", "emit"},
	},
	{
		Name:        "naming_inconsistencies",
		Display:     "Naming Inconsistencies",
		Description: "Key name mismatches and identifier typos",
		Queries:     []string{"wrong key", "typo", "mismatch", "incorrect name"},
	},
	{
		Name:        "process_skips",
		Display:     "Process Skips",
		Description: "Verification steps bypassed before commits",
		Queries:     []string{"skip verification", "without checking", "bypass", "skip test"},
	},
	{
		Name:        "error_handling",
		Display:     "Error Handling",
		Description: "Missing or inadequate error handling",
		Queries:     []string{"uncaught", "unhandled", "missing try", "bare unwrap", "panic"},
	},
	{
		Name:        "todo_accumulation",
		Display:     "TODO Accumulation",
		Description: "Technical debt markers not addressed",
		Queries:     []string{"TODO", "FIXME", "HACK", "XXX"},
	},
}

// categoryFile is the layout of a category pack file.
type categoryFile struct {
	Categories []evidence.Category `toml:"categories"`
}

// LoadCategoryFile reads the [[categories]] tables of a pack file.
func LoadCategoryFile(path string) ([]evidence.Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "category_files", Message: err.Error()}
	}
	var f categoryFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, &ConfigError{Field: "category_files", Message: fmt.Sprintf("%s: %v", path, err)}
	}
	return f.Categories, nil
}

// Categories returns the built-in categories followed by custom categories
// and then those from category files, in file order.
func (c *Config) Categories() ([]evidence.Category, error) {
	cats := make([]evidence.Category, 0, len(BuiltinCategories)+len(c.CustomCategories))
	for _, b := range BuiltinCategories {
		b.Queries = append([]string(nil), b.Queries...)
		cats = append(cats, b)
	}
	cats = append(cats, c.CustomCategories...)
	for _, path := range c.CategoryFiles {
		extra, err := LoadCategoryFile(path)
		if err != nil {
			return nil, err
		}
		cats = append(cats, extra...)
	}
	return cats, nil
}
