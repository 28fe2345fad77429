// Package trends compares the current run's anti-pattern counts with
// recent daily reports.
package trends

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"time"

	"agentreflect/internal/evidence"
	"agentreflect/internal/paths"
)

// DefaultWindow is the number of prior days compared.
const DefaultWindow = 7

// HistoricalReport is the slice of a persisted report the engine needs.
type HistoricalReport struct {
	Date       string                        `json:"date"`
	Categories map[string]historicalCategory `json:"categories"`
}

type historicalCategory struct {
	AntiPatterns []json.RawMessage `json:"anti_patterns"`
}

// Count returns the anti-pattern count for name and whether the report
// contained the category.
func (h HistoricalReport) Count(name string) (int, bool) {
	c, ok := h.Categories[name]
	if !ok {
		return 0, false
	}
	return len(c.AntiPatterns), true
}

// LoadHistory reads the reports for the window days before today,
// newest first. Missing or unparseable files are skipped.
func LoadHistory(dir string, today time.Time, window int) []HistoricalReport {
	var reports []HistoricalReport
	for i := 1; i <= window; i++ {
		day := today.AddDate(0, 0, -i)
		data, err := os.ReadFile(paths.ReportJSONPath(dir, day))
		if err != nil {
			continue
		}
		var r HistoricalReport
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		reports = append(reports, r)
	}
	return reports
}

// Entry is one category's trend.
type Entry struct {
	Current int     `json:"current"`
	Average float64 `json:"seven_day_avg"`
	Delta   float64 `json:"delta"`
}

// Table holds entries in category order.
type Table struct {
	names   []string
	entries map[string]Entry
}

// Get returns the entry for name.
func (t *Table) Get(name string) (Entry, bool) {
	e, ok := t.entries[name]
	return e, ok
}

// Names returns category names in order.
func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

// MarshalJSON writes entries as an object keyed in category order.
func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range t.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(t.entries[name])
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

// Compute builds the trend table. The mean covers only the reports that
// contained each category; a category seen nowhere has mean 0 and delta
// equal to its current count.
func Compute(current *evidence.ResultSet, history []HistoricalReport) *Table {
	t := &Table{entries: make(map[string]Entry, current.Len())}
	for _, r := range current.All() {
		name := r.Category.Name
		count := len(r.AntiPatterns)

		sum, n := 0, 0
		for _, h := range history {
			if c, ok := h.Count(name); ok {
				sum += c
				n++
			}
		}
		var mean float64
		if n > 0 {
			mean = float64(sum) / float64(n)
		}

		t.names = append(t.names, name)
		t.entries[name] = Entry{
			Current: count,
			Average: round1(mean),
			Delta:   round1(float64(count) - mean),
		}
	}
	return t
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
