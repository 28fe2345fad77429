// Package cass talks to the coding-agent session-search CLI ("cass").
package cass

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SessionRecord is one hit returned by `cass search --robot`.
type SessionRecord struct {
	SourcePath string    `json:"source_path"`
	LineNumber int       `json:"line_number"`
	Workspace  string    `json:"workspace,omitempty"`
	Agent      string    `json:"agent,omitempty"`
	Title      string    `json:"title,omitempty"`
	CreatedAt  Timestamp `json:"created_at"`
	Content    string    `json:"content,omitempty"`
}

// SearchResponse is the top-level robot-mode search payload.
type SearchResponse struct {
	Hits []SessionRecord `json:"hits"`
}

// HealthResponse is the payload of `cass health --json`.
type HealthResponse struct {
	Healthy bool `json:"healthy"`
}

// Timestamp accepts either epoch milliseconds or ISO-8601 text.
// The zero value is "absent".
type Timestamp struct {
	Millis int64
	Valid  bool
}

// isoLayouts are tried in order; naive layouts are read in local time.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses ISO-8601 text into a Timestamp.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	for _, layout := range isoLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return Timestamp{Millis: t.UnixMilli(), Valid: true}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Time returns the timestamp as a time.Time (zero when invalid).
func (t Timestamp) Time() time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return time.UnixMilli(t.Millis)
}

// UnmarshalJSON implements json.Unmarshaler. Unparseable text yields an
// invalid timestamp rather than an error so one odd record does not
// discard a whole search response.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*t = Timestamp{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			*t = Timestamp{Millis: ms, Valid: true}
			return nil
		}
		parsed, err := ParseTimestamp(s)
		if err == nil {
			*t = parsed
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return nil
	}
	*t = Timestamp{Millis: int64(f), Valid: true}
	return nil
}

// MarshalJSON writes valid timestamps as epoch milliseconds, else null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.Millis, 10)), nil
}
