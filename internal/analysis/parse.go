package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"agentreflect/internal/evidence"
)

// Response is the JSON object the generator is asked to return.
type Response struct {
	AntiPatterns []evidence.AntiPattern `json:"anti_patterns"`
	Wins         []evidence.Win         `json:"wins"`
	Summary      string                 `json:"summary"`
}

// StripFence removes a surrounding ``` fence, with or without a language tag.
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := strings.TrimPrefix(s, "```")
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		body = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), "```"))
		return strings.TrimSpace(strings.TrimLeftFunc(body, isTagRune))
	}
	tag := strings.TrimSpace(body[:nl])
	if strings.ContainsAny(tag, " {[\"") {
		return s
	}
	body = strings.TrimRight(body[nl+1:], " \t\r\n")
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

func isTagRune(r rune) bool {
	return r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// ParseResponse decodes raw generator output.
func ParseResponse(raw string) (*Response, error) {
	text := StripFence(raw)
	if !strings.HasPrefix(text, "{") {
		return nil, fmt.Errorf("JSON parse error: response is not a JSON object")
	}
	var resp Response
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("JSON parse error: %w", err)
	}
	if resp.AntiPatterns == nil {
		resp.AntiPatterns = []evidence.AntiPattern{}
	}
	if resp.Wins == nil {
		resp.Wins = []evidence.Win{}
	}
	return &resp, nil
}
