// Package remote pushes run results to the remote activity store over
// batched JSON-RPC 2.0.
package remote

// Message is a JSON-RPC 2.0 request or response.
type Message struct {
	Jsonrpc string    `json:"jsonrpc"`
	ID      string    `json:"id,omitempty"`
	Method  string    `json:"method,omitempty"`
	Params  any       `json:"params,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// Method names understood by the activity store.
const (
	MethodActivityInsert = "activity.insert"
	MethodAnalysisUpsert = "analysis.upsert"
)

// ActivityParams is one project's work for the day.
type ActivityParams struct {
	RunID            string   `json:"run_id"`
	Date             string   `json:"date"`
	Project          string   `json:"project"`
	Workspace        string   `json:"workspace,omitempty"`
	SessionCount     int      `json:"session_count"`
	EstimatedMinutes int      `json:"estimated_minutes"`
	FilesTouched     []string `json:"files_touched"`
}

// AnalysisParams is one category's findings for the day.
type AnalysisParams struct {
	RunID            string  `json:"run_id"`
	Date             string  `json:"date"`
	Category         string  `json:"category"`
	Display          string  `json:"display"`
	Summary          string  `json:"summary"`
	AntiPatternCount int     `json:"anti_pattern_count"`
	WinCount         int     `json:"win_count"`
	Delta            float64 `json:"delta"`
	AntiPatterns     any     `json:"anti_patterns"`
	Wins             any     `json:"wins"`
	Error            string  `json:"error,omitempty"`
}
