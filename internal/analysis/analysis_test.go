package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentreflect/internal/command"
	"agentreflect/internal/evidence"
	"agentreflect/internal/slogutil"
)

const okResponse = `{"anti_patterns":[{"description":"claims tests pass","severity":"high","occurrences":2,"example_sessions":["/s/a.jsonl:4"],"recommendation":"run them"}],"wins":[{"description":"small commits","occurrences":"3"}],"summary":"mixed"}`

type scriptedGenerator struct {
	outputs []string
	errs    []error
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.outputs) {
		return g.outputs[i], nil
	}
	return "", errors.New("no more scripted output")
}

type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func resultWithHits(n int) *evidence.CategoryResult {
	r := evidence.NewCategoryResult(evidence.Category{
		Name:        "testing_gaps",
		Display:     "Testing Gaps",
		Description: "Agents claiming to test",
		Queries:     []string{"should work"},
	})
	for i := 0; i < n; i++ {
		r.Indexed.Add(evidence.Hit{SourcePath: "/s/a.jsonl", LineNumber: i + 1, Snippet: "should work"})
	}
	return r
}

func TestAnalyze_NoEvidence(t *testing.T) {
	gen := &scriptedGenerator{}
	c := NewCaller(gen, Options{}, slogutil.NewDiscardLogger())

	r := resultWithHits(0)
	require.NoError(t, c.Analyze(context.Background(), r))
	assert.Equal(t, noEvidenceSummary, r.Summary)
	assert.Empty(t, r.AntiPatterns)
	assert.Empty(t, gen.prompts)
}

func TestAnalyze_DryRun(t *testing.T) {
	gen := &scriptedGenerator{}
	c := NewCaller(gen, Options{DryRun: true}, slogutil.NewDiscardLogger())

	r := resultWithHits(4)
	require.NoError(t, c.Analyze(context.Background(), r))
	assert.Equal(t, "[DRY RUN] Would analyze 4 hits", r.Summary)
	require.Len(t, r.AntiPatterns, 1)
	assert.Equal(t, "low", r.AntiPatterns[0].Severity)
	assert.Empty(t, gen.prompts)
}

func TestAnalyze_RetriesThenSucceeds(t *testing.T) {
	gen := &scriptedGenerator{
		errs:    []error{errors.New("exit 1"), nil, nil},
		outputs: []string{"", "not json at all", "```json\n" + okResponse + "\n```"},
	}
	sleeper := &recordingSleeper{}
	c := NewCaller(gen, Options{
		MaxRetries: 3,
		Backoff:    []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second},
		Sleep:      sleeper.sleep,
	}, slogutil.NewDiscardLogger())

	r := resultWithHits(2)
	require.NoError(t, c.Analyze(context.Background(), r))

	assert.Len(t, gen.prompts, 3)
	assert.Equal(t, []time.Duration{5 * time.Second, 15 * time.Second}, sleeper.waits)
	assert.Empty(t, r.Error)
	assert.Equal(t, "mixed", r.Summary)
	require.Len(t, r.AntiPatterns, 1)
	assert.Equal(t, evidence.Count(2), r.AntiPatterns[0].Occurrences)
	require.Len(t, r.Wins, 1)
	assert.Equal(t, evidence.Count(3), r.Wins[0].Occurrences)
}

func TestAnalyze_ExhaustedRetries(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{
		errors.New("first"), errors.New("second"), errors.New("third"), errors.New("fourth"),
	}}
	sleeper := &recordingSleeper{}
	c := NewCaller(gen, Options{
		MaxRetries: 4,
		Backoff:    []time.Duration{time.Second, 2 * time.Second},
		Sleep:      sleeper.sleep,
	}, slogutil.NewDiscardLogger())

	r := resultWithHits(1)
	require.NoError(t, c.Analyze(context.Background(), r))

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 2 * time.Second}, sleeper.waits)
	assert.Equal(t, "[ANALYSIS_FAILED] 4 attempts failed: fourth", r.Error)
	assert.Equal(t, "Analysis failed: fourth", r.Summary)
	assert.Empty(t, r.AntiPatterns)
}

func TestAnalyze_CancelledDuringBackoff(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{errors.New("x"), errors.New("y")}}
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCaller(gen, Options{
		MaxRetries: 2,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}, slogutil.NewDiscardLogger())

	err := c.Analyze(ctx, resultWithHits(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeAll_SkipsFailedSearches(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{okResponse}}
	c := NewCaller(gen, Options{Sleep: (&recordingSleeper{}).sleep}, slogutil.NewDiscardLogger())

	set := evidence.NewResultSet(2)
	set.Put(evidence.Failed(evidence.Category{Name: "broken"}, errors.New("panic")))
	set.Put(resultWithHits(1))

	require.NoError(t, c.AnalyzeAll(context.Background(), set))
	assert.Len(t, gen.prompts, 1)

	broken, _ := set.Get("broken")
	assert.Equal(t, "panic", broken.Error)
	assert.Equal(t, "Search failed: panic", broken.Summary)
}

func TestBackoffFor(t *testing.T) {
	schedule := []time.Duration{5, 15, 45}
	assert.Equal(t, time.Duration(5), BackoffFor(schedule, 0))
	assert.Equal(t, time.Duration(45), BackoffFor(schedule, 2))
	assert.Equal(t, time.Duration(45), BackoffFor(schedule, 9))
	assert.Equal(t, time.Duration(0), BackoffFor(nil, 1))
}

func TestRender(t *testing.T) {
	got := Render("{a}: {b} {{literal}} {missing} {", map[string]string{"a": "X", "b": "{Y}"})
	assert.Equal(t, "X: {Y} {literal} {missing} {", got)
}

func TestPrompt_DefaultTemplate(t *testing.T) {
	c := NewCaller(&scriptedGenerator{}, Options{}, slogutil.NewDiscardLogger())
	prompt, err := c.Prompt(resultWithHits(1))
	require.NoError(t, err)

	assert.Contains(t, prompt, "Testing Gaps: Agents claiming to test")
	assert.Contains(t, prompt, `"source_path": "/s/a.jsonl"`)
	assert.Contains(t, prompt, "\n{\n  \"anti_patterns\"")
	assert.NotContains(t, prompt, "{{")
	assert.NotContains(t, prompt, "{category_name}")
}

func TestLoadTemplate(t *testing.T) {
	tmpl, fromFile := LoadTemplate("")
	assert.False(t, fromFile)
	assert.Equal(t, DefaultTemplate, tmpl)

	_, fromFile = LoadTemplate(filepath.Join(t.TempDir(), "missing.md"))
	assert.False(t, fromFile)

	path := filepath.Join(t.TempDir(), "prompt.md")
	require.NoError(t, os.WriteFile(path, []byte("custom {category_name}"), 0o644))
	tmpl, fromFile = LoadTemplate(path)
	assert.True(t, fromFile)
	assert.Equal(t, "custom {category_name}", tmpl)
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"bare", okResponse, false},
		{"fenced json", "```json\n" + okResponse + "\n```", false},
		{"fenced no tag", "```\n" + okResponse + "\n```\n", false},
		{"fenced one line", "```json " + okResponse + "```", false},
		{"fenced one line no tag", "```" + okResponse + "```", false},
		{"empty object", "{}", false},
		{"array", "[]", true},
		{"prose", "Here are the findings", true},
		{"truncated", `{"anti_patterns": [`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseResponse(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, strings.HasPrefix(err.Error(), "JSON parse error"))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, resp.AntiPatterns)
			assert.NotNil(t, resp.Wins)
		})
	}
}

func TestStripFence(t *testing.T) {
	for raw, want := range map[string]string{
		`{"a":1}`:                 `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		"```json {\"a\":1}```":    `{"a":1}`,
		"```JSON5{\"a\":1} ```":   `{"a":1}`,
		"```{\"a\":1}```":         `{"a":1}`,
		"  ```\n[1]\n```  ":       `[1]`,
	} {
		assert.Equal(t, want, StripFence(raw), "%q", raw)
	}
}

func TestParseResponse_LenientRecordFields(t *testing.T) {
	raw := `{"anti_patterns":[` +
		`{"description":"x","occurrences":"many","example_sessions":"/s/a.jsonl"},` +
		`{"description":"y","occurrences":true,"example_sessions":["/s/b.jsonl:2"]}],` +
		`"wins":[{"description":"z","occurrences":"3"}],"summary":"ok"}`

	resp, err := ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, resp.AntiPatterns, 2)
	assert.Equal(t, evidence.Count(0), resp.AntiPatterns[0].Occurrences)
	assert.Nil(t, resp.AntiPatterns[0].ExampleSessions)
	assert.Equal(t, evidence.Count(0), resp.AntiPatterns[1].Occurrences)
	assert.Equal(t, evidence.Sessions{"/s/b.jsonl:2"}, resp.AntiPatterns[1].ExampleSessions)
	require.Len(t, resp.Wins, 1)
	assert.Equal(t, evidence.Count(3), resp.Wins[0].Occurrences)
	assert.Equal(t, "ok", resp.Summary)
}

type fakeRunner struct {
	name string
	args []string
	res  *command.Result
	err  error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (*command.Result, error) {
	f.name, f.args = name, args
	return f.res, f.err
}

func TestCommandGenerator(t *testing.T) {
	runner := &fakeRunner{res: &command.Result{Stdout: []byte("  {\"summary\":\"s\"}\n")}}
	gen := NewCommandGenerator("", runner)

	out, err := gen.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"s"}`, out)
	assert.Equal(t, DefaultMethod, runner.name)
	assert.Equal(t, []string{"-p", "hello"}, runner.args)

	runner.res = &command.Result{Stdout: []byte("   ")}
	_, err = gen.Generate(context.Background(), "hello")
	assert.ErrorContains(t, err, "empty output")

	runner.err = &command.ExitError{Name: "claude", ExitCode: 1, Stderr: "rate limited"}
	_, err = gen.Generate(context.Background(), "hello")
	assert.ErrorContains(t, err, "rate limited")
}
