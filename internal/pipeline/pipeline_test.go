package pipeline

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentreflect/internal/cass"
	"agentreflect/internal/config"
	"agentreflect/internal/errors"
	"agentreflect/internal/paths"
	"agentreflect/internal/remote"
	"agentreflect/internal/report"
	"agentreflect/internal/slogutil"
	"agentreflect/internal/storage"
)

var fixedNow = time.Date(2026, 10, 19, 6, 0, 0, 0, time.Local)

type fakeIndex struct {
	mu       sync.Mutex
	healthy  bool
	indexErr error
	syncErr  error
	searches []string
	synced   int
	indexed  int
	extra    []cass.SessionRecord
}

func (f *fakeIndex) Search(_ context.Context, query string, _ cass.SearchOptions) ([]cass.SessionRecord, error) {
	f.mu.Lock()
	f.searches = append(f.searches, query)
	f.mu.Unlock()

	if query == "*" {
		start, _ := cass.ParseTimestamp("2026-10-18T10:00:00")
		end, _ := cass.ParseTimestamp("2026-10-18T10:30:00")
		return append([]cass.SessionRecord{
			{SourcePath: "/s/1.jsonl", Workspace: "/home/u/proj-a", CreatedAt: start, Content: "wrote main.go"},
			{SourcePath: "/s/2.jsonl", Workspace: "/home/u/proj-a", CreatedAt: end},
		}, f.extra...), nil
	}
	return []cass.SessionRecord{{
		SourcePath: "/s/" + strings.ReplaceAll(query, " ", "_") + ".jsonl",
		LineNumber: 1,
		Workspace:  "/home/u/proj-a",
		Content:    "agent said " + query,
	}}, nil
}

func (f *fakeIndex) Health(context.Context) bool { return f.healthy }

func (f *fakeIndex) Index(context.Context) error {
	f.indexed++
	return f.indexErr
}

func (f *fakeIndex) SyncSources(context.Context, []string) error {
	f.synced++
	return f.syncErr
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	panic bool
}

func (g *fakeGenerator) Generate(context.Context, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.panic {
		panic("generator exploded")
	}
	return "```json\n" + `{"anti_patterns":[{"description":"claimed tests pass","severity":"high","occurrences":2,"example_sessions":["/s/a.jsonl:12"]}],"wins":[{"description":"ran the suite","occurrences":1}],"summary":"mixed"}` + "\n```", nil
}

type fakeNotifier struct {
	errs []error
}

func (n *fakeNotifier) SendFailure(_ context.Context, err error) (bool, error) {
	n.errs = append(n.errs, err)
	return true, nil
}

type fakePusher struct {
	runIDs []string
	err    error
}

func (p *fakePusher) Push(_ context.Context, runID string, _ *report.Report) (*remote.Result, error) {
	p.runIDs = append(p.runIDs, runID)
	if p.err != nil {
		return nil, p.err
	}
	return &remote.Result{Sent: 3}, nil
}

type fakeHistory struct {
	runs []*storage.Run
}

func (h *fakeHistory) SaveRun(run *storage.Run) error {
	h.runs = append(h.runs, run)
	return nil
}

type fixture struct {
	cfg      *config.Config
	index    *fakeIndex
	gen      *fakeGenerator
	notifier *fakeNotifier
	pusher   *fakePusher
	history  *fakeHistory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.General.OutputDir = t.TempDir()
	cfg.LLM.PromptTemplate = ""
	cfg.Sync.RemoteEnabled = true
	return &fixture{
		cfg:      cfg,
		index:    &fakeIndex{healthy: true},
		gen:      &fakeGenerator{},
		notifier: &fakeNotifier{},
		pusher:   &fakePusher{},
		history:  &fakeHistory{},
	}
}

func (f *fixture) pipeline() *Pipeline {
	return New(f.cfg, Deps{
		Index:     f.index,
		Generator: f.gen,
		Notifier:  f.notifier,
		Pusher:    f.pusher,
		History:   f.history,
		Logger:    slogutil.NewDiscardLogger(),
		Now:       func() time.Time { return fixedNow },
		Sleep:     func(context.Context, time.Duration) error { return nil },
		BirthTime: func(string) (time.Time, bool) { return time.Time{}, false },
	})
}

func TestExecute_Success(t *testing.T) {
	f := newFixture(t)
	dir := f.cfg.General.OutputDir

	out, err := f.pipeline().Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, ExitOK, ExitCode(err))

	require.NotNil(t, out.Written)
	for _, path := range []string{out.Written.JSON, out.Written.Markdown, out.Written.WorkLog} {
		_, statErr := os.Stat(path)
		assert.NoError(t, statErr, path)
	}
	assert.Equal(t, paths.ReportJSONPath(dir, fixedNow), out.Written.JSON)

	data, err := os.ReadFile(out.Written.JSON)
	require.NoError(t, err)
	var decoded struct {
		Summary struct {
			TotalSessions    int `json:"total_sessions"`
			AntiPatternCount int `json:"anti_pattern_count"`
			WinCount         int `json:"win_count"`
		} `json:"summary"`
		Categories map[string]json.RawMessage `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	n := len(config.BuiltinCategories)
	assert.Len(t, decoded.Categories, n)
	assert.Equal(t, n, decoded.Summary.AntiPatternCount)
	assert.Equal(t, n, decoded.Summary.WinCount)
	assert.Positive(t, decoded.Summary.TotalSessions)

	assert.Equal(t, n, f.gen.calls)
	assert.Equal(t, 1, f.index.synced)
	assert.Zero(t, f.index.indexed)
	assert.Contains(t, f.index.searches, "*")

	last, ok := report.ReadLastRun(dir)
	require.True(t, ok)
	assert.True(t, last.Equal(fixedNow))

	require.Len(t, f.history.runs, 1)
	run := f.history.runs[0]
	assert.Equal(t, storage.StatusSucceeded, run.Status)
	assert.Equal(t, out.Run.ID, run.ID)
	assert.Len(t, run.Categories, n)
	assert.Equal(t, []string{run.ID}, f.pusher.runIDs)
	assert.Empty(t, f.notifier.errs)

	require.NotNil(t, out.Report.WorkLog)
	require.Len(t, out.Report.WorkLog.Projects, 1)
	assert.Equal(t, "proj-a", out.Report.WorkLog.Projects[0].Name)
	assert.Equal(t, 30, out.Report.WorkLog.Projects[0].Minutes)
}

func TestExecute_SinceFromLastRun(t *testing.T) {
	f := newFixture(t)
	lastRun := fixedNow.Add(-3 * time.Hour)
	require.NoError(t, report.WriteLastRun(f.cfg.General.OutputDir, lastRun))

	out, err := f.pipeline().Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, out.Run.Since.Equal(lastRun), "since = %v", out.Run.Since)
	assert.True(t, out.Report.TimeRange.Since.Equal(lastRun))
}

func TestExecute_DryRun(t *testing.T) {
	f := newFixture(t)
	f.index.healthy = false

	out, err := f.pipeline().Execute(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.Zero(t, f.gen.calls, "dry run must not call the generator")
	assert.Zero(t, f.index.synced, "dry run must not sync sources")
	assert.Zero(t, f.index.indexed, "dry run must not rebuild the index")
	assert.Empty(t, f.pusher.runIDs)

	_, ok := report.ReadLastRun(f.cfg.General.OutputDir)
	assert.False(t, ok, "dry run must not record the last run")

	for _, name := range out.Report.Categories.Names {
		assert.True(t, strings.HasPrefix(out.Report.Categories.Entries[name].Summary, "[DRY RUN]"))
	}
	require.Len(t, f.history.runs, 1)
	assert.True(t, f.history.runs[0].DryRun)
}

func TestExecute_WorkLogSkipsExcludedWorkspaces(t *testing.T) {
	f := newFixture(t)
	f.cfg.Queries.WorkspaceExclude = []string{"scratch"}
	at, _ := cass.ParseTimestamp("2026-10-18T12:00:00")
	f.index.extra = []cass.SessionRecord{
		{SourcePath: "/s/3.jsonl", Workspace: "/home/u/scratch", CreatedAt: at, Content: "played around"},
	}

	out, err := f.pipeline().Execute(context.Background(), Options{})
	require.NoError(t, err)
	require.NotNil(t, out.Report.WorkLog)
	require.Len(t, out.Report.WorkLog.Projects, 1)
	assert.Equal(t, "proj-a", out.Report.WorkLog.Projects[0].Name)
	assert.Equal(t, 2, out.Report.WorkLog.TotalSessions)
}

func TestExecute_NoWorkLog(t *testing.T) {
	f := newFixture(t)

	out, err := f.pipeline().Execute(context.Background(), Options{NoWorkLog: true})
	require.NoError(t, err)
	assert.Empty(t, out.Written.WorkLog)
	assert.Nil(t, out.Report.WorkLog)
	assert.NotContains(t, f.index.searches, "*")
}

func TestExecute_RebuildsUnhealthyIndex(t *testing.T) {
	f := newFixture(t)
	f.index.healthy = false

	_, err := f.pipeline().Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.index.indexed)
}

func TestExecute_ForceIndex(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline().Execute(context.Background(), Options{ForceIndex: true})
	require.NoError(t, err)
	assert.Equal(t, 1, f.index.indexed)
}

func TestExecute_RebuildFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.index.healthy = false
	f.index.indexErr = fmt.Errorf("disk full")

	_, err := f.pipeline().Execute(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.IndexRebuildFailed))
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, ExitFailure, ExitCode(err))

	require.Len(t, f.notifier.errs, 1)
	assert.Zero(t, f.gen.calls)
	require.Len(t, f.history.runs, 1)
	assert.Equal(t, storage.StatusFailed, f.history.runs[0].Status)
	assert.Contains(t, f.history.runs[0].Error, "INDEX_REBUILD_FAILED")

	_, statErr := os.Stat(paths.ReportJSONPath(f.cfg.General.OutputDir, fixedNow))
	assert.True(t, os.IsNotExist(statErr), "no report after a fatal failure")
}

func TestExecute_SyncAndPushFailuresAreNotFatal(t *testing.T) {
	f := newFixture(t)
	f.index.syncErr = errors.New(errors.SyncFailed, "source sync failed", nil)
	f.pusher.err = errors.New(errors.SyncFailed, "post batch", nil)

	out, err := f.pipeline().Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.Nil(t, out.Pushed)
	assert.Empty(t, f.notifier.errs)
}

func TestExecute_RemoteDisabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.Sync.RemoteEnabled = false

	_, err := f.pipeline().Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.Empty(t, f.pusher.runIDs)
}

func TestExecute_Interrupted(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline().Execute(ctx, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.Interrupted), "err = %v", err)
	assert.Equal(t, ExitInterrupted, ExitCode(err))
	assert.Empty(t, f.notifier.errs, "interrupts do not send email")
	require.Len(t, f.history.runs, 1)
	assert.Equal(t, storage.StatusInterrupted, f.history.runs[0].Status)
}

func TestExecute_PanicBecomesInternalError(t *testing.T) {
	f := newFixture(t)
	f.gen.panic = true

	_, err := f.pipeline().Execute(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.InternalError))
	assert.Contains(t, err.Error(), "generator exploded")
	require.Len(t, f.notifier.errs, 1)
}

func TestExecute_RecordsHistoryInSQLite(t *testing.T) {
	f := newFixture(t)
	store, err := storage.Open(paths.HistoryDBPath(f.cfg.General.OutputDir), slogutil.NewDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	p := New(f.cfg, Deps{
		Index:     f.index,
		Generator: f.gen,
		History:   store,
		Logger:    slogutil.NewDiscardLogger(),
		Now:       func() time.Time { return fixedNow },
		Sleep:     func(context.Context, time.Duration) error { return nil },
	})
	out, err := p.Execute(context.Background(), Options{NoWorkLog: true})
	require.NoError(t, err)

	got, err := store.GetRun(out.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusSucceeded, got.Status)
	assert.Equal(t, out.Report.Summary.AntiPatternCount, got.AntiPatterns)
	assert.Len(t, got.Categories, len(config.BuiltinCategories))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitInterrupted, ExitCode(errors.New(errors.Interrupted, "x", nil)))
	assert.Equal(t, ExitFailure, ExitCode(stderrors.New("boom")))
	assert.Equal(t, ExitFailure, ExitCode(errors.New(errors.IndexRebuildFailed, "x", nil)))
}

func TestExecute_CustomCategoryAppearsInOrder(t *testing.T) {
	f := newFixture(t)
	f.cfg.CustomCategories = append(f.cfg.CustomCategories, config.BuiltinCategories[0])
	f.cfg.CustomCategories[0].Name = "flaky_tests"
	f.cfg.CustomCategories[0].Display = "Flaky Tests"

	out, err := f.pipeline().Execute(context.Background(), Options{NoWorkLog: true})
	require.NoError(t, err)
	names := out.Report.Categories.Names
	require.Len(t, names, len(config.BuiltinCategories)+1)
	assert.Equal(t, "testing_gaps", names[0])
	assert.Equal(t, "flaky_tests", names[len(names)-1])
}
