// Package pipeline wires the searcher, analysis, trend, work-log and report
// stages into one daily run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"agentreflect/internal/analysis"
	"agentreflect/internal/cass"
	"agentreflect/internal/config"
	"agentreflect/internal/doctree"
	"agentreflect/internal/errors"
	"agentreflect/internal/evidence"
	"agentreflect/internal/orchestrator"
	"agentreflect/internal/remote"
	"agentreflect/internal/report"
	"agentreflect/internal/storage"
	"agentreflect/internal/trends"
	"agentreflect/internal/worklog"
)

// Exit codes of a run.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// Index is the session-search service.
type Index interface {
	Search(ctx context.Context, query string, opts cass.SearchOptions) ([]cass.SessionRecord, error)
	Health(ctx context.Context) bool
	Index(ctx context.Context) error
	SyncSources(ctx context.Context, sources []string) error
}

// Notifier reports fatal run failures.
type Notifier interface {
	SendFailure(ctx context.Context, runErr error) (bool, error)
}

// Pusher mirrors a report to the remote activity store.
type Pusher interface {
	Push(ctx context.Context, runID string, r *report.Report) (*remote.Result, error)
}

// History records finished runs.
type History interface {
	SaveRun(run *storage.Run) error
}

// Deps are the collaborators of a Pipeline. Notifier, Pusher and History
// may be nil.
type Deps struct {
	Index     Index
	Generator analysis.Generator
	Notifier  Notifier
	Pusher    Pusher
	History   History
	Logger    *slog.Logger
	Now       func() time.Time
	Sleep     analysis.Sleeper
	// BirthTime overrides file creation-time lookup for the document tree.
	BirthTime func(path string) (time.Time, bool)
}

// Options are per-run switches.
type Options struct {
	DryRun     bool
	ForceIndex bool
	NoWorkLog  bool
}

// Outcome is what a run produced.
type Outcome struct {
	Run      *storage.Run
	Report   *report.Report
	Written  *report.Written
	Archived []string
	Pushed   *remote.Result
}

// Pipeline runs the daily analysis.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
	log  *slog.Logger
	now  func() time.Time
}

// New creates a pipeline for cfg.
func New(cfg *config.Config, deps Deps) *Pipeline {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, deps: deps, log: deps.Logger, now: deps.Now}
}

// Execute performs one run and records it. A panic becomes an
// INTERNAL_ERROR; any failure other than an interrupt triggers the failure
// email.
func (p *Pipeline) Execute(ctx context.Context, opts Options) (out *Outcome, err error) {
	run := storage.NewRun(p.now(), opts.DryRun)
	out = &Outcome{Run: run}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Pipeline panicked", "panic", r, "stack", string(debug.Stack()))
			err = errors.New(errors.InternalError, fmt.Sprintf("panic: %v", r), nil)
		}
		if err != nil && ctx.Err() != nil && !errors.IsCode(err, errors.Interrupted) {
			err = errors.New(errors.Interrupted, "run interrupted", err)
		}
		p.finish(ctx, out, err)
	}()

	err = p.run(ctx, opts, out)
	return out, err
}

// finish records the run and sends the failure email when needed.
func (p *Pipeline) finish(ctx context.Context, out *Outcome, err error) {
	run := out.Run
	run.FinishedAt = p.now()
	switch {
	case err == nil:
		run.Status = storage.StatusSucceeded
	case errors.IsCode(err, errors.Interrupted):
		run.Status = storage.StatusInterrupted
		run.Error = err.Error()
	default:
		run.Status = storage.StatusFailed
		run.Error = err.Error()
	}

	if p.deps.History != nil {
		if herr := p.deps.History.SaveRun(run); herr != nil {
			p.log.Warn("Failed to record run history", "run_id", run.ID, "error", herr)
		}
	}

	if err == nil {
		p.log.Info("Run completed", "run_id", run.ID, "duration", run.Duration().Round(time.Millisecond))
		return
	}
	if errors.IsCode(err, errors.Interrupted) {
		p.log.Warn("Run interrupted", "run_id", run.ID)
		return
	}

	p.log.Error("Run failed", "run_id", run.ID, "code", errors.CodeOf(err), "error", err)
	if p.deps.Notifier == nil {
		return
	}
	// The run context may already be done; the email gets its own deadline.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	sent, nerr := p.deps.Notifier.SendFailure(nctx, err)
	switch {
	case nerr != nil:
		p.log.Error("Failed to send failure email", "error", nerr)
	case sent:
		p.log.Info("Failure email sent")
	}
}

func (p *Pipeline) run(ctx context.Context, opts Options, out *Outcome) error {
	cfg := p.cfg
	run := out.Run
	dir := cfg.General.OutputDir

	categories, err := cfg.Categories()
	if err != nil {
		return errors.New(errors.ConfigInvalid, "load categories", err)
	}

	if err := p.syncSources(ctx, opts); err != nil {
		return err
	}
	if err := p.ensureIndex(ctx, opts); err != nil {
		return err
	}

	now := p.now()
	lastRun, hasLastRun := report.ReadLastRun(dir)
	since := report.ResolveSince(cfg.Queries.Scope, lastRun, hasLastRun, now)
	run.Since, run.Until = since, now
	p.log.Info("Analyzing sessions", "since", since.Format(time.RFC3339), "categories", len(categories), "dry_run", opts.DryRun)

	docs := doctree.New(cfg.Documents.Dirs, cfg.Documents.Patterns)
	if p.deps.BirthTime != nil {
		docs.SetBirthTimeFunc(p.deps.BirthTime)
	}

	searcher := evidence.NewSearcher(p.deps.Index, docs, evidence.Scope{
		Since:            since,
		Agents:           cfg.Queries.Agents,
		WorkspaceInclude: cfg.Queries.WorkspaceInclude,
		WorkspaceExclude: cfg.Queries.WorkspaceExclude,
		Limit:            cfg.Queries.Limit,
	}, p.log)
	results, err := orchestrator.New(searcher, cfg.Queries.MaxParallel, p.log).Run(ctx, categories)
	if err != nil {
		return p.interrupted(ctx, err)
	}

	tmpl, fromFile := analysis.LoadTemplate(cfg.LLM.PromptTemplate)
	if !fromFile {
		p.log.Debug("Using built-in prompt template", "path", cfg.LLM.PromptTemplate)
	}
	caller := analysis.NewCaller(p.deps.Generator, analysis.Options{
		Template:   tmpl,
		MaxRetries: cfg.LLM.MaxRetries,
		Backoff:    cfg.Backoff(),
		DryRun:     opts.DryRun,
		Sleep:      p.deps.Sleep,
	}, p.log)
	if err := caller.AnalyzeAll(ctx, results); err != nil {
		return p.interrupted(ctx, err)
	}

	history := trends.LoadHistory(dir, now, cfg.General.TrendWindow)
	table := trends.Compute(results, history)

	var wl *worklog.WorkLog
	if cfg.WorkLog.Enabled && !opts.NoWorkLog {
		wl = p.buildWorkLog(ctx, docs, since)
	}
	if err := ctx.Err(); err != nil {
		return p.interrupted(ctx, err)
	}

	total := 0
	for _, r := range results.All() {
		total += r.TotalHits()
	}

	rep := report.Build(report.Input{
		Date:          now,
		GeneratedAt:   p.now(),
		Since:         since,
		Until:         now,
		Results:       results,
		Trends:        table,
		WorkLog:       wl,
		TotalSessions: total,
	})
	out.Report = rep
	fillRun(run, rep, results)

	written, err := report.WriteAll(dir, rep, now)
	if err != nil {
		return err
	}
	out.Written = written
	run.ReportPath = written.Markdown
	p.log.Info("Report written", "json", written.JSON, "markdown", written.Markdown)
	if written.WorkLog != "" {
		p.log.Info("Work log written", "path", written.WorkLog)
	}

	if opts.DryRun {
		return nil
	}

	if err := report.WriteLastRun(dir, now); err != nil {
		return err
	}
	if out.Pushed, err = p.push(ctx, run.ID, rep); err != nil {
		return err
	}
	out.Archived, err = p.archive(dir, now)
	return err
}

// tolerate logs err and drops it unless its code is fatal.
func (p *Pipeline) tolerate(step string, err error) error {
	if err == nil || errors.IsFatal(err) {
		return err
	}
	p.log.Warn(step+" failed, continuing", "code", errors.CodeOf(err), "error", err)
	return nil
}

func (p *Pipeline) syncSources(ctx context.Context, opts Options) error {
	if !p.cfg.Sync.SyncEnabled || opts.DryRun {
		return nil
	}
	p.log.Info("Syncing session sources", "sources", len(p.cfg.Sync.SyncSources))
	return p.tolerate("Source sync", p.deps.Index.SyncSources(ctx, p.cfg.Sync.SyncSources))
}

// ensureIndex rebuilds the index when forced or unhealthy. A failed
// rebuild aborts the run.
func (p *Pipeline) ensureIndex(ctx context.Context, opts Options) error {
	rebuild := opts.ForceIndex
	if !rebuild {
		if p.deps.Index.Health(ctx) {
			return nil
		}
		if opts.DryRun {
			p.log.Warn("Index unhealthy, skipping rebuild in dry run")
			return nil
		}
		p.log.Warn("Index unhealthy, rebuilding")
		rebuild = true
	}

	p.log.Info("Rebuilding session index")
	if err := p.deps.Index.Index(ctx); err != nil {
		if ctx.Err() != nil {
			return p.interrupted(ctx, err)
		}
		if errors.IsCode(err, errors.IndexRebuildFailed) {
			return err
		}
		return errors.New(errors.IndexRebuildFailed, "failed to rebuild cass index", err)
	}
	return nil
}

func (p *Pipeline) buildWorkLog(ctx context.Context, docs *doctree.Tree, since time.Time) *worklog.WorkLog {
	sessions, err := p.deps.Index.Search(ctx, p.cfg.WorkLog.Query, cass.SearchOptions{
		Since:      since,
		Agents:     p.cfg.Queries.Agents,
		Workspaces: p.cfg.Queries.WorkspaceInclude,
		Limit:      p.cfg.WorkLog.Limit,
	})
	if err != nil {
		p.log.Warn("Work-log session search failed", "error", err)
		sessions = nil
	}
	scope := evidence.Scope{WorkspaceExclude: p.cfg.Queries.WorkspaceExclude}
	kept := make([]cass.SessionRecord, 0, len(sessions))
	for _, s := range sessions {
		if !scope.Excludes(s.Workspace) {
			kept = append(kept, s)
		}
	}
	sessions = kept
	wl := worklog.Build(sessions, docs, since)
	p.log.Info("Work log built", "projects", len(wl.Projects), "sessions", wl.TotalSessions, "minutes", wl.TotalMinutes)
	return wl
}

func (p *Pipeline) push(ctx context.Context, runID string, rep *report.Report) (*remote.Result, error) {
	if p.deps.Pusher == nil || !p.cfg.Sync.RemoteEnabled {
		return nil, nil
	}
	res, err := p.deps.Pusher.Push(ctx, runID, rep)
	if err != nil {
		return nil, p.tolerate("Remote push", err)
	}
	p.log.Info("Remote push complete", "sent", res.Sent, "failed", res.Failed)
	return res, nil
}

func (p *Pipeline) archive(dir string, now time.Time) ([]string, error) {
	if p.cfg.Archive.KeepDays <= 0 {
		return nil, nil
	}
	archived, err := report.Archive(dir, now, p.cfg.Archive.KeepDays)
	if len(archived) > 0 {
		p.log.Info("Archived old reports", "count", len(archived))
	}
	return archived, p.tolerate("Archiving", err)
}

func (p *Pipeline) interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.New(errors.Interrupted, "run interrupted", err)
	}
	return errors.New(errors.InternalError, "pipeline stage failed", err)
}

// fillRun copies report totals and per-category stats into run.
func fillRun(run *storage.Run, rep *report.Report, results *evidence.ResultSet) {
	run.TotalSessions = rep.Summary.TotalSessions
	run.AntiPatterns = rep.Summary.AntiPatternCount
	run.Wins = rep.Summary.WinCount
	run.Categories = run.Categories[:0]
	for _, r := range results.All() {
		run.Categories = append(run.Categories, storage.CategoryStat{
			Name:         r.Category.Name,
			Hits:         r.TotalHits(),
			AntiPatterns: len(r.AntiPatterns),
			Wins:         len(r.Wins),
			Delta:        rep.Categories.Entries[r.Category.Name].Delta,
			Error:        r.Error,
		})
	}
}

// ExitCode maps a run error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.IsCode(err, errors.Interrupted):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}
