package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"agentreflect/internal/errors"
	"agentreflect/internal/evidence"
)

// DefaultMaxRetries is the number of generation attempts per category.
const DefaultMaxRetries = 3

// DefaultBackoff is the wait between attempts; the last value repeats.
var DefaultBackoff = []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}

const (
	noEvidenceSummary = "No evidence found for this category"
	dryRunSummaryFmt  = "[DRY RUN] Would analyze %d hits"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the production Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Options configures a Caller.
type Options struct {
	Template   string
	MaxRetries int
	Backoff    []time.Duration
	DryRun     bool
	Sleep      Sleeper
}

// Caller annotates category results with generated findings.
type Caller struct {
	gen    Generator
	opts   Options
	logger *slog.Logger
}

// NewCaller creates a caller, filling unset options with defaults.
func NewCaller(gen Generator, opts Options, logger *slog.Logger) *Caller {
	if opts.Template == "" {
		opts.Template = DefaultTemplate
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Backoff == nil {
		opts.Backoff = DefaultBackoff
	}
	if opts.Sleep == nil {
		opts.Sleep = ContextSleep
	}
	return &Caller{gen: gen, opts: opts, logger: logger}
}

// BackoffFor returns the wait after the given zero-based failed attempt,
// clamped to the last configured value.
func BackoffFor(schedule []time.Duration, attempt int) time.Duration {
	if len(schedule) == 0 {
		return 0
	}
	if attempt >= len(schedule) {
		attempt = len(schedule) - 1
	}
	return schedule[attempt]
}

// Prompt renders the template for r.
func (c *Caller) Prompt(r *evidence.CategoryResult) (string, error) {
	payload, err := r.Payload()
	if err != nil {
		return "", err
	}
	return Render(c.opts.Template, map[string]string{
		"category_name":        r.Category.Label(),
		"category_description": r.Category.Description,
		"cass_results":         string(payload),
	}), nil
}

// Analyze fills r's findings in place. Exhausted retries are recorded on r
// and are not returned; only context cancellation is.
func (c *Caller) Analyze(ctx context.Context, r *evidence.CategoryResult) error {
	total := r.TotalHits()
	if total == 0 {
		r.Summary = noEvidenceSummary
		r.AntiPatterns = []evidence.AntiPattern{}
		r.Wins = []evidence.Win{}
		return nil
	}
	if c.opts.DryRun {
		r.Summary = fmt.Sprintf(dryRunSummaryFmt, total)
		r.AntiPatterns = []evidence.AntiPattern{{Description: "[DRY RUN] Skipped", Severity: "low"}}
		r.Wins = []evidence.Win{}
		return nil
	}

	prompt, err := c.Prompt(r)
	if err != nil {
		r.Error = err.Error()
		r.Summary = "Analysis failed: " + r.Error
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		resp, err := c.attempt(ctx, prompt)
		if err == nil {
			r.AntiPatterns = resp.AntiPatterns
			r.Wins = resp.Wins
			r.Summary = resp.Summary
			r.Error = ""
			c.logger.Debug("Category analyzed",
				"category", r.Category.Name,
				"attempt", attempt+1,
				"anti_patterns", len(resp.AntiPatterns),
				"wins", len(resp.Wins),
			)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		c.logger.Warn("Analysis attempt failed",
			"category", r.Category.Name,
			"attempt", attempt+1,
			"max_retries", c.opts.MaxRetries,
			"error", err.Error(),
		)
		if attempt == c.opts.MaxRetries-1 {
			break
		}
		if err := c.opts.Sleep(ctx, BackoffFor(c.opts.Backoff, attempt)); err != nil {
			return err
		}
	}

	failure := errors.New(errors.AnalysisFailed, fmt.Sprintf("%d attempts failed", c.opts.MaxRetries), lastErr)
	c.logger.Error("Analysis failed", "category", r.Category.Name, "code", failure.Code, "error", lastErr.Error())
	r.Error = failure.Error()
	r.Summary = "Analysis failed: " + lastErr.Error()
	r.AntiPatterns = []evidence.AntiPattern{}
	r.Wins = []evidence.Win{}
	return nil
}

func (c *Caller) attempt(ctx context.Context, prompt string) (*Response, error) {
	out, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return ParseResponse(out)
}

// AnalyzeAll analyzes every result in order, one at a time.
func (c *Caller) AnalyzeAll(ctx context.Context, set *evidence.ResultSet) error {
	for _, r := range set.All() {
		if r.Error != "" && r.TotalHits() == 0 {
			r.Summary = "Search failed: " + r.Error
			continue
		}
		if err := c.Analyze(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
