// Package orchestrator fans category searches out over a bounded pool and
// joins them back in configured order.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"agentreflect/internal/evidence"
)

// DefaultMaxParallel bounds concurrent category searches.
const DefaultMaxParallel = 3

// Searcher produces evidence for one category.
type Searcher interface {
	Search(ctx context.Context, c evidence.Category) (*evidence.CategoryResult, error)
}

// Orchestrator runs a Searcher for every category.
type Orchestrator struct {
	searcher    Searcher
	maxParallel int
	logger      *slog.Logger
}

// New creates an orchestrator. maxParallel < 1 uses DefaultMaxParallel.
func New(searcher Searcher, maxParallel int, logger *slog.Logger) *Orchestrator {
	if maxParallel < 1 {
		maxParallel = DefaultMaxParallel
	}
	return &Orchestrator{searcher: searcher, maxParallel: maxParallel, logger: logger}
}

type outcome struct {
	index  int
	result *evidence.CategoryResult
}

// Run searches every category and returns the results in the order of
// categories. A category whose search fails or panics is stored as a
// failure marker. Only cancellation of ctx is returned as an error.
func (o *Orchestrator) Run(ctx context.Context, categories []evidence.Category) (*evidence.ResultSet, error) {
	start := time.Now()
	outcomes := make(chan outcome, len(categories))

	g := new(errgroup.Group)
	g.SetLimit(o.maxParallel)
	for i, c := range categories {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes <- outcome{index: i, result: o.searchOne(ctx, c)}
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ordered := make([]*evidence.CategoryResult, len(categories))
	for out := range outcomes {
		ordered[out.index] = out.result
	}

	set := evidence.NewResultSet(len(categories))
	for i, r := range ordered {
		if r == nil {
			r = evidence.Failed(categories[i], fmt.Errorf("search did not complete"))
		}
		set.Put(r)
	}

	o.logger.Info("Category searches complete",
		"categories", set.Len(),
		"parallel", o.maxParallel,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return set, nil
}

func (o *Orchestrator) searchOne(ctx context.Context, c evidence.Category) (result *evidence.CategoryResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Category search panicked", "category", c.Name, "panic", fmt.Sprint(r))
			result = evidence.Failed(c, fmt.Errorf("search panicked: %v", r))
		}
	}()

	res, err := o.searcher.Search(ctx, c)
	if err != nil {
		o.logger.Warn("Category search failed", "category", c.Name, "error", err.Error())
		return evidence.Failed(c, err)
	}
	if res == nil {
		return evidence.NewCategoryResult(c)
	}
	return res
}
