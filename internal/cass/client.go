package cass

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"agentreflect/internal/command"
	"agentreflect/internal/errors"
)

// DefaultLimit caps hits per search call.
const DefaultLimit = 50

// sinceLayout is the local-naive timestamp the CLI expects for --since.
const sinceLayout = "2006-01-02T15:04:05"

// SearchOptions scopes one search call.
type SearchOptions struct {
	Since      time.Time // zero means no floor
	Agents     []string
	Workspaces []string
	Limit      int
}

// Client invokes the cass executable.
type Client struct {
	path   string
	runner command.Runner
	logger *slog.Logger
}

// NewClient creates a client for the executable at path.
func NewClient(path string, runner command.Runner, logger *slog.Logger) *Client {
	if path == "" {
		path = "cass"
	}
	return &Client{path: path, runner: runner, logger: logger}
}

// SearchArgs builds the argument list for a search call.
func SearchArgs(query string, opts SearchOptions) []string {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	args := []string{"search", query, "--robot", "--limit", strconv.Itoa(limit)}
	if !opts.Since.IsZero() {
		args = append(args, "--since", opts.Since.Local().Format(sinceLayout))
	}
	for _, agent := range opts.Agents {
		args = append(args, "--agent", agent)
	}
	for _, ws := range opts.Workspaces {
		args = append(args, "--workspace", ws)
	}
	return args
}

// Search runs one query. Any failure (non-zero exit, empty or malformed
// output) is returned as a SEARCH_FAILED error.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) ([]SessionRecord, error) {
	res, err := c.runner.Run(ctx, c.path, SearchArgs(query, opts)...)
	if err != nil {
		return nil, errors.New(errors.SearchFailed, fmt.Sprintf("search %q", query), err)
	}
	out := strings.TrimSpace(string(res.Stdout))
	if out == "" {
		return nil, errors.New(errors.SearchFailed, fmt.Sprintf("search %q returned no output", query), nil)
	}

	var resp SearchResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		return nil, errors.New(errors.SearchFailed, fmt.Sprintf("search %q returned malformed JSON", query), err)
	}
	return resp.Hits, nil
}

// Health probes the index. A failed or unparseable probe reports unhealthy.
func (c *Client) Health(ctx context.Context) bool {
	res, err := c.runner.Run(ctx, c.path, "health", "--json")
	if err != nil {
		c.logger.Debug("Health probe failed", "error", err)
		return false
	}
	var resp HealthResponse
	if err := json.Unmarshal(res.Stdout, &resp); err != nil {
		c.logger.Debug("Health probe returned malformed JSON", "error", err)
		return false
	}
	return resp.Healthy
}

// Index rebuilds the search index.
func (c *Client) Index(ctx context.Context) error {
	if _, err := c.runner.Run(ctx, c.path, "index", "--json"); err != nil {
		return errors.New(errors.IndexRebuildFailed, "failed to rebuild cass index", err)
	}
	return nil
}

// SyncSources pulls remote session sources. With no sources every
// configured source is synced in one call; otherwise each is synced in
// turn and the first failure stops the sequence.
func (c *Client) SyncSources(ctx context.Context, sources []string) error {
	if len(sources) == 0 {
		if _, err := c.runner.Run(ctx, c.path, "sources", "sync", "--json"); err != nil {
			return errors.New(errors.SyncFailed, "source sync failed", err)
		}
		return nil
	}
	for _, source := range sources {
		if _, err := c.runner.Run(ctx, c.path, "sources", "sync", "--source", source, "--json"); err != nil {
			return errors.New(errors.SyncFailed, fmt.Sprintf("source sync failed for %s", source), err)
		}
	}
	return nil
}
