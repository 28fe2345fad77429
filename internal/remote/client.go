package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"agentreflect/internal/errors"
	"agentreflect/internal/report"
	"agentreflect/internal/version"
)

// Client posts batches to <baseURL>/rpc.
type Client struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *slog.Logger
	newID    func() string
}

// NewClient creates a client for baseURL. token may be empty.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/rpc",
		token:    token,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
		newID:    func() string { return uuid.New().String() },
	}
}

// Result summarizes a pushed batch.
type Result struct {
	Sent   int
	Failed int
}

// Calls builds one activity.insert per project and one analysis.upsert per
// category, in report order.
func Calls(runID string, r *report.Report, newID func() string) []Message {
	var calls []Message
	if r.WorkLog != nil {
		for _, p := range r.WorkLog.Projects {
			calls = append(calls, Message{
				Jsonrpc: "2.0",
				ID:      newID(),
				Method:  MethodActivityInsert,
				Params: ActivityParams{
					RunID:            runID,
					Date:             r.Date,
					Project:          p.Name,
					Workspace:        p.Workspace,
					SessionCount:     p.Count,
					EstimatedMinutes: p.Minutes,
					FilesTouched:     p.Files,
				},
			})
		}
	}
	for _, name := range r.Categories.Names {
		c := r.Categories.Entries[name]
		calls = append(calls, Message{
			Jsonrpc: "2.0",
			ID:      newID(),
			Method:  MethodAnalysisUpsert,
			Params: AnalysisParams{
				RunID:            runID,
				Date:             r.Date,
				Category:         name,
				Display:          c.Display,
				Summary:          c.Summary,
				AntiPatternCount: len(c.AntiPatterns),
				WinCount:         len(c.Wins),
				Delta:            c.Delta,
				AntiPatterns:     c.AntiPatterns,
				Wins:             c.Wins,
				Error:            c.Error,
			},
		})
	}
	return calls
}

// Push sends the report's calls as one batch. Per-call errors in the
// response are counted in Result.Failed; transport failures are SYNC_FAILED.
func (c *Client) Push(ctx context.Context, runID string, r *report.Report) (*Result, error) {
	calls := Calls(runID, r, c.newID)
	if len(calls) == 0 {
		return &Result{}, nil
	}

	body, err := json.Marshal(calls)
	if err != nil {
		return nil, errors.New(errors.SyncFailed, "encode batch", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.SyncFailed, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.New(errors.SyncFailed, "post batch", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.New(errors.SyncFailed, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New(errors.SyncFailed, "post batch", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)).
			WithDetails(map[string]int{"status": resp.StatusCode})
	}

	result := &Result{Sent: len(calls)}
	if len(bytes.TrimSpace(data)) == 0 {
		return result, nil
	}
	var replies []Message
	if err := json.Unmarshal(data, &replies); err != nil {
		return nil, errors.New(errors.SyncFailed, "decode response", err)
	}
	for _, reply := range replies {
		if reply.Error != nil {
			result.Failed++
			c.logger.Warn("Remote call rejected",
				"id", reply.ID,
				"code", reply.Error.Code,
				"error", reply.Error.Message,
			)
		}
	}
	result.Sent -= result.Failed

	c.logger.Info("Pushed results to remote store", "sent", result.Sent, "failed", result.Failed)
	return result, nil
}
