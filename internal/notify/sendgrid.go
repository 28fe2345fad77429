// Package notify sends the failure email for a fatal pipeline run.
package notify

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

	"agentreflect/internal/errors"
	"agentreflect/internal/paths"
	"agentreflect/internal/version"
)

// DefaultEndpoint is the SendGrid v3 send API.
const DefaultEndpoint = "https://api.sendgrid.com/v3/mail/send"

// Config gates and addresses the failure email.
type Config struct {
	Enabled  bool
	Provider string
	To       string
	From     string
	APIKey   string
	Endpoint string
}

// Emailer delivers failure notifications through SendGrid.
type Emailer struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewEmailer creates an emailer. An empty Endpoint uses DefaultEndpoint.
func NewEmailer(cfg Config, logger *slog.Logger) *Emailer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	return &Emailer{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
		now:    time.Now,
	}
}

// Ready reports whether an email would be attempted.
func (e *Emailer) Ready() bool {
	provider := strings.ToLower(e.cfg.Provider)
	return e.cfg.Enabled && e.cfg.To != "" && e.cfg.From != "" && e.cfg.APIKey != "" &&
		(provider == "" || provider == "sendgrid")
}

type address struct {
	Email string `json:"email"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type personalization struct {
	To []address `json:"to"`
}

type message struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

// Subject returns the failure subject line for day.
func Subject(day time.Time) string {
	return "Agent Reflection Failed - " + day.Format(paths.DateLayout)
}

// SendFailure emails runErr. It returns false without error when the
// emailer is not configured; any delivery problem is a NOTIFY_FAILED error.
func (e *Emailer) SendFailure(ctx context.Context, runErr error) (bool, error) {
	if !e.Ready() {
		if e.cfg.Enabled && e.cfg.APIKey == "" {
			e.logger.Warn("SENDGRID_API_KEY not set, skipping failure email")
		}
		return false, nil
	}

	msg := message{
		Personalizations: []personalization{{To: []address{{Email: e.cfg.To}}}},
		From:             address{Email: e.cfg.From},
		Subject:          Subject(e.now()),
		Content:          []content{{Type: "text/plain", Value: "Daily report failed:\n\n" + runErr.Error()}},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return false, errors.New(errors.NotifyFailed, "encode email", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return false, errors.New(errors.NotifyFailed, "build email request", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := e.client.Do(req)
	if err != nil {
		return false, errors.New(errors.NotifyFailed, "send email", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusAccepted {
		return false, errors.New(errors.NotifyFailed, "send email", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)).
			WithDetails(map[string]int{"status": resp.StatusCode})
	}
	e.logger.Info("Failure email sent", "to", e.cfg.To)
	return true, nil
}
