package main

import (
	"bytes"
	"strings"
	"testing"

	"agentreflect/internal/pipeline"
	"agentreflect/internal/remote"
	"agentreflect/internal/report"
	"agentreflect/internal/storage"
)

func TestPrintOutcome(t *testing.T) {
	out := &pipeline.Outcome{
		Run: &storage.Run{DryRun: true},
		Report: &report.Report{
			Date:    "2026-10-19",
			Summary: report.Summary{TotalSessions: 1200, AntiPatternCount: 4, WinCount: 1},
		},
		Written: &report.Written{JSON: "/r/a.json", Markdown: "/r/a.md"},
		Pushed:  &remote.Result{Sent: 5, Failed: 1},
	}

	var buf bytes.Buffer
	printOutcome(&buf, out)
	got := buf.String()
	for _, want := range []string{"Report for 2026-10-19", "1,200", "Anti-patterns: 4", "/r/a.md", "5 sent, 1 rejected", "dry run"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\n%s", want, got)
		}
	}
	if strings.Contains(got, "Work log:") {
		t.Error("work log line printed without a work log")
	}

	buf.Reset()
	printOutcome(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("nil outcome printed %q", buf.String())
	}
}

func TestWriteHealth(t *testing.T) {
	var buf bytes.Buffer
	if err := writeHealth(&buf, &HealthResponseCLI{Healthy: true}, FormatJSON); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != `{"healthy":true}` {
		t.Errorf("json = %s", got)
	}

	buf.Reset()
	if err := writeHealth(&buf, &HealthResponseCLI{Healthy: false}, FormatHuman); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "UNHEALTHY") {
		t.Errorf("human = %q", buf.String())
	}
}
