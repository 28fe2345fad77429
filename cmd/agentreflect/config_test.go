package main

import (
	"bytes"
	"strings"
	"testing"

	"agentreflect/internal/config"
)

func TestIsEqual(t *testing.T) {
	tests := []struct {
		name string
		a    any
		b    any
		want bool
	}{
		{"equal strings", "pi", "pi", true},
		{"different strings", "pi", "claude", false},
		{"equal ints", 3, 3, true},
		{"equal slices", []int{5, 15}, []int{5, 15}, true},
		{"different slices", []int{5}, []int{5, 15}, false},
		{"nil values", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("isEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestWriteConfigHuman(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Queries.MaxParallel = 6
	cfg.Secrets.SendGridAPIKey = "SG.secret"
	res := &config.LoadResult{Config: cfg, ConfigPath: "/etc/daily-report.toml", UsedDefaults: true}

	var buf bytes.Buffer
	if err := writeConfigHuman(&buf, res); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"Source: defaults (no config file at /etc/daily-report.toml)",
		"max_parallel: 6 (default: 3)",
		"scope: since_last_run\n",
		"sendgrid key: set (default: unset)",
		"categories (8):",
		"testing_gaps",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "SG.secret") {
		t.Error("secret value must not be printed")
	}
}

func TestSecretState(t *testing.T) {
	if secretState("") != "unset" || secretState("x") != "set" {
		t.Error("secretState mismatch")
	}
}
