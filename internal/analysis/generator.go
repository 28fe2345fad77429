package analysis

import (
	"context"
	"fmt"
	"strings"

	"agentreflect/internal/command"
)

// DefaultMethod is the text-generation executable.
const DefaultMethod = "pi"

// Generator produces free-form text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// CommandGenerator invokes `<method> -p <prompt>`.
type CommandGenerator struct {
	method string
	runner command.Runner
}

// NewCommandGenerator creates a generator for method.
func NewCommandGenerator(method string, runner command.Runner) *CommandGenerator {
	if method == "" {
		method = DefaultMethod
	}
	return &CommandGenerator{method: method, runner: runner}
}

// Generate runs the command and returns its trimmed stdout. A non-zero exit
// or empty output is an error.
func (g *CommandGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	res, err := g.runner.Run(ctx, g.method, "-p", prompt)
	if err != nil {
		return "", fmt.Errorf("%s command failed: %w", g.method, err)
	}
	out := strings.TrimSpace(string(res.Stdout))
	if out == "" {
		return "", fmt.Errorf("%s returned empty output", g.method)
	}
	return out, nil
}
