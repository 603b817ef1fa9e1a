// Package agent provides invokers for executing task commands and agent
// instructions.
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Result is the structured outcome of one invocation. The rest of the system
// only ever sees this contract, never the invoker's internals.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// Success reports whether the invocation exited cleanly.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0 && !r.TimedOut
}

// Output returns stdout and stderr concatenated, the text that
// output-matching conditions run against.
func (r *Result) Output() string {
	if r == nil {
		return ""
	}
	return r.Stdout + r.Stderr
}

// Invoker executes a command line or instruction and reports the result.
// A non-zero exit is not an error: errors are reserved for faults that
// prevented the invocation from producing a result at all.
type Invoker interface {
	// Name returns the invoker identifier.
	Name() string

	// Invoke runs the instruction, bounded by timeout. Expiry terminates
	// the in-flight process and yields a timed-out result.
	Invoke(ctx context.Context, instruction string, timeout time.Duration) (*Result, error)
}

// TimeoutExitCode is the sentinel exit code recorded for invocations that
// hit their timeout and were terminated.
const TimeoutExitCode = -1

// New creates an invoker by name.
func New(name string) (Invoker, error) {
	switch strings.ToLower(name) {
	case "shell":
		return NewShellInvoker(""), nil
	case "claude":
		return NewClaudeInvoker(), nil
	case "sim":
		return NewSimInvoker(), nil
	default:
		return nil, fmt.Errorf("unknown invoker: %s", name)
	}
}

// ValidateCredentials checks that the named agent can authenticate.
func ValidateCredentials(name string) error {
	switch name {
	case "claude":
		if os.Getenv("ANTHROPIC_API_KEY") != "" {
			return nil
		}
		return validateClaudeSubscription()
	default:
		return nil
	}
}

// validateClaudeSubscription checks that ~/.claude/ exists for subscription auth.
func validateClaudeSubscription() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	claudeDir := filepath.Join(home, ".claude")
	info, err := os.Stat(claudeDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("~/.claude/ directory not found; run 'claude login' first or set ANTHROPIC_API_KEY")
		}
		return fmt.Errorf("checking ~/.claude/ directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("~/.claude exists but is not a directory")
	}

	return nil
}
