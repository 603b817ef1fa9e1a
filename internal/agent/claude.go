package agent

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// ClaudeInvoker drives the Claude Code CLI in non-interactive mode. It is
// used for natural-language instructions and confirmation prompts; task
// commands go through the shell or docker invokers instead.
type ClaudeInvoker struct {
	// Binary is the claude executable name or path.
	Binary string
}

// NewClaudeInvoker creates a Claude CLI invoker.
func NewClaudeInvoker() *ClaudeInvoker {
	return &ClaudeInvoker{Binary: "claude"}
}

// Name returns the invoker identifier.
func (c *ClaudeInvoker) Name() string {
	return "claude"
}

// Invoke sends the instruction to the claude binary as a one-shot prompt.
// Runs with --dangerously-skip-permissions for autonomous execution; the
// caller is expected to sandbox the working directory when that matters.
func (c *ClaudeInvoker) Invoke(ctx context.Context, instruction string, timeout time.Duration) (*Result, error) {
	invCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		invCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(invCtx, c.Binary, "--dangerously-skip-permissions", "-p", instruction)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}

	if errors.Is(invCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = TimeoutExitCode
		if res.Stderr == "" {
			res.Stderr = "agent invocation timed out after " + timeout.String()
		}
		return res, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = TimeoutExitCode
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
		return res, err
	}

	res.ExitCode = 0
	return res, nil
}
