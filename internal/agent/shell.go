package agent

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// ShellInvoker runs instructions through the system shell on the host.
type ShellInvoker struct {
	// Dir is the working directory for invoked commands. Empty means the
	// process working directory.
	Dir string
}

// NewShellInvoker creates a shell invoker rooted at dir.
func NewShellInvoker(dir string) *ShellInvoker {
	return &ShellInvoker{Dir: dir}
}

// Name returns the invoker identifier.
func (s *ShellInvoker) Name() string {
	return "shell"
}

// Invoke runs the instruction via `sh -c`, bounded by timeout. The process
// is killed on expiry and a timed-out result is returned instead of an error.
func (s *ShellInvoker) Invoke(ctx context.Context, instruction string, timeout time.Duration) (*Result, error) {
	invCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		invCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(invCtx, "sh", "-c", instruction)
	cmd.Dir = s.Dir

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
			res.Stderr = "command timed out after " + timeout.String()
		}
		return res, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		// The command never ran (shell missing, bad dir, cancelled).
		res.ExitCode = TimeoutExitCode
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
		return res, err
	}

	res.ExitCode = 0
	return res, nil
}
