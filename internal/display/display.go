// Package display renders live task progress: attempt banners, condition
// verdicts, and interruptible wait countdowns.
package display

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/taskloop/taskloop/internal/condition"
	"github.com/taskloop/taskloop/internal/task"
)

// Reporter receives progress events from the attempt loop.
type Reporter interface {
	TaskStart(t *task.Task)
	AttemptStart(attempt, maxAttempts int)
	Verdict(v condition.Verdict)
	// CountdownTick is called once per second during a wait with the time
	// still remaining; reason names the wait policy applied.
	CountdownTick(reason string, remaining time.Duration)
	CountdownDone()
	TaskEnd(taskID, state string, attempts int)
}

// Console writes colored progress to a terminal.
type Console struct {
	out io.Writer

	pass  *color.Color
	fail  *color.Color
	wait  *color.Color
	title *color.Color
}

// NewConsole creates a console reporter writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{
		out:   out,
		pass:  color.New(color.FgGreen),
		fail:  color.New(color.FgRed),
		wait:  color.New(color.FgCyan),
		title: color.New(color.Bold),
	}
}

func (c *Console) TaskStart(t *task.Task) {
	c.title.Fprintf(c.out, "\n=== %s (%s) ===\n", t.Name, t.ID)
	if t.Command != "" {
		fmt.Fprintf(c.out, "command: %s\n", t.Command)
	} else if t.Description != "" {
		fmt.Fprintf(c.out, "description: %s\n", t.Description)
	}
}

func (c *Console) AttemptStart(attempt, maxAttempts int) {
	fmt.Fprintf(c.out, "\n--- attempt %d/%d ---\n", attempt, maxAttempts)
}

func (c *Console) Verdict(v condition.Verdict) {
	if v.Passed {
		c.pass.Fprintf(c.out, "  ✓ %s", v.Name)
	} else {
		c.fail.Fprintf(c.out, "  ✗ %s", v.Name)
	}
	fmt.Fprintf(c.out, " (%s): %s\n", v.Type, v.Detail)
}

func (c *Console) CountdownTick(reason string, remaining time.Duration) {
	c.wait.Fprintf(c.out, "\r%s wait: %ds remaining ", reason, int(remaining.Seconds()))
}

func (c *Console) CountdownDone() {
	fmt.Fprintln(c.out)
}

func (c *Console) TaskEnd(taskID, state string, attempts int) {
	if state == "succeeded" {
		c.pass.Fprintf(c.out, "\ntask %s succeeded after %d attempt(s)\n", taskID, attempts)
	} else {
		c.fail.Fprintf(c.out, "\ntask %s %s after %d attempt(s)\n", taskID, state, attempts)
	}
}

// Nop discards all progress events.
type Nop struct{}

func (Nop) TaskStart(*task.Task)                {}
func (Nop) AttemptStart(int, int)               {}
func (Nop) Verdict(condition.Verdict)           {}
func (Nop) CountdownTick(string, time.Duration) {}
func (Nop) CountdownDone()                      {}
func (Nop) TaskEnd(string, string, int)         {}
