package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/taskloop/taskloop/internal/condition"
	"github.com/taskloop/taskloop/internal/task"
)

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.TaskStart(&task.Task{ID: "t1", Name: "Build", Command: "make"})
	c.AttemptStart(2, 4)
	c.Verdict(condition.Verdict{Name: "binary exists", Type: task.FileExists, Passed: true, Detail: "file bin exists"})
	c.Verdict(condition.Verdict{Name: "tests pass", Type: task.TestCommand, Passed: false, Detail: "exit 1"})
	c.CountdownTick("cooldown", 59*time.Second)
	c.CountdownDone()
	c.TaskEnd("t1", "succeeded", 2)

	out := buf.String()
	for _, want := range []string{
		"Build (t1)",
		"command: make",
		"attempt 2/4",
		"✓ binary exists",
		"✗ tests pass",
		"cooldown wait: 59s remaining",
		"succeeded after 2 attempt(s)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConsoleNaturalTask(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.TaskStart(&task.Task{ID: "n1", Name: "Natural", Description: "create a report"})
	if !strings.Contains(buf.String(), "description: create a report") {
		t.Errorf("expected the description shown, got %s", buf.String())
	}
}
