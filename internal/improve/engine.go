// Package improve escalates failing natural-language tasks to the agent:
// generating the initial command and conditions, diagnosing failures,
// proposing revised commands, and spawning bounded sub-tasks.
package improve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taskloop/taskloop/internal/agent"
	"github.com/taskloop/taskloop/internal/controller"
	"github.com/taskloop/taskloop/internal/task"
)

// generationTimeout bounds each agent call made by the engine itself.
const generationTimeout = 60 * time.Second

// fallbackCondition is used when the agent fails to produce usable
// completion conditions.
var fallbackCondition = task.Condition{Type: task.OutputContains, Pattern: "done"}

// Engine asks the agent to interpret, diagnose, and revise tasks. It never
// trusts the agent's output structurally: everything is parsed defensively
// with a fallback.
type Engine struct {
	agent  agent.Invoker
	logger *slog.Logger

	subSeq int
}

// New creates an improvement engine backed by the given agent.
func New(ag agent.Invoker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{agent: ag, logger: logger}
}

// Prepare turns a natural-language task into an executable one: the agent
// generates the command and the completion conditions. The returned task is
// a derived copy; the original record is untouched.
func (e *Engine) Prepare(ctx context.Context, t *task.Task) (*task.Task, error) {
	if !t.Natural() {
		return t, nil
	}

	command, err := e.GenerateCommand(ctx, t.Description)
	if err != nil {
		return nil, fmt.Errorf("generating command for task %s: %w", t.ID, err)
	}
	e.logger.Info("generated command", "task", t.ID, "command", command)

	prepared := t.WithCommand(command)
	prepared.NaturalOrigin = true
	if len(prepared.Conditions) == 0 {
		conds := e.GenerateConditions(ctx, t.Description, command)
		prepared = prepared.WithConditions(conds)
		e.logger.Info("generated conditions", "task", t.ID, "count", len(conds))
	}
	return prepared, nil
}

// Hook returns a RetryHook that diagnoses the last failed attempt, runs one
// bounded sub-task against the shared budget, and hands a revised command
// back to the controller.
func (e *Engine) Hook(ctrl *controller.Controller) controller.RetryHook {
	return func(ctx context.Context, t *task.Task, last *controller.AttemptRecord, budget *controller.Budget) (*task.Task, error) {
		if !t.NaturalOrigin || last == nil {
			return nil, nil
		}

		revised, err := e.ReviseCommand(ctx, t, last)
		if err != nil {
			return nil, err
		}
		if revised == "" || revised == t.Command {
			return nil, nil
		}
		e.logger.Info("revised command", "task", t.ID, "command", revised)

		// Run the improvement sub-task through the same controller,
		// drawing from the parent's budget so escalation stays bounded.
		// The sub-task only runs when the budget can cover its ceiling
		// and still leave the parent an attempt for the revised command.
		if sub := e.Subtask(ctx, t, last); sub != nil && budget.Remaining() > sub.MaxAttempts() {
			e.logger.Info("running improvement sub-task", "task", t.ID, "subtask", sub.ID)
			out := ctrl.RunBudgeted(ctx, sub, budget)
			if out.State != controller.StateSucceeded {
				e.logger.Warn("improvement sub-task failed", "subtask", sub.ID, "state", out.State)
			}
		}

		return t.WithCommand(revised), nil
	}
}

// GenerateCommand asks the agent to turn a task description into one
// executable command line.
func (e *Engine) GenerateCommand(ctx context.Context, description string) (string, error) {
	prompt := fmt.Sprintf(`Convert the following task description into a single executable shell command.

Task description: %s

Requirements:
1. The command must be runnable as-is.
2. Its output should make the outcome observable.
3. Write the command on one line.

Return only the command:`, description)

	res, err := e.agent.Invoke(ctx, prompt, generationTimeout)
	if err != nil && res == nil {
		return "", err
	}
	if !res.Success() {
		return "", fmt.Errorf("agent exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	command := firstCommandLine(res.Stdout)
	if command == "" {
		return "", fmt.Errorf("agent returned no command")
	}
	return command, nil
}

// GenerateConditions asks the agent for completion conditions as JSON.
// Anything unparsable falls back to a single output check.
func (e *Engine) GenerateConditions(ctx context.Context, description, command string) []task.Condition {
	prompt := fmt.Sprintf(`Generate completion conditions for the following task as a JSON array.

Task description: %s
Generated command: %s

Available condition types:
- output_contains: {"type": "output_contains", "pattern": "..."}
- file_exists: {"type": "file_exists", "path": "..."}
- file_contains: {"type": "file_contains", "path": "...", "pattern": "..."}
- website_exists: {"type": "website_exists", "url": "..."}
- agent_confirmation: {"type": "agent_confirmation", "prompt": "..."}

Generate 2-3 conditions that verify the task completed. Return only the JSON array:`, description, command)

	res, err := e.agent.Invoke(ctx, prompt, generationTimeout)
	if err != nil || !res.Success() {
		return []task.Condition{fallbackCondition}
	}

	raw := ExtractJSON(res.Stdout)
	if raw == "" {
		return []task.Condition{fallbackCondition}
	}

	var conds []task.Condition
	if err := json.Unmarshal([]byte(raw), &conds); err != nil || len(conds) == 0 {
		return []task.Condition{fallbackCondition}
	}
	for _, c := range conds {
		if c.Validate() != nil {
			return []task.Condition{fallbackCondition}
		}
	}
	return conds
}

// ReviseCommand asks the agent to diagnose the last attempt and propose an
// improved command.
func (e *Engine) ReviseCommand(ctx context.Context, t *task.Task, last *controller.AttemptRecord) (string, error) {
	prompt := fmt.Sprintf(`The following task failed. Analyze the cause and produce an improved command.

Task id: %s
Task name: %s
Task description: %s
Command that ran: %s
Last stdout: %s
Last stderr: %s
Failed conditions: %s

Requirements:
1. Analyze why the attempt failed.
2. Produce a command that avoids the failure.
3. Write the command on one line.

Return only the improved command:`,
		t.ID, t.Name, t.Description, last.Command,
		truncate(last.Result.Stdout, 1000), truncate(last.Result.Stderr, 1000),
		failedNames(last))

	res, err := e.agent.Invoke(ctx, prompt, generationTimeout)
	if err != nil && res == nil {
		return "", err
	}
	if !res.Success() {
		return "", fmt.Errorf("agent exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return firstCommandLine(res.Stdout), nil
}

// Subtask asks the agent to decompose the failure into one bounded sub-task.
// Returns nil when the agent produces nothing usable.
func (e *Engine) Subtask(ctx context.Context, t *task.Task, last *controller.AttemptRecord) *task.Task {
	prompt := fmt.Sprintf(`A task failed and needs a preparatory fix before retrying.

Main task: %s
Failed conditions: %s
Last stderr: %s

Produce one small sub-task that addresses the failure cause. Return only a JSON object:
{"name": "...", "description": "...", "command": "...", "completion_conditions": [...]}`,
		t.Name, failedNames(last), truncate(last.Result.Stderr, 500))

	res, err := e.agent.Invoke(ctx, prompt, generationTimeout)
	if err != nil || !res.Success() {
		return nil
	}

	raw := ExtractJSON(res.Stdout)
	if raw == "" {
		return nil
	}

	var spec struct {
		Name        string           `json:"name"`
		Description string           `json:"description"`
		Command     string           `json:"command"`
		Conditions  []task.Condition `json:"completion_conditions"`
	}
	if err := json.Unmarshal([]byte(raw), &spec); err != nil || spec.Command == "" {
		return nil
	}
	for _, c := range spec.Conditions {
		if c.Validate() != nil {
			spec.Conditions = nil
			break
		}
	}

	e.subSeq++
	return t.Subtask(e.subSeq, spec.Name, spec.Description, spec.Command, spec.Conditions)
}

// firstCommandLine extracts the first plausible command line from agent
// output, skipping comments, prose labels, and code fences.
func firstCommandLine(output string) string {
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "```") {
			continue
		}
		if strings.HasSuffix(line, ":") {
			continue
		}
		return line
	}
	return ""
}

func failedNames(rec *controller.AttemptRecord) string {
	var names []string
	for _, v := range rec.Verdicts {
		if !v.Passed {
			names = append(names, v.Name)
		}
	}
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
