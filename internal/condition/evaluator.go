// Package condition evaluates task completion conditions against execution
// results and the observable environment.
package condition

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/taskloop/taskloop/internal/agent"
	"github.com/taskloop/taskloop/internal/task"
)

// Verdict is the outcome of evaluating one condition.
type Verdict struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// affirmativeTokens are the words an agent_confirmation reply may contain to
// count as approval. Matching is on whole words so "broken" never matches "ok".
var affirmativeTokens = map[string]bool{"ok": true, "yes": true, "approved": true}

// Evaluator checks conditions. File paths resolve relative to WorkDir at
// check time, never cached across attempts.
type Evaluator struct {
	WorkDir string

	httpClient *http.Client
	agent      agent.Invoker
	checker    agent.Invoker
	history    *History
	logger     *slog.Logger
}

// NewEvaluator creates an evaluator. ag answers agent_confirmation prompts;
// checker runs test_command checks (usually a shell invoker).
func NewEvaluator(workDir string, ag, checker agent.Invoker, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		WorkDir:    workDir,
		httpClient: &http.Client{},
		agent:      ag,
		checker:    checker,
		history:    NewHistory(),
		logger:     logger,
	}
}

// History returns the accumulated check history for export.
func (e *Evaluator) History() *History {
	return e.history
}

// EvaluateAll checks every condition in declaration order against the same
// execution result. It never short-circuits: all verdicts are recorded even
// after a failure, to keep diagnostics complete.
func (e *Evaluator) EvaluateAll(ctx context.Context, conds []task.Condition, res *agent.Result) []Verdict {
	verdicts := make([]Verdict, 0, len(conds))
	for _, c := range conds {
		passed, detail := e.Evaluate(ctx, c, res)
		verdicts = append(verdicts, Verdict{
			Name:   c.DisplayName(),
			Type:   c.Type,
			Passed: passed,
			Detail: detail,
		})
	}
	return verdicts
}

// Evaluate checks a single condition. Faults during evaluation (unreadable
// file, unreachable host, failed subprocess) are reported as failed verdicts,
// never as errors: only schema problems are fatal, and those are rejected at
// load time.
func (e *Evaluator) Evaluate(ctx context.Context, c task.Condition, res *agent.Result) (passed bool, detail string) {
	defer func() {
		e.history.Log(c.Type, c.Identifier(), passed, detail)
		e.logger.Debug("condition checked", "type", c.Type, "name", c.DisplayName(), "passed", passed)
	}()

	switch c.Type {
	case task.FileExists:
		return e.checkFileExists(c.Path)
	case task.OutputContains:
		return e.checkOutputContains(res.Output(), c.Pattern)
	case task.OutputNotContains:
		return e.checkOutputNotContains(res.Output(), c.Pattern)
	case task.FileContains:
		return e.checkFileContains(c.Path, c.Pattern)
	case task.WebsiteExists:
		return e.checkWebsiteExists(ctx, c.URL, c.CheckTimeout())
	case task.TestCommand:
		return e.checkTestCommand(ctx, c.Command, c.CheckTimeout())
	case task.AgentConfirmation:
		return e.checkAgentConfirmation(ctx, c.Prompt, c.CheckTimeout())
	default:
		// Unknown types are rejected at load time; reaching this means a
		// condition bypassed validation.
		return false, fmt.Sprintf("unknown condition type %q", c.Type)
	}
}

func (e *Evaluator) resolve(path string) string {
	if filepath.IsAbs(path) || e.WorkDir == "" {
		return path
	}
	return filepath.Join(e.WorkDir, path)
}

func (e *Evaluator) checkFileExists(path string) (bool, string) {
	full := e.resolve(path)
	info, err := os.Stat(full)
	if err != nil {
		return false, fmt.Sprintf("file %s does not exist", path)
	}
	if info.IsDir() {
		return false, fmt.Sprintf("%s is a directory, not a file", path)
	}
	return true, fmt.Sprintf("file %s exists (%d bytes)", path, info.Size())
}

func (e *Evaluator) checkOutputContains(output, pattern string) (bool, string) {
	if idx := strings.Index(output, pattern); idx >= 0 {
		line := strings.Count(output[:idx], "\n") + 1
		return true, fmt.Sprintf("output contains %q (line %d)", pattern, line)
	}
	return false, fmt.Sprintf("output does not contain %q (%d bytes searched)", pattern, len(output))
}

func (e *Evaluator) checkOutputNotContains(output, pattern string) (bool, string) {
	if strings.Contains(output, pattern) {
		return false, fmt.Sprintf("output contains forbidden pattern %q", pattern)
	}
	return true, fmt.Sprintf("output does not contain %q", pattern)
}

func (e *Evaluator) checkFileContains(path, pattern string) (bool, string) {
	full := e.resolve(path)
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return false, fmt.Sprintf("file %s does not exist", path)
		}
		return false, fmt.Sprintf("reading %s: %v", path, err)
	}
	content := string(data)
	if idx := strings.Index(content, pattern); idx >= 0 {
		line := strings.Count(content[:idx], "\n") + 1
		return true, fmt.Sprintf("file %s contains %q (line %d)", path, pattern, line)
	}
	return false, fmt.Sprintf("file %s does not contain %q", path, pattern)
}

// checkWebsiteExists passes when any HTTP response arrives before the check
// timeout, regardless of status code. Connection errors and timeouts fail.
func (e *Evaluator) checkWebsiteExists(ctx context.Context, url string, timeoutSec int) (bool, string) {
	checkCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Sprintf("invalid url %s: %v", url, err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return false, fmt.Sprintf("unreachable: %v", err)
	}
	defer resp.Body.Close()

	return true, fmt.Sprintf("%s responded with status %d", url, resp.StatusCode)
}

func (e *Evaluator) checkTestCommand(ctx context.Context, command string, timeoutSec int) (bool, string) {
	res, err := e.checker.Invoke(ctx, command, time.Duration(timeoutSec)*time.Second)
	if err != nil && res == nil {
		return false, fmt.Sprintf("running test command: %v", err)
	}
	if res.TimedOut {
		return false, fmt.Sprintf("test command timed out after %ds", timeoutSec)
	}
	if res.ExitCode != 0 {
		return false, fmt.Sprintf("test command exited %d: %s", res.ExitCode, firstLine(res.Stderr))
	}
	return true, "test command exited 0"
}

// checkAgentConfirmation asks the agent the yes/no prompt and passes iff the
// agent exited 0 and its reply contains an affirmative word after trimming
// and case-folding.
func (e *Evaluator) checkAgentConfirmation(ctx context.Context, prompt string, timeoutSec int) (bool, string) {
	res, err := e.agent.Invoke(ctx, prompt, time.Duration(timeoutSec)*time.Second)
	if err != nil && res == nil {
		return false, fmt.Sprintf("invoking agent: %v", err)
	}
	if res.TimedOut {
		return false, fmt.Sprintf("agent confirmation timed out after %ds", timeoutSec)
	}
	if res.ExitCode != 0 {
		return false, fmt.Sprintf("agent exited %d", res.ExitCode)
	}
	if Affirmative(res.Stdout) {
		return true, "agent confirmed"
	}
	return false, fmt.Sprintf("agent did not confirm: %s", firstLine(res.Stdout))
}

// Affirmative reports whether a reply contains an affirmative word. The
// reply is lower-cased and split on non-letter boundaries so tokens match
// whole words only.
func Affirmative(reply string) bool {
	words := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(reply)), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if affirmativeTokens[w] {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
