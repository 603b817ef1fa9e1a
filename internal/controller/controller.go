// Package controller owns the attempt loop for a single task: invoke the
// agent, evaluate completion conditions, and decide between retrying with a
// wait policy or stopping.
package controller

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskloop/taskloop/internal/agent"
	"github.com/taskloop/taskloop/internal/condition"
	"github.com/taskloop/taskloop/internal/display"
	"github.com/taskloop/taskloop/internal/task"
)

// State is a task's position in the attempt state machine.
type State string

const (
	StatePending    State = "pending"
	StateRunning    State = "running"
	StateEvaluating State = "evaluating"
	StateSucceeded  State = "succeeded"
	StateRetrying   State = "retrying"
	StateExhausted  State = "exhausted"
)

// Waits are the pauses applied between attempts.
type Waits struct {
	// Failure is the normal wait after a failed attempt.
	Failure time.Duration
	// Cooldown is the extended wait after two consecutive attempts failed
	// with the same fingerprint.
	Cooldown time.Duration
	// Partial is the short wait when the command exited cleanly and some
	// conditions already pass.
	Partial time.Duration
}

// DefaultWaits returns the standard wait policy.
func DefaultWaits() Waits {
	return Waits{
		Failure:  30 * time.Second,
		Cooldown: 60 * time.Second,
		Partial:  10 * time.Second,
	}
}

// AttemptRecord captures one attempt: what ran, what came back, and how each
// condition judged it. Verdicts are ordered parallel to the task's
// conditions. Append-only for the duration of one task run.
type AttemptRecord struct {
	Attempt    int                 `json:"attempt"`
	StartedAt  time.Time           `json:"started_at"`
	Command    string              `json:"command"`
	Result     *agent.Result       `json:"result"`
	Verdicts   []condition.Verdict `json:"verdicts"`
	Passed     bool                `json:"passed"`
	WaitBefore time.Duration       `json:"wait_before"`
}

// Outcome is the terminal result of running one task to completion.
type Outcome struct {
	TaskID   string          `json:"task_id"`
	Name     string          `json:"name"`
	State    State           `json:"state"`
	Attempts []AttemptRecord `json:"attempts"`
	Elapsed  time.Duration   `json:"elapsed"`
}

// Final returns the last attempt record, the failure evidence when the task
// is exhausted.
func (o *Outcome) Final() *AttemptRecord {
	if len(o.Attempts) == 0 {
		return nil
	}
	return &o.Attempts[len(o.Attempts)-1]
}

// Evaluator is the condition-checking capability the controller depends on.
type Evaluator interface {
	EvaluateAll(ctx context.Context, conds []task.Condition, res *agent.Result) []condition.Verdict
}

// RetryHook is called before each retry. It may return a derived task with a
// revised command for the next attempt; returning nil keeps the current one.
// The shared budget lets the hook run sub-tasks that count against the
// parent's attempts.
type RetryHook func(ctx context.Context, t *task.Task, last *AttemptRecord, budget *Budget) (*task.Task, error)

// cooldownState tracks consecutive identical failures within one task run.
// It is scoped per run, never shared across tasks.
type cooldownState struct {
	lastFingerprint string
	consecutive     int
	lastWait        time.Duration
}

// Controller runs the attempt loop. One Controller can run many tasks;
// per-task state lives on the stack of Run.
type Controller struct {
	invoker  agent.Invoker
	eval     Evaluator
	waits    Waits
	reporter display.Reporter
	logger   *slog.Logger

	// OnRetry, when set, escalates failed attempts to the improvement
	// engine before the next try.
	OnRetry RetryHook
}

// New creates a controller.
func New(invoker agent.Invoker, eval Evaluator, waits Waits, reporter display.Reporter, logger *slog.Logger) *Controller {
	if reporter == nil {
		reporter = display.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		invoker:  invoker,
		eval:     eval,
		waits:    waits,
		reporter: reporter,
		logger:   logger,
	}
}

// Run executes the task until its conditions pass or the retry budget is
// exhausted. At most max_retries+1 attempts are made.
func (c *Controller) Run(ctx context.Context, t *task.Task) *Outcome {
	return c.RunBudgeted(ctx, t, NewBudget(t.MaxAttempts()))
}

// RunBudgeted executes the task drawing attempts from an externally owned
// budget, so improvement sub-tasks share the parent's ceiling.
func (c *Controller) RunBudgeted(ctx context.Context, t *task.Task, budget *Budget) *Outcome {
	start := time.Now()
	out := &Outcome{TaskID: t.ID, Name: t.Name, State: StatePending}
	cool := cooldownState{}
	maxAttempts := t.MaxAttempts()

	c.reporter.TaskStart(t)

	cur := t
	wait := time.Duration(0)
	for attempt := 1; attempt <= maxAttempts && budget.Take(); attempt++ {
		select {
		case <-ctx.Done():
			out.State = StateExhausted
			out.Elapsed = time.Since(start)
			return out
		default:
		}

		c.reporter.AttemptStart(attempt, maxAttempts)
		c.logger.Info("starting attempt", "task", cur.ID, "attempt", attempt, "max_attempts", maxAttempts)

		out.State = StateRunning
		rec := AttemptRecord{
			Attempt:    attempt,
			StartedAt:  time.Now(),
			Command:    cur.Command,
			WaitBefore: wait,
		}

		res, err := c.invoker.Invoke(ctx, cur.Command, cur.TimeoutDuration())
		if res == nil {
			// The invoker faulted before producing a result. Record a
			// synthetic failed execution rather than propagating.
			res = &agent.Result{ExitCode: agent.TimeoutExitCode, Stderr: fmt.Sprint(err)}
		}
		rec.Result = res
		if res.TimedOut {
			c.logger.Warn("invocation timed out", "task", cur.ID, "timeout", cur.Timeout)
		}

		out.State = StateEvaluating
		rec.Verdicts = c.eval.EvaluateAll(ctx, cur.Conditions, res)
		rec.Passed = allPassed(rec.Verdicts)
		for _, v := range rec.Verdicts {
			c.reporter.Verdict(v)
		}
		out.Attempts = append(out.Attempts, rec)

		if rec.Passed {
			out.State = StateSucceeded
			out.Elapsed = time.Since(start)
			c.reporter.TaskEnd(t.ID, string(StateSucceeded), attempt)
			c.logger.Info("task succeeded", "task", t.ID, "attempts", attempt)
			return out
		}

		if attempt == maxAttempts || budget.Remaining() == 0 {
			break
		}
		out.State = StateRetrying
		c.logger.Info("attempt failed, retrying", "task", cur.ID, "remaining", budget.Remaining())

		if c.OnRetry != nil {
			revised, err := c.OnRetry(ctx, cur, out.Final(), budget)
			if err != nil {
				c.logger.Warn("retry escalation failed", "task", cur.ID, "error", err)
			} else if revised != nil {
				cur = revised
			}
			if budget.Remaining() == 0 {
				break
			}
		}

		var reason string
		reason, wait = c.nextWait(res, rec.Verdicts, &cool)
		if !c.sleep(ctx, reason, wait) {
			out.State = StateExhausted
			out.Elapsed = time.Since(start)
			c.reporter.TaskEnd(t.ID, string(StateExhausted), attempt)
			return out
		}
	}

	out.State = StateExhausted
	out.Elapsed = time.Since(start)
	c.reporter.TaskEnd(t.ID, string(StateExhausted), len(out.Attempts))
	c.logger.Warn("task exhausted", "task", t.ID, "attempts", len(out.Attempts))
	return out
}

// nextWait picks the pause before the next attempt. Repeating the previous
// attempt's failure fingerprint triggers the cooldown; a clean exit with some
// conditions already passing gets the short partial wait; everything else
// waits the normal failure interval.
func (c *Controller) nextWait(res *agent.Result, verdicts []condition.Verdict, cool *cooldownState) (string, time.Duration) {
	fp := Fingerprint(res, verdicts)

	if fp == cool.lastFingerprint {
		cool.consecutive++
		cool.lastWait = c.waits.Cooldown
		return "cooldown", c.waits.Cooldown
	}

	cool.lastFingerprint = fp
	cool.consecutive = 1

	if res.ExitCode == 0 && !res.TimedOut && anyPassed(verdicts) {
		cool.lastWait = c.waits.Partial
		return "partial pass", c.waits.Partial
	}
	cool.lastWait = c.waits.Failure
	return "failure", c.waits.Failure
}

// sleep waits for d, reporting a live countdown each second. Returns false if
// the context was cancelled before the wait finished.
func (c *Controller) sleep(ctx context.Context, reason string, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	deadline := time.Now().Add(d)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	defer c.reporter.CountdownDone()

	c.reporter.CountdownTick(reason, d)
	for {
		select {
		case <-ctx.Done():
			return false
		case now := <-ticker.C:
			remaining := deadline.Sub(now)
			if remaining <= 0 {
				return true
			}
			c.reporter.CountdownTick(reason, remaining)
		}
	}
}

// fingerprintStderrLen bounds how much stderr feeds the failure fingerprint.
const fingerprintStderrLen = 200

// Fingerprint derives a short signature of a failed attempt from the exit
// code, the head of stderr, and the names of the failed conditions. Two
// attempts failing the same way produce equal fingerprints.
func Fingerprint(res *agent.Result, verdicts []condition.Verdict) string {
	h := sha256.New()
	stderr := ""
	exitCode := agent.TimeoutExitCode
	if res != nil {
		stderr = res.Stderr
		exitCode = res.ExitCode
	}
	if len(stderr) > fingerprintStderrLen {
		stderr = stderr[:fingerprintStderrLen]
	}
	fmt.Fprintf(h, "%d\n%s\n", exitCode, stderr)
	for _, v := range verdicts {
		if !v.Passed {
			fmt.Fprintf(h, "%s\n", v.Name)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

func allPassed(verdicts []condition.Verdict) bool {
	for _, v := range verdicts {
		if !v.Passed {
			return false
		}
	}
	return true
}

func anyPassed(verdicts []condition.Verdict) bool {
	for _, v := range verdicts {
		if v.Passed {
			return true
		}
	}
	return false
}
