// Package runner sequences a set of tasks through the attempt controller and
// aggregates the outcomes into a run report.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskloop/taskloop/internal/controller"
	"github.com/taskloop/taskloop/internal/improve"
	"github.com/taskloop/taskloop/internal/store"
	"github.com/taskloop/taskloop/internal/task"
)

// Report maps task identifiers to their terminal outcomes. Built by one
// runner, never mutated after the run finishes.
type Report struct {
	Results map[string]*controller.Outcome `json:"results"`
	Order   []string                       `json:"order"`
}

// AllSucceeded reports whether every executed task reached the succeeded
// state.
func (r *Report) AllSucceeded() bool {
	for _, out := range r.Results {
		if out.State != controller.StateSucceeded {
			return false
		}
	}
	return true
}

// Succeeded returns how many tasks succeeded.
func (r *Report) Succeeded() int {
	n := 0
	for _, out := range r.Results {
		if out.State == controller.StateSucceeded {
			n++
		}
	}
	return n
}

// Runner executes tasks one at a time, in declaration order. A single task's
// exhaustion never aborts the set.
type Runner struct {
	ctrl   *controller.Controller
	engine *improve.Engine
	store  *store.Store
	runID  int64
	logger *slog.Logger
}

// New creates a runner. engine may be nil when natural-language escalation
// is not wanted; st may be nil to skip persistence.
func New(ctrl *controller.Controller, engine *improve.Engine, st *store.Store, runID int64, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{ctrl: ctrl, engine: engine, store: st, runID: runID, logger: logger}
}

// Run executes the tasks sequentially and returns the aggregated report.
// Cancellation stops between (and within) tasks; outcomes collected so far
// are still returned.
func (r *Runner) Run(ctx context.Context, tasks []*task.Task) (*Report, error) {
	rep := &Report{Results: make(map[string]*controller.Outcome, len(tasks))}

	if r.engine != nil {
		r.ctrl.OnRetry = r.engine.Hook(r.ctrl)
	}

	for _, t := range tasks {
		select {
		case <-ctx.Done():
			return rep, ctx.Err()
		default:
		}

		run := t
		if t.Natural() && r.engine != nil {
			prepared, err := r.engine.Prepare(ctx, t)
			if err != nil {
				// Treat generation failure like any other failed task:
				// record it and continue with the rest of the set.
				r.logger.Error("preparing natural task failed", "task", t.ID, "error", err)
				rep.Results[t.ID] = &controller.Outcome{
					TaskID: t.ID,
					Name:   t.Name,
					State:  controller.StateExhausted,
				}
				rep.Order = append(rep.Order, t.ID)
				r.persist(t, rep.Results[t.ID])
				continue
			}
			run = prepared
		}

		out := r.ctrl.Run(ctx, run)
		rep.Results[t.ID] = out
		rep.Order = append(rep.Order, t.ID)
		r.persist(run, out)
	}

	return rep, nil
}

// persist records the task outcome and its attempts; storage faults are
// logged, never allowed to fail the run.
func (r *Runner) persist(t *task.Task, out *controller.Outcome) {
	if r.store == nil {
		return
	}

	err := r.store.SaveTaskResult(&store.TaskResult{
		RunID:     r.runID,
		TaskID:    out.TaskID,
		Name:      out.Name,
		Command:   t.Command,
		Status:    string(out.State),
		Attempts:  len(out.Attempts),
		ElapsedMs: out.Elapsed.Milliseconds(),
	})
	if err != nil {
		r.logger.Warn("could not save task result", "task", out.TaskID, "error", err)
	}

	for _, rec := range out.Attempts {
		verdicts, _ := json.Marshal(rec.Verdicts)
		a := &store.Attempt{
			RunID:        r.runID,
			TaskID:       out.TaskID,
			Number:       rec.Attempt,
			StartedAt:    rec.StartedAt,
			Command:      rec.Command,
			VerdictsJSON: string(verdicts),
			Passed:       rec.Passed,
			WaitBeforeMs: rec.WaitBefore.Milliseconds(),
		}
		if rec.Result != nil {
			a.ExitCode = rec.Result.ExitCode
			a.TimedOut = rec.Result.TimedOut
			a.DurationMs = rec.Result.Duration.Milliseconds()
			a.Stdout = rec.Result.Stdout
			a.Stderr = rec.Result.Stderr
		}
		if _, err := r.store.RecordAttempt(a); err != nil {
			r.logger.Warn("could not record attempt", "task", out.TaskID, "attempt", rec.Attempt, "error", err)
		}
	}
}

// Summary renders a human-readable run summary.
func (r *Report) Summary() string {
	total := len(r.Order)
	succeeded := r.Succeeded()

	s := fmt.Sprintf("run complete: %d/%d tasks succeeded\n", succeeded, total)
	for _, id := range r.Order {
		out := r.Results[id]
		mark := "FAIL"
		if out.State == controller.StateSucceeded {
			mark = "ok"
		}
		s += fmt.Sprintf("  [%s] %s: %s (%d attempts, %s)\n",
			mark, id, out.State, len(out.Attempts), out.Elapsed.Round(time.Millisecond))
	}
	return s
}
