package runner

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/taskloop/taskloop/internal/agent"
	"github.com/taskloop/taskloop/internal/condition"
	"github.com/taskloop/taskloop/internal/controller"
	"github.com/taskloop/taskloop/internal/store"
	"github.com/taskloop/taskloop/internal/task"
)

func commandTask(id, command string, conds ...task.Condition) *task.Task {
	return &task.Task{
		ID: id, Name: "Task " + id, Command: command,
		Conditions: conds, MaxRetries: 1, Timeout: 10,
	}
}

func shellController(t *testing.T, dir string) *controller.Controller {
	t.Helper()
	inv := agent.NewShellInvoker(dir)
	eval := condition.NewEvaluator(dir, nil, agent.NewShellInvoker(dir), nil)
	return controller.New(inv, eval, controller.Waits{}, nil, nil)
}

func TestRunSequentialAndContinuesPastFailure(t *testing.T) {
	dir := t.TempDir()
	ctrl := shellController(t, dir)
	r := New(ctrl, nil, nil, 0, nil)

	tasks := []*task.Task{
		commandTask("ok1", "echo first",
			task.Condition{Type: task.OutputContains, Pattern: "first"}),
		commandTask("bad", "echo wrong",
			task.Condition{Type: task.OutputContains, Pattern: "never"}),
		commandTask("ok2", "echo second",
			task.Condition{Type: task.OutputContains, Pattern: "second"}),
	}

	rep, err := r.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(rep.Order) != 3 {
		t.Fatalf("expected all 3 tasks executed, got %d", len(rep.Order))
	}
	if rep.Order[0] != "ok1" || rep.Order[1] != "bad" || rep.Order[2] != "ok2" {
		t.Errorf("tasks ran out of order: %v", rep.Order)
	}
	if rep.AllSucceeded() {
		t.Error("expected AllSucceeded false with a failing task")
	}
	if rep.Succeeded() != 2 {
		t.Errorf("expected 2 successes, got %d", rep.Succeeded())
	}
	if rep.Results["bad"].State != controller.StateExhausted {
		t.Errorf("expected bad task exhausted, got %s", rep.Results["bad"].State)
	}
	// MaxRetries 1 means 2 attempts for the failing task.
	if got := len(rep.Results["bad"].Attempts); got != 2 {
		t.Errorf("expected 2 attempts for the failing task, got %d", got)
	}
}

func TestRunSimulationNeverExecutes(t *testing.T) {
	sim := agent.NewSimInvoker()
	ctrl := controller.New(sim, condition.SimEvaluator{}, controller.Waits{}, nil, nil)
	r := New(ctrl, nil, nil, 0, nil)

	marker := t.TempDir() + "/executed"
	tasks := []*task.Task{
		commandTask("sim1", "touch "+marker,
			task.Condition{Type: task.FileExists, Path: marker}),
	}

	rep, err := r.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !rep.AllSucceeded() {
		t.Error("simulated run should report success")
	}
	if got := sim.Instructions(); len(got) != 1 || got[0] != "touch "+marker {
		t.Errorf("sim invoker should have recorded the command, got %v", got)
	}
	if _, err := os.Stat(marker); err == nil {
		t.Error("simulated run must not touch the filesystem")
	}
}

func TestRunCancellationStopsBetweenTasks(t *testing.T) {
	dir := t.TempDir()
	ctrl := shellController(t, dir)
	r := New(ctrl, nil, nil, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := r.Run(ctx, []*task.Task{
		commandTask("t1", "echo hi", task.Condition{Type: task.OutputContains, Pattern: "hi"}),
	})
	if err == nil {
		t.Error("expected a context error")
	}
	if len(rep.Order) != 0 {
		t.Errorf("no tasks should have run, got %v", rep.Order)
	}
}

func TestRunPersistsOutcomes(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer st.Close()

	runID, err := st.CreateRun("tasks.json", "run")
	if err != nil {
		t.Fatalf("creating run: %v", err)
	}

	ctrl := shellController(t, dir)
	r := New(ctrl, nil, st, runID, nil)

	tasks := []*task.Task{
		commandTask("ok", "echo hi", task.Condition{Type: task.OutputContains, Pattern: "hi"}),
		commandTask("bad", "echo hi", task.Condition{Type: task.OutputContains, Pattern: "never"}),
	}
	if _, err := r.Run(context.Background(), tasks); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	results, err := st.TaskResults(runID)
	if err != nil {
		t.Fatalf("reading task results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 persisted task results, got %d", len(results))
	}
	if results[0].TaskID != "ok" || results[0].Status != string(controller.StateSucceeded) {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[1].Status != string(controller.StateExhausted) || results[1].Attempts != 2 {
		t.Errorf("unexpected second result: %+v", results[1])
	}

	attempts, err := st.Attempts(runID, "bad")
	if err != nil {
		t.Fatalf("reading attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 persisted attempts, got %d", len(attempts))
	}
	if attempts[0].Number != 1 || attempts[1].Number != 2 {
		t.Errorf("attempt numbers wrong: %d, %d", attempts[0].Number, attempts[1].Number)
	}
	if !strings.Contains(attempts[0].VerdictsJSON, "never") {
		t.Errorf("verdicts not persisted: %s", attempts[0].VerdictsJSON)
	}
}

func TestReportSummary(t *testing.T) {
	rep := &Report{
		Results: map[string]*controller.Outcome{
			"t1": {TaskID: "t1", State: controller.StateSucceeded, Attempts: make([]controller.AttemptRecord, 1)},
			"t2": {TaskID: "t2", State: controller.StateExhausted, Attempts: make([]controller.AttemptRecord, 4)},
		},
		Order: []string{"t1", "t2"},
	}

	s := rep.Summary()
	if !strings.Contains(s, "1/2 tasks succeeded") {
		t.Errorf("summary missing totals: %s", s)
	}
	if !strings.Contains(s, "[ok] t1") || !strings.Contains(s, "[FAIL] t2") {
		t.Errorf("summary missing per-task lines: %s", s)
	}
}
