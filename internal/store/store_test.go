package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskloop.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s.Close()

	// Reopening must not re-apply the schema.
	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	s.Close()
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateRun("tasks.json", "run")
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	run, err := s.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if run.ID != id {
		t.Errorf("expected run %d, got %d", id, run.ID)
	}
	if run.TaskFile != "tasks.json" || run.Mode != "run" || run.Status != "running" {
		t.Errorf("unexpected run record: %+v", run)
	}

	if err := s.UpdateRunStatus(id, "completed"); err != nil {
		t.Fatalf("UpdateRunStatus() error = %v", err)
	}
	run, err = s.LatestRun()
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != "completed" {
		t.Errorf("expected completed, got %s", run.Status)
	}
}

func TestLatestRunPicksNewest(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.CreateRun("a.json", "run"); err != nil {
		t.Fatal(err)
	}
	second, err := s.CreateRun("b.json", "dry-run")
	if err != nil {
		t.Fatal(err)
	}

	run, err := s.LatestRun()
	if err != nil {
		t.Fatal(err)
	}
	if run.ID != second {
		t.Errorf("expected run %d, got %d", second, run.ID)
	}
}

func TestLatestRunEmpty(t *testing.T) {
	s := openTestStore(t)

	run, err := s.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if run != nil {
		t.Errorf("expected nil for empty store, got %+v", run)
	}
}

func TestTaskResultRoundTrip(t *testing.T) {
	s := openTestStore(t)
	runID, err := s.CreateRun("tasks.json", "run")
	if err != nil {
		t.Fatal(err)
	}

	err = s.SaveTaskResult(&TaskResult{
		RunID: runID, TaskID: "t1", Name: "Task 1", Command: "echo hi",
		Status: "succeeded", Attempts: 2, ElapsedMs: 1500,
	})
	if err != nil {
		t.Fatalf("SaveTaskResult() error = %v", err)
	}

	// Replacing the same task updates in place.
	err = s.SaveTaskResult(&TaskResult{
		RunID: runID, TaskID: "t1", Name: "Task 1", Command: "echo hi",
		Status: "exhausted", Attempts: 4, ElapsedMs: 9000,
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := s.TaskResults(runID)
	if err != nil {
		t.Fatalf("TaskResults() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result after replace, got %d", len(results))
	}
	got := results[0]
	if got.Status != "exhausted" || got.Attempts != 4 || got.ElapsedMs != 9000 {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestAttemptRoundTrip(t *testing.T) {
	s := openTestStore(t)
	runID, err := s.CreateRun("tasks.json", "run")
	if err != nil {
		t.Fatal(err)
	}

	started := time.Now().UTC().Truncate(time.Second)
	for i := 1; i <= 3; i++ {
		_, err := s.RecordAttempt(&Attempt{
			RunID: runID, TaskID: "t1", Number: i, StartedAt: started,
			Command: "echo hi", ExitCode: 1, DurationMs: 40,
			Stderr: "boom", VerdictsJSON: `[{"name":"c1","passed":false}]`,
			WaitBeforeMs: int64((i - 1) * 100),
		})
		if err != nil {
			t.Fatalf("RecordAttempt(%d) error = %v", i, err)
		}
	}

	attempts, err := s.Attempts(runID, "t1")
	if err != nil {
		t.Fatalf("Attempts() error = %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(attempts))
	}
	for i, a := range attempts {
		if a.Number != i+1 {
			t.Errorf("attempt %d has number %d", i, a.Number)
		}
	}
	a := attempts[2]
	if a.ExitCode != 1 || a.Stderr != "boom" || a.WaitBeforeMs != 200 {
		t.Errorf("unexpected attempt record: %+v", a)
	}

	count, err := s.AttemptCount(runID, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}

	if other, _ := s.Attempts(runID, "t2"); len(other) != 0 {
		t.Errorf("expected no attempts for another task, got %d", len(other))
	}
}
