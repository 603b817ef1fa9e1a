package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/internal/runner"
	"github.com/taskloop/taskloop/internal/task"
)

var (
	runTaskID string
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run <task-file>",
	Short: "Run a task set from a JSON definition file",
	Long: `Run executes every task in the definition file in order, retrying each
until its completion conditions pass or its retry budget is exhausted.

Examples:
  taskloop run tasks.json
  taskloop run tasks.json --task-id build_app
  taskloop run tasks.json --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runTaskID, "task-id", "", "run only the task with this id")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "simulate without invoking the agent")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tasks, err := task.Load(args[0])
	if err != nil {
		return err
	}
	if runTaskID != "" {
		tasks = filterByID(tasks, runTaskID)
		if len(tasks) == 0 {
			return fmt.Errorf("task id %q not found in %s", runTaskID, args[0])
		}
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	mode := "run"
	if runDryRun {
		mode = "dry-run"
	}
	runID, err := st.CreateRun(args[0], mode)
	if err != nil {
		return err
	}

	stk, err := buildStack(cfg, ".", runDryRun)
	if err != nil {
		return err
	}
	defer stk.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received interrupt signal, stopping...")
		cancel()
	}()

	logger.Info("starting run", "file", args[0], "tasks", len(tasks), "mode", mode)

	r := runner.New(stk.ctrl, stk.engine, st, runID, logger)
	report, runErr := r.Run(ctx, tasks)

	fmt.Print(report.Summary())

	status := "completed"
	if runErr != nil {
		status = "cancelled"
	} else if !report.AllSucceeded() {
		status = "failed"
	}
	_ = st.UpdateRunStatus(runID, status)

	if runErr != nil {
		return runErr
	}
	if !report.AllSucceeded() {
		return fmt.Errorf("%d of %d tasks did not succeed",
			len(report.Order)-report.Succeeded(), len(report.Order))
	}
	return nil
}

func filterByID(tasks []*task.Task, id string) []*task.Task {
	for _, t := range tasks {
		if t.ID == id {
			return []*task.Task{t}
		}
	}
	return nil
}
