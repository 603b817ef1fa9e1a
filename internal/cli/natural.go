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
	naturalName       string
	naturalMaxRetries int
	naturalTimeout    int
)

var naturalCmd = &cobra.Command{
	Use:   "run-natural <description>",
	Short: "Run a single task described in natural language",
	Long: `Run-natural hands the description to the agent, which generates the
command and completion conditions itself. On failure the agent diagnoses
the attempt, revises the command, and may run bounded sub-tasks before
retrying, all within the task's retry budget.

Example:
  taskloop run-natural "create a file hello.txt containing Hello, World"`,
	Args: cobra.ExactArgs(1),
	RunE: runNatural,
}

func init() {
	naturalCmd.Flags().StringVar(&naturalName, "name", "", "task name (generated if omitted)")
	naturalCmd.Flags().IntVar(&naturalMaxRetries, "max-retries", task.DefaultMaxRetries, "maximum retries")
	naturalCmd.Flags().IntVar(&naturalTimeout, "timeout", task.DefaultTimeout, "per-invocation timeout in seconds")
}

func runNatural(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	t := task.NewNatural(naturalName, args[0], naturalMaxRetries, naturalTimeout)

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	runID, err := st.CreateRun("", "natural")
	if err != nil {
		return err
	}

	stk, err := buildStack(cfg, ".", false)
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

	logger.Info("starting natural-language task",
		"task", t.ID,
		"max_retries", t.MaxRetries,
		"timeout", t.Timeout,
	)

	r := runner.New(stk.ctrl, stk.engine, st, runID, logger)
	report, runErr := r.Run(ctx, []*task.Task{t})

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
		return fmt.Errorf("task %s did not succeed", t.ID)
	}
	return nil
}
