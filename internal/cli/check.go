package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/internal/agent"
	"github.com/taskloop/taskloop/internal/condition"
	"github.com/taskloop/taskloop/internal/display"
	"github.com/taskloop/taskloop/internal/task"
)

var (
	checkTaskID        string
	checkExportHistory string
)

var checkCmd = &cobra.Command{
	Use:   "check <task-file>",
	Short: "Check a task's completion conditions without running it",
	Long: `Check evaluates every completion condition of one task against the
current environment, without invoking the agent or running the command.
Output conditions run against empty output. Exit status is zero only when
every condition passes.

Example:
  taskloop check tasks.json --task-id build_app --export-history checks.json`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkTaskID, "task-id", "", "task to check (required)")
	checkCmd.Flags().StringVar(&checkExportHistory, "export-history", "", "write condition check history to this file")
	_ = checkCmd.MarkFlagRequired("task-id")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tasks, err := task.Load(args[0])
	if err != nil {
		return err
	}
	filtered := filterByID(tasks, checkTaskID)
	if len(filtered) == 0 {
		return fmt.Errorf("task id %q not found in %s", checkTaskID, args[0])
	}
	t := filtered[0]

	agentInvoker, err := agent.New(cfg.Agent.Name)
	if err != nil {
		return err
	}

	evaluator := condition.NewEvaluator(".", agentInvoker, agent.NewShellInvoker("."), logger)
	reporter := display.NewConsole(cmd.OutOrStdout())

	// No execution happened, so output conditions see an empty result.
	verdicts := evaluator.EvaluateAll(context.Background(), t.Conditions, &agent.Result{})

	passed := 0
	for _, v := range verdicts {
		reporter.Verdict(v)
		if v.Passed {
			passed++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d/%d conditions passed\n", passed, len(verdicts))

	if checkExportHistory != "" {
		if err := evaluator.History().Export(checkExportHistory); err != nil {
			return err
		}
		logger.Info("check history exported", "path", checkExportHistory)
	}

	if passed != len(verdicts) {
		return fmt.Errorf("%d condition(s) not met", len(verdicts)-passed)
	}
	return nil
}
