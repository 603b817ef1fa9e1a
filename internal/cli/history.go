package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/internal/store"
)

var (
	historyRunID  int64
	historyTaskID string
	historyJSON   bool
	historyOut    string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded attempts from the latest run",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().Int64Var(&historyRunID, "run", 0, "run ID (default: latest)")
	historyCmd.Flags().StringVar(&historyTaskID, "task-id", "", "only show this task")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output JSON")
	historyCmd.Flags().StringVarP(&historyOut, "output", "o", "", "write JSON to a file")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	runID := historyRunID
	var run *store.Run
	if runID == 0 {
		run, err = st.LatestRun()
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("no runs recorded yet")
		}
		runID = run.ID
	}

	results, err := st.TaskResults(runID)
	if err != nil {
		return err
	}

	type taskHistory struct {
		*store.TaskResult
		Records []*store.Attempt `json:"attempt_records"`
	}
	var tasks []*taskHistory
	for _, r := range results {
		if historyTaskID != "" && r.TaskID != historyTaskID {
			continue
		}
		attempts, err := st.Attempts(runID, r.TaskID)
		if err != nil {
			return err
		}
		tasks = append(tasks, &taskHistory{TaskResult: r, Records: attempts})
	}
	if historyTaskID != "" && len(tasks) == 0 {
		return fmt.Errorf("no attempts recorded for task %q in run %d", historyTaskID, runID)
	}

	if historyOut != "" || historyJSON {
		data, err := json.MarshalIndent(map[string]any{
			"run_id": runID,
			"tasks":  tasks,
		}, "", "  ")
		if err != nil {
			return err
		}
		if historyOut != "" {
			return os.WriteFile(historyOut, append(data, '\n'), 0o644)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %d\n", runID)
	for _, th := range tasks {
		fmt.Fprintf(out, "%s: %s (%d attempts, %s)\n",
			th.TaskID, th.Status, th.TaskResult.Attempts,
			time.Duration(th.ElapsedMs)*time.Millisecond)
		for _, a := range th.Records {
			status := "failed"
			if a.Passed {
				status = "passed"
			}
			fmt.Fprintf(out, "  attempt %d: exit %d, %s, %s\n",
				a.Number, a.ExitCode, time.Duration(a.DurationMs)*time.Millisecond, status)
		}
	}
	return nil
}
