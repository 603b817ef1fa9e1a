package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/internal/task"
)

var listFormat string

var listCmd = &cobra.Command{
	Use:   "list <task-file>",
	Short: "List the tasks in a definition file",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listFormat, "format", "table", "output format (table, json)")
}

func runList(cmd *cobra.Command, args []string) error {
	tasks, err := task.Load(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if listFormat == "json" {
		type row struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			Command    string `json:"command,omitempty"`
			Conditions int    `json:"conditions"`
			MaxRetries int    `json:"max_retries"`
			Timeout    int    `json:"timeout"`
		}
		rows := make([]row, 0, len(tasks))
		for _, t := range tasks {
			rows = append(rows, row{
				ID:         t.ID,
				Name:       t.Name,
				Command:    t.Command,
				Conditions: len(t.Conditions),
				MaxRetries: t.MaxRetries,
				Timeout:    t.Timeout,
			})
		}
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "%-20s %-30s %-10s %-11s %-8s\n", "ID", "NAME", "CONDITIONS", "MAX_RETRIES", "TIMEOUT")
	for _, t := range tasks {
		name := t.Name
		if len(name) > 29 {
			name = name[:29]
		}
		fmt.Fprintf(out, "%-20s %-30s %-10d %-11d %-8d\n",
			t.ID, name, len(t.Conditions), t.MaxRetries, t.Timeout)
	}
	return nil
}
