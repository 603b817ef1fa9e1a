package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/internal/task"
)

var validateCmd = &cobra.Command{
	Use:   "validate <task-file>",
	Short: "Validate a task definition file without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := task.Load(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, t := range tasks {
			kind := "command"
			if t.Natural() {
				kind = "natural"
			}
			fmt.Fprintf(out, "  %s (%s, %d conditions)\n", t.ID, kind, len(t.Conditions))
		}
		fmt.Fprintf(out, "%d tasks valid\n", len(tasks))
		return nil
	},
}
