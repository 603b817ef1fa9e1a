package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/internal/task"
)

var templateForce bool

var templateCmd = &cobra.Command{
	Use:   "create-template <path>",
	Short: "Write a sample task definition file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if !templateForce {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
		}
		if err := task.WriteTemplate(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "template written to %s\n", path)
		return nil
	},
}

func init() {
	templateCmd.Flags().BoolVarP(&templateForce, "force", "f", false, "overwrite an existing file")
}
