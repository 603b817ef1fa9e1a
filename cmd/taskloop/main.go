// Taskloop is a CLI tool for running agent-driven tasks in a retry loop
// until their completion conditions hold.
package main

import (
	"fmt"
	"os"

	"github.com/taskloop/taskloop/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
