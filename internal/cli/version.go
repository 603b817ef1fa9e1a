package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build metadata, overridden at link time via -ldflags.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var versionBuildInfo bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "taskloop %s (%s)\n", Version, Commit)
		if versionBuildInfo {
			fmt.Fprintf(out, "built %s with %s for %s/%s\n",
				BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		}
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionBuildInfo, "build-info", false, "include toolchain and platform details")
}
