package cmd

import (
	"fmt"
	rtdebug "runtime/debug"

	"github.com/spf13/cobra"
)

const esbuildModule = "github.com/evanw/esbuild"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version information",
	Long:  `Display the version, commit hash, and build date of the pkgkit CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pkgkit %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		fmt.Printf("esbuild: %s\n", moduleVersion(esbuildModule))
	},
}

// moduleVersion reports the version of a dependency linked into the binary.
func moduleVersion(path string) string {
	info, ok := rtdebug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == path {
			return dep.Version
		}
	}
	return "unknown"
}
