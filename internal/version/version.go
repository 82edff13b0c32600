package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version of the build.
	Version = "dev"
	// Commit is the short git SHA embedded at build time.
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns the version with commit, build time and Go runtime details.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s, go: %s %s/%s",
		Version, Commit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent is the HTTP User-Agent sent to release endpoints.
func UserAgent(base string) string {
	if base == "" {
		base = "felloe"
	}
	return base + "/" + Version
}

// AttachCobraVersionCommand adds a `version` subcommand to root.
func AttachCobraVersionCommand(root *cobra.Command) {
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print felloe build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Full())
		},
	})
}
