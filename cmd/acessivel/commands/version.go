package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	BuiltBy   = "unknown"
)

// SetVersionInfo updates the version variables with build-time information
func SetVersionInfo(version, commit, buildTime, builtBy string) {
	if version != "" {
		Version = version
	}
	if commit != "" {
		Commit = commit
	}
	if buildTime != "" {
		BuildTime = buildTime
	}
	if builtBy != "" {
		BuiltBy = builtBy
	}
}

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			short, _ := cmd.Flags().GetBool("short")
			printVersion(cmd.OutOrStdout(), short)
		},
	}

	cmd.Flags().Bool("short", false, "show only version number")

	return cmd
}

func printVersion(w io.Writer, short bool) {
	if short {
		fmt.Fprintln(w, Version)
		return
	}

	fmt.Fprintf(w, "acessivel version %s\n", Version)
	fmt.Fprintf(w, "  commit: %s\n", Commit)
	fmt.Fprintf(w, "  built: %s\n", BuildTime)
	fmt.Fprintf(w, "  built by: %s\n", BuiltBy)
}
