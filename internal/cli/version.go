package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fs-delta-tracker/internal/startup"
)

func newVersionCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		// No configuration or logging is needed to print the version.
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := startup.GetBuildInfo()
			out := cmd.OutOrStdout()
			switch format {
			case formatJSON:
				return writeJSON(out, info)
			case formatYAML:
				return writeYAML(out, info)
			case formatTable, "":
			default:
				return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
			}
			fmt.Fprintf(out, "fs-delta %s (commit %s, built %s, %s %s/%s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table, json or yaml")
	return cmd
}
