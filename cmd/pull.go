package cmd

import (
	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull [service]",
	Short: "Re-pull the currently recorded version of each service",
	Long: `Pull fetches the image tag currently recorded in the manifest for each
targeted service. It is an idempotent re-pull: history does not advance and
the manifest is not modified. Before the manifest exists, the configured
default tags are pulled instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}
		report, err := m.Pull(cmd.Context(), optionalArg(args))
		if err != nil {
			return err
		}
		return printReport(cmd, report)
	},
}

var pullLatestCmd = &cobra.Command{
	Use:   "pull-latest [service]",
	Short: "Pull the latest version of each service and record it",
	Long: `Pull-latest fetches the default (mutable) tag for each targeted service,
resolves it to a content digest, and records the result as the new current
version with a history entry. Initializes the manifest on first use.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}
		report, err := m.PullLatest(cmd.Context(), optionalArg(args))
		if err != nil {
			return err
		}
		return printReport(cmd, report)
	},
}

func optionalArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return ""
}

func init() {
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pullLatestCmd)
}
