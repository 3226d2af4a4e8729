package cmd

import (
	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set <service> <tag>",
	Short: "Pin a service to a specific version",
	Long: `Set fetches the given tag for a service, resolves its digest, and records
it as the current version with a history entry marked "custom". Intended for
hotfixes and manual pinning.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}
		report, err := m.Set(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printReport(cmd, report)
	},
}

func init() {
	rootCmd.AddCommand(setCmd)
}
