package cmd

import (
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve-tags",
	Short: "Resolve mutable tags to digests and semantic versions",
	Long: `Resolve-tags looks up the content digest for every tracked service still
on a mutable tag and, when the engine knows a semantic version tag for the
same content, pins the record to it. The deployed content does not change and
no history entry is created. Resolution failures are warnings per service.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}
		report, err := m.ResolveTags(cmd.Context())
		if err != nil {
			return err
		}
		return printReport(cmd, report)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
