package cmd

import (
	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "safe-update [service]",
	Short: "Update to latest with backup and automatic rollback",
	Long: `Safe-update takes a pre-flight backup of the manifest, updates the
targeted services to their latest versions, then verifies container health.
Any service that fails its health check is automatically rolled back to its
pre-update version and the update is reported as failed-and-reverted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !assumeYes {
			color.Yellow("This will update services to their latest versions.")
			confirm := false
			prompt := &survey.Confirm{Message: "Proceed with safe update?"}
			if err := survey.AskOne(prompt, &confirm); err != nil {
				return err
			}
			if !confirm {
				color.Yellow("Update cancelled.")
				return nil
			}
		}

		m, err := newManager()
		if err != nil {
			return err
		}
		report, err := m.SafeUpdate(cmd.Context(), optionalArg(args))
		if err != nil {
			return err
		}
		return printReport(cmd, report)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
