package cmd

import (
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stevedore-sh/stevedore/internal/version"
)

var (
	rollbackAll bool
	rollbackTag string
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback [service]",
	Short: "Roll back to the previous version",
	Long: `Rollback reverts the targeted services to the most recent history entry
that differs from the current version, or to an explicit --tag. A service
with no usable previous version is reported as failed, never silently
skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}

		service := optionalArg(args)
		plan, err := m.PlanRollback(cmd.Context(), service, rollbackAll, rollbackTag)
		if err != nil {
			return err
		}

		actionable := 0
		fmt.Fprintln(cmd.OutOrStdout(), renderTitle("Rollback plan"))
		for _, t := range plan {
			if t.Err != nil {
				if errors.Is(t.Err, version.ErrRollbackUnavailable) {
					fmt.Fprintln(cmd.OutOrStdout(), renderWarning(fmt.Sprintf("  %s: %v", t.Service, t.Err)))
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), renderError(fmt.Sprintf("  %s: %v", t.Service, t.Err)))
				}
				continue
			}
			actionable++
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s → %s\n", t.Service, t.CurrentTag, t.TargetTag)
		}

		if actionable == 0 && len(plan) > 0 {
			return version.ErrRollbackUnavailable
		}

		if !assumeYes {
			confirm := false
			prompt := &survey.Confirm{Message: "Proceed with rollback?"}
			if err := survey.AskOne(prompt, &confirm); err != nil {
				return err
			}
			if !confirm {
				color.Yellow("Rollback cancelled.")
				return nil
			}
		}

		report, err := m.Rollback(cmd.Context(), service, rollbackAll, rollbackTag)
		if err != nil {
			return err
		}
		return printReport(cmd, report)
	},
}

func init() {
	rollbackCmd.Flags().BoolVar(&rollbackAll, "all", false, "roll back all services")
	rollbackCmd.Flags().StringVar(&rollbackTag, "tag", "", "explicit tag to roll back to")
	rootCmd.AddCommand(rollbackCmd)
}
