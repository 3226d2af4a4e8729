package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check-updates",
	Short: "Report how each service tracks upstream releases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newReadOnlyManager()
		if err != nil {
			return err
		}
		statuses, err := m.CheckUpdates(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, renderTitle("Update tracking"))
		for _, st := range statuses {
			switch {
			case !st.Tracked:
				fmt.Fprintln(out, renderWarning(fmt.Sprintf("  %s: untracked (default %s)", st.Service, st.CurrentTag)))
			case st.External:
				fmt.Fprintln(out, renderMuted(fmt.Sprintf("  %s: %s (externally versioned)", st.Service, st.CurrentTag)))
			case st.Mutable:
				fmt.Fprintln(out, renderSuccess(fmt.Sprintf("  %s: %s (updates on next pull-latest)", st.Service, st.CurrentTag)))
			default:
				fmt.Fprintf(out, "  %s: %s %s\n", st.Service, st.CurrentTag, renderMuted("(pinned, run safe-update for latest)"))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
