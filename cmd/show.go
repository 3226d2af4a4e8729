package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current deployed versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newReadOnlyManager()
		if err != nil {
			return err
		}
		mf, err := m.Current()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, renderTitle("Current deployed versions"))

		if mf == nil || len(mf.Services) == 0 {
			fmt.Fprintln(out, renderWarning("No versions tracked yet. Run 'stevedore pull-latest' to initialize."))
			return nil
		}

		names := mf.ServiceNames()
		sort.Strings(names)
		for _, name := range names {
			svc := mf.Services[name]
			line := fmt.Sprintf("  %-20s %-15s %s", name, svc.CurrentTag, renderMuted(svc.UpdatedAt.Format("2006-01-02 15:04")))
			if svc.CurrentDigest != "" {
				line += renderMuted("  " + shortDigest(svc.CurrentDigest))
			}
			fmt.Fprintln(out, line)
			if svc.Notes != "" {
				fmt.Fprintln(out, renderMuted("    "+svc.Notes))
			}
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [service]",
	Short: "Show version history",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newReadOnlyManager()
		if err != nil {
			return err
		}
		mf, err := m.Current()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, renderTitle("Version history"))

		if mf == nil || len(mf.History) == 0 {
			fmt.Fprintln(out, renderWarning("No version history available."))
			return nil
		}

		var names []string
		if len(args) == 1 {
			if _, ok := mf.History[args[0]]; !ok {
				fmt.Fprintln(out, renderWarning("No history for service: "+args[0]))
				return nil
			}
			names = []string{args[0]}
		} else {
			for name := range mf.History {
				names = append(names, name)
			}
			sort.Strings(names)
		}

		for _, name := range names {
			fmt.Fprintln(out, styleBold.Render(name+":"))
			for _, e := range mf.History[name] {
				line := fmt.Sprintf("  %-20s %-20s [%s]", e.Tag, e.DeployedAt.Format("2006-01-02 15:04:05"), e.Provenance)
				if e.Digest != "" {
					line += renderMuted("  " + shortDigest(e.Digest))
				}
				fmt.Fprintln(out, line)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(historyCmd)
}
