package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the stevedore version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		v := buildInfo.Version
		if v == "" {
			v = "dev"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stevedore %s", v)
		if buildInfo.Commit != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " (%s)", buildInfo.Commit)
		}
		if buildInfo.Date != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " built %s", buildInfo.Date)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
