package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var envCmd = &cobra.Command{
	Use:   "generate-env",
	Short: "Generate the environment override file from the manifest",
	Long: `Generate-env renders the current manifest into the flat override file the
orchestration layer consumes, one image reference per service. The file is
derived state: regenerating it is always safe and deterministic. When no
manifest exists, nothing is emitted and the orchestration layer falls back
to its defaults.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newReadOnlyManager()
		if err != nil {
			return err
		}
		changed, err := m.GenerateEnv()
		if err != nil {
			return err
		}
		switch {
		case changed:
			fmt.Fprintln(cmd.OutOrStdout(), renderSuccess("Generated "+m.EnvPath()))
		default:
			fmt.Fprintln(cmd.OutOrStdout(), renderMuted(m.EnvPath()+" is up to date"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(envCmd)
}
