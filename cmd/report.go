package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stevedore-sh/stevedore/internal/version"
)

// printReport renders per-service outcomes and returns an error when any
// service failed, so the command exits non-zero on partial failure.
func printReport(cmd *cobra.Command, report *version.Report) error {
	out := cmd.OutOrStdout()

	for _, res := range report.Results {
		switch {
		case res.Err != nil && res.Reverted:
			fmt.Fprintln(out, renderError(fmt.Sprintf("%s: update failed, reverted to %s", res.Service, describe(res.NewTag, res.NewDigest))))
			fmt.Fprintln(out, renderMuted("  cause: "+res.Err.Error()))
		case res.Err != nil && res.RevertErr != nil:
			fmt.Fprintln(out, renderError(fmt.Sprintf("%s: update failed AND could not be reverted", res.Service)))
			fmt.Fprintln(out, renderMuted("  update: "+res.Err.Error()))
			fmt.Fprintln(out, renderMuted("  revert: "+res.RevertErr.Error()))
		case res.Err != nil:
			fmt.Fprintln(out, renderError(fmt.Sprintf("%s: %s (unchanged, still %s)", res.Service, res.Err, describe(res.PriorTag, res.PriorDigest))))
		case res.Changed:
			fmt.Fprintln(out, renderSuccess(fmt.Sprintf("%s: %s → %s", res.Service, describe(res.PriorTag, res.PriorDigest), describe(res.NewTag, res.NewDigest))))
		default:
			fmt.Fprintln(out, renderMuted(fmt.Sprintf("%s: %s (unchanged)", res.Service, describe(res.NewTag, res.NewDigest))))
		}
		if res.Skipped > 0 {
			fmt.Fprintln(out, renderMuted(fmt.Sprintf("  skipped %d duplicate history entries", res.Skipped)))
		}
		for _, w := range res.Warnings {
			fmt.Fprintln(out, renderWarning("  "+w))
		}
	}

	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d services failed", len(failed), len(report.Results))
	}
	return nil
}

// describe formats a version identity for display: tag plus an abbreviated
// digest when one is recorded.
func describe(tag, dgst string) string {
	if tag == "" {
		return "(untracked)"
	}
	if dgst == "" {
		return tag
	}
	return fmt.Sprintf("%s (%s)", tag, shortDigest(dgst))
}

func shortDigest(dgst string) string {
	if len(dgst) > 19 {
		return dgst[:19]
	}
	return dgst
}
