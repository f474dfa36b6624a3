package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate-labels",
	Short: "Audit open issues for stale or inconsistent workflow labels",
	Long: "Walks every open issue and reports errors (multiple status labels) and\n" +
		"warnings (bot-busy labels held past their stale timeout).\n" +
		"Exit codes: 0 clean, 1 errors, 2 warnings only.",
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().Bool("dry-run", false, "report without applying labels or fetching events")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := buildEnvironment(ctx, cmd)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	v := validate.New(env.Tracker, env.Lookups, env.createdLabelID())
	v.DryRun = dryRun

	report, err := v.Run(ctx)
	if err != nil {
		return err
	}

	for _, f := range report.Findings {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\tissue #%d\t%s\n", f.Severity, f.Issue, f.Reason)
	}
	if code := report.ExitCode(); code != 0 {
		os.Exit(code)
	}
	return nil
}
