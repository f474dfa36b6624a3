package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var defineLabelsCmd = &cobra.Command{
	Use:   "define-labels",
	Short: "Reconcile the tracker's labels with labels.json",
	Long: "Creates every configured workflow label on the tracker and updates\n" +
		"color or description drift on labels that already exist.",
	RunE: runDefineLabels,
}

func init() {
	defineLabelsCmd.Flags().Bool("dry-run", false, "list the labels without touching the tracker")
	rootCmd.AddCommand(defineLabelsCmd)
}

func runDefineLabels(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := buildEnvironment(ctx, cmd)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	for _, l := range env.Labels.WorkflowLabels {
		if dryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t#%s\t%s\n", l.Name, l.Color, l.Description)
			continue
		}
		if err := env.Tracker.EnsureLabel(ctx, l.Name, l.Color, l.Description); err != nil {
			return fmt.Errorf("define label %q: %w", l.Name, err)
		}
		slog.Info("label ensured", "repo", env.FullName, "label", l.Name)
	}
	return nil
}
