package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/compactdiff"
	"github.com/papapumpkin/pulsar/internal/gitx"
)

var gitToolCmd = &cobra.Command{
	Use:   "git-tool",
	Short: "Git helpers used by the workflows",
}

var compactDiffCmd = &cobra.Command{
	Use:   "compact-diff",
	Short: "Print the branch diff with moved blocks suppressed",
	Long: "Diffs the current branch against its base and replaces large moved-code\n" +
		"blocks with short annotated summaries.\n" +
		"Exit codes: 1 base branch unresolvable, 2 not a git repository.",
	RunE: runCompactDiff,
}

func init() {
	compactDiffCmd.Flags().String("base-branch", "", "diff base (default: auto-detect)")
	compactDiffCmd.Flags().StringSlice("exclude", nil, "pathspecs to exclude from the diff")
	gitToolCmd.AddCommand(compactDiffCmd)
	rootCmd.AddCommand(gitToolCmd)
}

func runCompactDiff(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	dir := projectDir(cmd)
	repo := gitx.New(dir)
	if !repo.IsRepository(ctx) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s is not a git repository\n", dir)
		os.Exit(2)
	}

	base, _ := cmd.Flags().GetString("base-branch")
	excludes, _ := cmd.Flags().GetStringSlice("exclude")

	if base == "" {
		// Branch-local detection only: the body and PR lookups need a
		// tracker issue, which this standalone tool does not have.
		current, _ := repo.CurrentBranch(ctx)
		if current != "" {
			base = repo.ParentBranch(ctx, current)
		}
		if base == "" {
			base = repo.DefaultBranch(ctx)
		}
		if base == "" {
			fmt.Fprintln(cmd.ErrOrStderr(), "base branch unresolvable; pass --base-branch")
			os.Exit(1)
		}
	}

	plain, err := repo.BranchDiff(ctx, base, excludes, false)
	if err != nil {
		return err
	}
	ansi, err := repo.BranchDiff(ctx, base, excludes, true)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), compactdiff.NewRenderer().Compact(plain, ansi))
	return nil
}
