package cmd

import (
	"github.com/Iron-Ham/wtstate/internal/render"
	"github.com/Iron-Ham/wtstate/internal/statedir"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Find state directories left behind by removed worktrees",
	Long: `Cleanup scans the directories next to the main repository for state
directories whose worktree is no longer registered with git.

Without --remove nothing is deleted. With --remove only the state directory
itself is removed, never the directory that contains it. If git cannot list
worktrees the scan is skipped.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

var cleanupRemove bool

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupRemove, "remove", false, "delete the orphaned state directories")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()
	if cleanupRemove {
		a.enableLogging(ctx)
	}

	orphans, err := a.dirs.FindOrphans(ctx)
	if err != nil {
		return err
	}

	var removeErr error
	if cleanupRemove && len(orphans) > 0 {
		orphans, removeErr = a.dirs.RemoveOrphans(ctx, orphans)
	}
	if orphans == nil {
		orphans = []statedir.Orphan{}
	}

	if err := a.printer.Print(orphans, func(s *render.Styles) string {
		return render.Orphans(s, orphans, cleanupRemove)
	}); err != nil {
		return err
	}
	return removeErr
}
