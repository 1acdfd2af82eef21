package cmd

import (
	"fmt"

	"github.com/Iron-Ham/wtstate/internal/render"
	"github.com/spf13/cobra"
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Show the current worktree context",
	Long: `Display the worktree the current directory belongs to: its root, stable
id, branch, whether it is a linked worktree and the flow token events are
recorded under. Nothing is written.`,
	Args: cobra.NoArgs,
	RunE: runContext,
}

var stateDirCmd = &cobra.Command{
	Use:   "state-dir",
	Short: "Print the state directory, creating it if needed",
	Long: `Print the state directory of the current worktree. The directory is
created on first use together with its .gitignore and .worktree-id marker.

With --file, print the path of a file inside the state directory instead.`,
	Args: cobra.NoArgs,
	RunE: runStateDir,
}

var stateDirFile string

func init() {
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(stateDirCmd)
	stateDirCmd.Flags().StringVar(&stateDirFile, "file", "", "print the path of this file inside the state directory")
}

func runContext(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	wt, err := a.resolver.Resolve(cmd.Context())
	if err != nil {
		return err
	}
	view := &render.ContextView{
		Context:   wt,
		FlowToken: a.flow.ForContext(wt),
		StateDir:  a.dirs.PathFor(wt),
	}
	return a.printer.Print(view, func(s *render.Styles) string {
		return render.Context(s, view)
	})
}

func runStateDir(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	var path string
	if stateDirFile != "" {
		path, err = a.dirs.Path(cmd.Context(), stateDirFile)
	} else {
		path, err = a.dirs.Dir(cmd.Context())
	}
	if err != nil {
		return err
	}

	if a.printer.Format() == render.FormatText {
		_, err = fmt.Fprintln(a.printer.Writer(), path)
		return err
	}
	return a.printer.Print(map[string]string{"path": path}, nil)
}
