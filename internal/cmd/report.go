package cmd

import (
	"fmt"
	"io"

	"github.com/Iron-Ham/wtstate/internal/errors"
	"github.com/spf13/cobra"
)

// Exit codes returned by Execute.
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitRefused means the command rejected its input or gave up waiting,
	// and nothing was changed.
	ExitRefused = 2
)

// reportError writes err for an operator and maps it to an exit code.
// Errors from wtstate's own packages are shown as they are; anything else
// came from argument parsing and gets a pointer to the command's help.
func reportError(w io.Writer, c *cobra.Command, err error) int {
	if err == nil {
		return ExitOK
	}
	fmt.Fprintln(w, "Error:", err)
	if errors.IsRetryable(err) {
		fmt.Fprintln(w, "The failure may be temporary; retry the command.")
	}
	if !errors.IsUserFacing(err) && c != nil {
		fmt.Fprintf(w, "Run '%s --help' for usage.\n", c.CommandPath())
	}

	if errors.GetSeverity(err) <= errors.SeverityWarning {
		return ExitRefused
	}
	return ExitFailure
}
