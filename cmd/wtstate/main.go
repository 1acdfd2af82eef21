// Command wtstate manages worktree-scoped workflow state.
package main

import (
	"os"

	"github.com/Iron-Ham/wtstate/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
