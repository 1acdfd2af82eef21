package vcs

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/Iron-Ham/wtstate/internal/errors"
)

// DefaultTimeout bounds a single git call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// -----------------------------------------------------------------------------
// Command Executor
// -----------------------------------------------------------------------------

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// Output runs a command in dir and returns its stdout. On failure the
	// returned output holds whatever stderr the command produced.
	Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// ExecCommandExecutor executes commands using os/exec.
type ExecCommandExecutor struct{}

// NewExecCommandExecutor creates a new os/exec backed executor.
func NewExecCommandExecutor() *ExecCommandExecutor {
	return &ExecCommandExecutor{}
}

// Output executes the command, separating stdout from stderr.
func (e *ExecCommandExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stderr.Bytes(), err
	}
	return stdout.Bytes(), nil
}

// -----------------------------------------------------------------------------
// CLI - implements Gateway over the git binary
// -----------------------------------------------------------------------------

// CLI implements Gateway by running git in a fixed directory.
type CLI struct {
	dir      string
	binary   string
	timeout  time.Duration
	executor CommandExecutor
}

// Option configures a CLI.
type Option func(*CLI)

// WithBinary overrides the git executable.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *CLI) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithExecutor replaces the command executor. Primarily useful for testing.
func WithExecutor(e CommandExecutor) Option {
	return func(c *CLI) {
		c.executor = e
	}
}

// NewCLI creates a Gateway running git in dir. An empty dir means the
// process working directory.
func NewCLI(dir string, opts ...Option) *CLI {
	c := &CLI{
		dir:      dir,
		binary:   "git",
		timeout:  DefaultTimeout,
		executor: NewExecCommandExecutor(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the directory git runs in.
func (c *CLI) Dir() string {
	return c.dir
}

// run executes one git subcommand under the per-call timeout and returns
// trimmed stdout.
func (c *CLI) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.executor.Output(ctx, c.dir, c.binary, args...)
	if err != nil {
		command := strings.Join(args, " ")
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.NewTimeoutError("git "+command, c.timeout).WithCause(err)
		}
		return "", errors.NewGitError("git command failed", err).
			WithCommand(command).
			WithRepository(c.dir).
			WithGitOutput(string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// TopLevel runs `git rev-parse --show-toplevel`.
func (c *CLI) TopLevel(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		var gitErr *errors.GitError
		if errors.As(err, &gitErr) {
			return "", errors.NewGitError("not inside a git working tree", errors.ErrNotGitRepository).
				WithCommand(gitErr.Command).
				WithRepository(c.dir).
				WithGitOutput(gitErr.GitOutput)
		}
		return "", err
	}
	if out == "" {
		return "", errors.NewGitError("git reported an empty toplevel", errors.ErrNotGitRepository).
			WithRepository(c.dir)
	}
	return out, nil
}

// CommonDir runs `git rev-parse --git-common-dir`.
func (c *CLI) CommonDir(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "--git-common-dir")
}

// CurrentBranch runs `git branch --show-current`.
func (c *CLI) CurrentBranch(ctx context.Context) (string, error) {
	return c.run(ctx, "branch", "--show-current")
}

// ShortHead runs `git rev-parse --short HEAD`.
func (c *CLI) ShortHead(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "--short", "HEAD")
}

// ListWorktrees runs `git worktree list --porcelain`.
func (c *CLI) ListWorktrees(ctx context.Context) ([]WorktreeEntry, error) {
	out, err := c.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseWorktreeList(out), nil
}

var _ Gateway = (*CLI)(nil)
