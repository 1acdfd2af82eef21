// Package testutil provides testing utilities for wtstate tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// SetupTestRepo creates a git repository at <tempdir>/repo with one commit
// on branch main. The returned path has symlinks resolved so it compares
// equal to what `git rev-parse --show-toplevel` reports. Sibling worktrees
// created with AddWorktree live next to it under the same temp directory.
func SetupTestRepo(t *testing.T) string {
	t.Helper()

	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("failed to resolve temp dir: %v", err)
	}
	dir := filepath.Join(base, "repo")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatalf("failed to create repo dir: %v", err)
	}

	if err := runGit(dir, "init"); err != nil {
		t.Fatalf("failed to init git repo: %v", err)
	}
	if err := runGit(dir, "config", "user.email", "test@wtstate.dev"); err != nil {
		t.Fatalf("failed to configure git email: %v", err)
	}
	if err := runGit(dir, "config", "user.name", "wtstate Test"); err != nil {
		t.Fatalf("failed to configure git name: %v", err)
	}

	// git worktree requires at least one commit
	readme := filepath.Join(dir, "README.md")
	if err := os.WriteFile(readme, []byte("# Test Repository\n"), 0644); err != nil {
		t.Fatalf("failed to create README: %v", err)
	}
	if err := runGit(dir, "add", "."); err != nil {
		t.Fatalf("failed to stage files: %v", err)
	}
	if err := runGit(dir, "commit", "-m", "Initial commit"); err != nil {
		t.Fatalf("failed to create initial commit: %v", err)
	}
	if err := runGit(dir, "branch", "-M", "main"); err != nil {
		t.Fatalf("failed to rename branch to main: %v", err)
	}

	return dir
}

// AddWorktree creates a linked worktree named name next to repoDir on a new
// branch and returns its path.
func AddWorktree(t *testing.T, repoDir, name, branch string) string {
	t.Helper()

	path := filepath.Join(filepath.Dir(repoDir), name)
	if err := runGit(repoDir, "worktree", "add", "-b", branch, path); err != nil {
		t.Fatalf("failed to add worktree %s: %v", name, err)
	}
	return path
}

// PruneWorktrees drops registrations of worktrees whose directories are gone.
func PruneWorktrees(t *testing.T, repoDir string) {
	t.Helper()

	if err := runGit(repoDir, "worktree", "prune"); err != nil {
		t.Fatalf("failed to prune worktrees: %v", err)
	}
}

// DetachHead checks out HEAD as a detached commit.
func DetachHead(t *testing.T, repoDir string) {
	t.Helper()

	if err := runGit(repoDir, "checkout", "--detach"); err != nil {
		t.Fatalf("failed to detach HEAD: %v", err)
	}
}

// ShortHead returns the abbreviated HEAD commit.
func ShortHead(t *testing.T, repoDir string) string {
	t.Helper()

	cmd := exec.Command("git", "rev-parse", "--short", "HEAD")
	cmd.Dir = repoDir
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("failed to read HEAD: %v", err)
	}
	return strings.TrimSpace(string(output))
}

// Chdir changes the working directory for the duration of the test.
func Chdir(t *testing.T, dir string) {
	t.Helper()

	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir to %s: %v", dir, err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

// SkipIfNoGit skips the test if git is not installed.
func SkipIfNoGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH, skipping test")
	}
}

// runGit runs a git command in the specified directory.
func runGit(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=wtstate Test",
		"GIT_AUTHOR_EMAIL=test@wtstate.dev",
		"GIT_COMMITTER_NAME=wtstate Test",
		"GIT_COMMITTER_EMAIL=test@wtstate.dev",
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &gitError{args: args, output: output, err: err}
	}
	return nil
}

type gitError struct {
	args   []string
	output []byte
	err    error
}

func (e *gitError) Error() string {
	return "git " + strings.Join(e.args, " ") + ": " + e.err.Error() + "\n" + string(e.output)
}

func (e *gitError) Unwrap() error {
	return e.err
}
