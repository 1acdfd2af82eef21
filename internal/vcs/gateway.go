// Package vcs is the narrow boundary between wtstate and git.
//
// Everything wtstate learns about a repository goes through the Gateway
// interface. CLI implements it by shelling out to git with a bounded
// timeout per call; Fake implements it in memory for tests.
package vcs

import "context"

// Gateway answers the handful of repository questions wtstate needs.
// All methods are read-only.
type Gateway interface {
	// TopLevel returns the absolute root of the current working tree.
	// It fails with an error matching errors.ErrNotGitRepository outside a repository.
	TopLevel(ctx context.Context) (string, error)

	// CommonDir returns the shared git directory exactly as git reports it,
	// which may be relative to the working tree root.
	CommonDir(ctx context.Context) (string, error)

	// CurrentBranch returns the checked-out branch, or "" on a detached HEAD.
	CurrentBranch(ctx context.Context) (string, error)

	// ShortHead returns the abbreviated commit hash of HEAD.
	ShortHead(ctx context.Context) (string, error)

	// ListWorktrees returns every worktree registered with the repository,
	// the primary working tree first.
	ListWorktrees(ctx context.Context) ([]WorktreeEntry, error)
}

// WorktreeEntry is one record of `git worktree list --porcelain`.
type WorktreeEntry struct {
	Path     string
	Head     string
	Branch   string // short name without refs/heads/, "" when detached
	Bare     bool
	Detached bool
	Locked   bool
	Prunable bool
}
