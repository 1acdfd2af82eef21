// Package worktree resolves the identity of the git working tree a process
// runs in.
//
// A Context is recomputed on every call to Resolver.Resolve; nothing is
// cached and nothing is written. The worktree id is a pure function of the
// absolute root path, so every process in the same worktree derives the same
// id and different worktrees derive different ids.
package worktree

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/wtstate/internal/errors"
	"github.com/Iron-Ham/wtstate/internal/vcs"
)

// IDLength is the number of hex characters in a worktree id.
const IDLength = 12

// UnknownBranch is reported when neither a branch nor a commit can be read.
const UnknownBranch = "unknown"

// Context describes the working tree the process is running in.
type Context struct {
	Root      string `json:"root" yaml:"root"`
	CommonDir string `json:"common_dir" yaml:"common_dir"`
	IsLinked  bool   `json:"is_linked" yaml:"is_linked"`
	ID        string `json:"id" yaml:"id"`
	Branch    string `json:"branch" yaml:"branch"`
}

// MainRepoPath returns the root of the primary working tree when running in
// a linked worktree, and "" otherwise.
func (c *Context) MainRepoPath() string {
	if !c.IsLinked {
		return ""
	}
	return filepath.Dir(c.CommonDir)
}

// PrimaryRoot returns the root of the primary working tree whether or not
// this context is linked.
func (c *Context) PrimaryRoot() string {
	if c.IsLinked {
		return filepath.Dir(c.CommonDir)
	}
	return c.Root
}

// ComputeID derives the stable worktree id for path: the first 12 hex
// characters of the SHA-256 of its UTF-8 bytes. The path is hashed as given.
func ComputeID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:IDLength]
}

// Resolver computes a Context through a vcs.Gateway.
type Resolver struct {
	git vcs.Gateway
}

// NewResolver creates a Resolver backed by git.
func NewResolver(git vcs.Gateway) *Resolver {
	return &Resolver{git: git}
}

// Gateway exposes the underlying gateway for components that need more than
// the resolved context, such as the orphan scan.
func (r *Resolver) Gateway() vcs.Gateway {
	return r.git
}

// Resolve detects the current worktree context. It fails with an error
// matching errors.ErrNotGitRepository when not inside a working tree.
func (r *Resolver) Resolve(ctx context.Context) (*Context, error) {
	root, err := r.git.TopLevel(ctx)
	if err != nil {
		return nil, err
	}

	common, err := r.git.CommonDir(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read git common dir")
	}
	if !filepath.IsAbs(common) {
		common = filepath.Join(root, common)
	}
	if resolved, err := filepath.EvalSymlinks(common); err == nil {
		common = resolved
	}
	common = filepath.Clean(common)

	return &Context{
		Root:      root,
		CommonDir: common,
		IsLinked:  isLinkedWorktree(root),
		ID:        ComputeID(root),
		Branch:    r.branch(ctx),
	}, nil
}

// isLinkedWorktree reports whether <root>/.git is a regular file, which is how
// git marks a linked worktree. The primary working tree has a directory.
func isLinkedWorktree(root string) bool {
	info, err := os.Stat(filepath.Join(root, ".git"))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// branch returns the checked-out branch, falling back to the short HEAD on a
// detached checkout and to UnknownBranch when git cannot answer either.
func (r *Resolver) branch(ctx context.Context) string {
	name, err := r.git.CurrentBranch(ctx)
	if err != nil {
		return UnknownBranch
	}
	if name != "" {
		return name
	}
	head, err := r.git.ShortHead(ctx)
	if err != nil || head == "" {
		return UnknownBranch
	}
	return head
}
