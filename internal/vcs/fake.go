package vcs

import (
	"context"
	"sync"

	"github.com/Iron-Ham/wtstate/internal/errors"
)

// Fake is an in-memory Gateway for tests. The zero value behaves like a
// directory outside any repository.
type Fake struct {
	mu sync.Mutex

	Root      string
	Common    string
	Branch    string
	Head      string
	Worktrees []WorktreeEntry

	// Per-method failures. A nil error means the call succeeds.
	TopLevelErr  error
	CommonDirErr error
	BranchErr    error
	HeadErr      error
	ListErr      error

	calls map[string]int
}

func (f *Fake) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[method]++
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TopLevel returns Root, or ErrNotGitRepository when Root is empty.
func (f *Fake) TopLevel(ctx context.Context) (string, error) {
	f.record("TopLevel")
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.TopLevelErr != nil {
		return "", f.TopLevelErr
	}
	if f.Root == "" {
		return "", errors.NewGitError("not inside a git working tree", errors.ErrNotGitRepository)
	}
	return f.Root, nil
}

// CommonDir returns Common, defaulting to ".git".
func (f *Fake) CommonDir(ctx context.Context) (string, error) {
	f.record("CommonDir")
	if f.CommonDirErr != nil {
		return "", f.CommonDirErr
	}
	if f.Common == "" {
		return ".git", nil
	}
	return f.Common, nil
}

// CurrentBranch returns Branch.
func (f *Fake) CurrentBranch(ctx context.Context) (string, error) {
	f.record("CurrentBranch")
	if f.BranchErr != nil {
		return "", f.BranchErr
	}
	return f.Branch, nil
}

// ShortHead returns Head.
func (f *Fake) ShortHead(ctx context.Context) (string, error) {
	f.record("ShortHead")
	if f.HeadErr != nil {
		return "", f.HeadErr
	}
	return f.Head, nil
}

// ListWorktrees returns a copy of Worktrees.
func (f *Fake) ListWorktrees(ctx context.Context) ([]WorktreeEntry, error) {
	f.record("ListWorktrees")
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]WorktreeEntry, len(f.Worktrees))
	copy(out, f.Worktrees)
	return out, nil
}

var _ Gateway = (*Fake)(nil)
