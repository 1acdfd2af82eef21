package statedir

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/wtstate/internal/errors"
)

// Orphan is a state directory whose owning worktree is no longer registered.
type Orphan struct {
	WorktreePath string `json:"worktree_path" yaml:"worktree_path"`
	StateDir     string `json:"state_dir" yaml:"state_dir"`
	RecordedID   string `json:"recorded_id,omitempty" yaml:"recorded_id,omitempty"`
}

// FindOrphans scans the siblings of the primary repository root for
// directories holding a state directory and returns those that are neither
// the primary checkout nor a registered worktree. Nothing is removed.
//
// A sibling only counts when it no longer has any git checkout, or when its
// .git file still points into this repository's worktree metadata. Siblings
// with a .git directory are checkouts of their own and are never reported.
//
// If git cannot list worktrees the scan is abandoned and an empty result is
// returned, so a transient git failure never marks live state as orphaned.
func (m *Manager) FindOrphans(ctx context.Context) ([]Orphan, error) {
	wt, err := m.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	primary := canonical(wt.PrimaryRoot())
	worktreesDir := canonical(filepath.Join(wt.CommonDir, "worktrees"))

	entries, err := m.resolver.Gateway().ListWorktrees(ctx)
	if err != nil {
		m.logger.Warn("worktree listing failed, skipping orphan scan", "error", err)
		return nil, nil
	}
	registered := make(map[string]bool, len(entries))
	for _, e := range entries {
		registered[canonical(e.Path)] = true
	}

	parent := filepath.Dir(primary)
	siblings, err := os.ReadDir(parent)
	if err != nil {
		return nil, errors.NewStateError("failed to scan for orphaned state", err).WithPath(parent)
	}

	var orphans []Orphan
	for _, entry := range siblings {
		candidate := filepath.Join(parent, entry.Name())
		info, err := os.Stat(candidate)
		if err != nil || !info.IsDir() {
			continue
		}
		path := canonical(candidate)
		if path == primary || registered[path] {
			continue
		}
		stateDir := m.DirIn(candidate)
		if info, err := os.Stat(stateDir); err != nil || !info.IsDir() {
			continue
		}
		if !ownedByRepository(candidate, worktreesDir) {
			m.logger.Debug("skipping state of another checkout", "path", candidate)
			continue
		}
		orphans = append(orphans, Orphan{
			WorktreePath: candidate,
			StateDir:     stateDir,
			RecordedID:   ReadMarker(stateDir),
		})
	}

	m.logger.Debug("orphan scan complete", "parent", parent, "orphans", len(orphans))
	return orphans, nil
}

// RemoveOrphans deletes the state directories of orphans and returns the
// ones removed. Only the state directory itself is deleted, never the
// directory that contains it. All removals are attempted; failures are joined.
func (m *Manager) RemoveOrphans(ctx context.Context, orphans []Orphan) ([]Orphan, error) {
	var removed []Orphan
	var errs []error
	for _, o := range orphans {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if filepath.Base(o.StateDir) != m.dirName {
			errs = append(errs, errors.NewValidationError("refusing to remove a directory that is not a state directory").
				WithField("state_dir").
				WithValue(o.StateDir))
			continue
		}
		if err := os.RemoveAll(o.StateDir); err != nil {
			errs = append(errs, errors.NewStateError("failed to remove orphaned state", err).WithPath(o.StateDir))
			continue
		}
		m.logger.Info("orphaned state removed", "state_dir", o.StateDir, "recorded_id", o.RecordedID)
		removed = append(removed, o)
	}
	return removed, errors.Join(errs...)
}

// ownedByRepository reports whether dir was a worktree of the repository
// whose per-worktree metadata lives in worktreesDir. A directory without
// .git is a leftover of a removed worktree. A .git directory is a primary
// checkout. A .git file must name a gitdir inside worktreesDir.
func ownedByRepository(dir, worktreesDir string) bool {
	marker := filepath.Join(dir, ".git")
	info, err := os.Lstat(marker)
	if os.IsNotExist(err) {
		return true
	}
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	data, err := os.ReadFile(marker)
	if err != nil {
		return false
	}
	gitdir, ok := strings.CutPrefix(strings.TrimSpace(string(data)), "gitdir:")
	if !ok {
		return false
	}
	gitdir = strings.TrimSpace(gitdir)
	if gitdir == "" {
		return false
	}
	if !filepath.IsAbs(gitdir) {
		gitdir = filepath.Join(dir, gitdir)
	}
	rel, err := filepath.Rel(worktreesDir, canonical(gitdir))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// canonical resolves symlinks so paths reported by git compare equal to
// paths found on disk. For a path that no longer exists the longest existing
// ancestor is resolved and the rest appended.
func canonical(path string) string {
	path = filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path
	}
	return filepath.Join(canonical(parent), filepath.Base(path))
}
