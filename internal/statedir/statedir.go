// Package statedir owns the per-worktree state directory.
//
// Every worktree gets one gitignored directory at a fixed name under its
// root. The directory is created on first access and never removed except by
// an explicit orphan cleanup pass. Callers obtain file paths inside it only
// through Manager.Path or State.Path so the layout lives in one place.
package statedir

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/wtstate/internal/errors"
	"github.com/Iron-Ham/wtstate/internal/logging"
	"github.com/Iron-Ham/wtstate/internal/worktree"
)

// DefaultDirName is the state directory created under each worktree root.
const DefaultDirName = ".claude-state"

// Layout of the state directory.
const (
	GitignoreFile = ".gitignore"
	IDMarkerFile  = ".worktree-id"
	ProgressFile  = "workflow.json"
	LockFile      = "workflow.lock"
	LogFile       = logging.LogFileName
)

// GitignoreContent excludes every file in the state directory from version control.
const GitignoreContent = "# Ignore all files in state directory\n*\n"

// State is a bootstrapped state directory together with the worktree it belongs to.
type State struct {
	Worktree *worktree.Context
	Dir      string
}

// Path returns the path of name inside the state directory.
func (s *State) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Manager resolves and bootstraps state directories.
type Manager struct {
	resolver *worktree.Resolver
	dirName  string
	logger   *logging.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithDirName overrides the state directory name.
func WithDirName(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.dirName = name
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Manager.
func New(resolver *worktree.Resolver, opts ...Option) *Manager {
	m := &Manager{
		resolver: resolver,
		dirName:  DefaultDirName,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("statedir")
	return m
}

// Resolver returns the worktree resolver the manager uses.
func (m *Manager) Resolver() *worktree.Resolver {
	return m.resolver
}

// PathFor returns the state directory of wt without touching the disk.
func (m *Manager) PathFor(wt *worktree.Context) string {
	return m.DirIn(wt.Root)
}

// DirIn returns the state directory path under root without touching the
// disk.
func (m *Manager) DirIn(root string) string {
	return filepath.Join(root, m.dirName)
}

// Resolve detects the current worktree and bootstraps its state directory.
func (m *Manager) Resolve(ctx context.Context) (*State, error) {
	wt, err := m.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	dir := m.PathFor(wt)
	if err := m.bootstrap(dir, wt.ID); err != nil {
		return nil, err
	}
	return &State{Worktree: wt, Dir: dir}, nil
}

// Dir returns the state directory of the current worktree, creating it and
// its standard files when needed. Repeated calls return the same path and
// write nothing unless the identity marker is stale.
func (m *Manager) Dir(ctx context.Context) (string, error) {
	st, err := m.Resolve(ctx)
	if err != nil {
		return "", err
	}
	return st.Dir, nil
}

// Path returns the path of name inside the current state directory.
func (m *Manager) Path(ctx context.Context, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	st, err := m.Resolve(ctx)
	if err != nil {
		return "", err
	}
	return st.Path(name), nil
}

// Bootstrap creates dir with its ignore file outside of any worktree. No
// identity marker is written. Used when recording events from a directory
// that is not under version control.
func (m *Manager) Bootstrap(parent string) (string, error) {
	dir := m.DirIn(parent)
	if err := m.bootstrap(dir, ""); err != nil {
		return "", err
	}
	return dir, nil
}

func (m *Manager) bootstrap(dir, id string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewStateError("failed to create state directory", err).WithPath(dir)
	}

	ignorePath := filepath.Join(dir, GitignoreFile)
	if _, err := os.Stat(ignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(ignorePath, []byte(GitignoreContent), 0644); err != nil {
			return errors.NewStateError("failed to write ignore file", err).WithPath(ignorePath)
		}
		m.logger.Debug("state directory initialized", "dir", dir)
	} else if err != nil {
		return errors.NewStateError("failed to stat ignore file", err).WithPath(ignorePath)
	}

	if id == "" {
		return nil
	}

	markerPath := filepath.Join(dir, IDMarkerFile)
	recorded, err := os.ReadFile(markerPath)
	if err != nil && !os.IsNotExist(err) {
		return errors.NewStateError("failed to read identity marker", err).WithPath(markerPath)
	}
	if err == nil && strings.TrimSpace(string(recorded)) == id {
		return nil
	}
	if err := os.WriteFile(markerPath, []byte(id), 0644); err != nil {
		return errors.NewStateError("failed to write identity marker", err).WithPath(markerPath)
	}
	if len(recorded) > 0 {
		m.logger.Info("identity marker refreshed",
			"dir", dir,
			"old_id", strings.TrimSpace(string(recorded)),
			"new_id", id,
		)
	}
	return nil
}

// validateName rejects names that would escape the state directory.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return errors.NewValidationError("state file name must be a plain file name").
			WithField("name").
			WithValue(name)
	}
	return nil
}

// ReadMarker returns the worktree id recorded in a state directory, or "".
func ReadMarker(stateDir string) string {
	data, err := os.ReadFile(filepath.Join(stateDir, IDMarkerFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
