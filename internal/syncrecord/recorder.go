// Package syncrecord appends synchronization events to a local SQLite store.
//
// Events record workflow transitions, quality gates and file updates made by
// an agent. Rows are inserted once and never updated. The store lives in a
// state directory: the current worktree's if it already has one, otherwise
// the main repository's shared store, otherwise a new one in the current
// worktree.
package syncrecord

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Iron-Ham/wtstate/internal/errors"
	"github.com/Iron-Ham/wtstate/internal/logging"
	"github.com/Iron-Ham/wtstate/internal/statedir"
	"github.com/Iron-Ham/wtstate/internal/worktree"
)

// Sync types.
const (
	TypeWorkflowTransition = "workflow_transition"
	TypeQualityGate        = "quality_gate"
	TypeFileUpdate         = "file_update"
)

// ValidSyncTypes is the fixed set of accepted sync types.
var ValidSyncTypes = []string{TypeWorkflowTransition, TypeQualityGate, TypeFileUpdate}

// RecommendedPatterns are the well-known patterns. Others are accepted with a
// warning.
var RecommendedPatterns = []string{
	"phase_1_specify",
	"phase_2_plan",
	"phase_3_tasks",
	"phase_4_implement",
	"phase_5_integrate",
	"phase_6_release",
	"phase_7_backmerge",
	"quality_gate_passed",
	"quality_gate_failed",
}

// Defaults.
const (
	DefaultAgentID = "claude-code"
	DefaultDBName  = "agentdb.sqlite"
	StatusComplete = "completed"
)

const unavailableHint = "check that the state directory is writable and not on a read-only or network filesystem, " +
	"or disable recording with WTSTATE_RECORDER_ENABLED=false"

// Event is a synchronization event to record.
type Event struct {
	SyncType string
	Pattern  string
	Source   string
	Target   string
	// Worktree is the path of the worktree the event belongs to. Empty means
	// the worktree the process runs in.
	Worktree string
	Metadata map[string]any
}

// Entry is a stored synchronization event.
type Entry struct {
	SyncID         string         `json:"sync_id" yaml:"sync_id"`
	AgentID        string         `json:"agent_id" yaml:"agent_id"`
	WorktreePath   string         `json:"worktree_path,omitempty" yaml:"worktree_path,omitempty"`
	WorktreeID     string         `json:"worktree_id,omitempty" yaml:"worktree_id,omitempty"`
	FlowToken      string         `json:"flow_token,omitempty" yaml:"flow_token,omitempty"`
	SyncType       string         `json:"sync_type" yaml:"sync_type"`
	SourceLocation string         `json:"source_location" yaml:"source_location"`
	TargetLocation string         `json:"target_location" yaml:"target_location"`
	Pattern        string         `json:"pattern" yaml:"pattern"`
	Status         string         `json:"status" yaml:"status"`
	CreatedAt      time.Time      `json:"created_at" yaml:"created_at"`
	CompletedAt    time.Time      `json:"completed_at" yaml:"completed_at"`
	CreatedBy      string         `json:"created_by" yaml:"created_by"`
	Metadata       map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	SyncType   string
	Pattern    string
	WorktreeID string
	FlowToken  string
	Limit      int
}

// Recorder writes events to the sync store of the current worktree.
type Recorder struct {
	dirs    *statedir.Manager
	flow    *worktree.FlowTokens
	logger  *logging.Logger
	agentID string
	dbName  string
	workDir string
	now     func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger attaches a logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAgentID sets the agent_id and created_by columns.
func WithAgentID(id string) Option {
	return func(r *Recorder) {
		if id != "" {
			r.agentID = id
		}
	}
}

// WithDBName sets the database file name inside the state directory.
func WithDBName(name string) Option {
	return func(r *Recorder) {
		if name != "" {
			r.dbName = name
		}
	}
}

// WithWorkingDir sets the directory used when not inside a worktree.
// Defaults to the process working directory.
func WithWorkingDir(dir string) Option {
	return func(r *Recorder) {
		r.workDir = dir
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a Recorder.
func NewRecorder(dirs *statedir.Manager, flow *worktree.FlowTokens, opts ...Option) *Recorder {
	r := &Recorder{
		dirs:    dirs,
		flow:    flow,
		logger:  logging.NopLogger(),
		agentID: DefaultAgentID,
		dbName:  DefaultDBName,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("syncrecord")
	return r
}

// location is where an event is recorded from and stored to.
type location struct {
	worktree  *worktree.Context // nil outside a worktree
	storePath string
}

// Record validates e, appends it to the store and returns its sync id. An
// invalid sync type fails with errors.ErrInvalidSyncType before any file is
// touched.
func (r *Recorder) Record(ctx context.Context, e Event) (string, error) {
	if !slices.Contains(ValidSyncTypes, e.SyncType) {
		return "", errors.NewValidationError("sync type must be one of workflow_transition, quality_gate, file_update").
			WithField("sync_type").
			WithValue(e.SyncType).
			WithCause(errors.ErrInvalidSyncType)
	}
	if e.Pattern == "" {
		return "", errors.NewValidationError("pattern must not be empty").WithField("pattern")
	}
	if len(e.Metadata) > 0 {
		if _, err := json.Marshal(e.Metadata); err != nil {
			return "", errors.NewValidationError("metadata is not JSON-encodable").
				WithField("metadata").
				WithCause(err)
		}
	}
	if e.Worktree != "" {
		abs, err := filepath.Abs(e.Worktree)
		if err != nil {
			return "", errors.NewValidationError("worktree path cannot be made absolute").
				WithField("worktree").
				WithValue(e.Worktree).
				WithCause(err)
		}
		e.Worktree = abs
	}
	if !slices.Contains(RecommendedPatterns, e.Pattern) {
		r.logger.Warn("pattern not in the recommended list", "pattern", e.Pattern)
	}

	loc, err := r.locate(ctx, true)
	if err != nil {
		return "", err
	}

	now := r.now().UTC()
	entry := &Entry{
		SyncID:         uuid.NewString(),
		AgentID:        r.agentID,
		SyncType:       e.SyncType,
		SourceLocation: e.Source,
		TargetLocation: e.Target,
		Pattern:        e.Pattern,
		Status:         StatusComplete,
		CreatedAt:      now,
		CompletedAt:    now,
		CreatedBy:      r.agentID,
		Metadata:       e.Metadata,
	}
	if wt := eventWorktree(e.Worktree, loc.worktree); wt != nil {
		entry.WorktreePath = wt.Root
		entry.WorktreeID = wt.ID
		entry.FlowToken = r.flow.ForContext(wt)
	} else {
		entry.FlowToken = worktree.AdHocToken()
	}

	s, err := r.open(ctx, loc.storePath)
	if err != nil {
		return "", err
	}
	defer s.Close()

	if err := s.insert(ctx, entry); err != nil {
		return "", errors.NewStoreError("failed to record sync event", err).
			WithStorePath(loc.storePath).
			WithRetryable(isBusy(err))
	}

	logger := r.logger
	if entry.WorktreeID != "" {
		logger = logger.WithWorktree(entry.WorktreeID)
	}
	logger.Info("sync recorded",
		"sync_id", entry.SyncID,
		"sync_type", entry.SyncType,
		"pattern", entry.Pattern,
		"flow_token", entry.FlowToken,
	)
	return entry.SyncID, nil
}

// eventWorktree picks the worktree an event is attributed to. An explicit
// path wins over the detected one; its branch is only known when it is the
// detected worktree.
func eventWorktree(path string, detected *worktree.Context) *worktree.Context {
	if path == "" {
		return detected
	}
	if detected != nil && filepath.Clean(detected.Root) == path {
		return detected
	}
	return &worktree.Context{Root: path, ID: worktree.ComputeID(path)}
}

// List returns stored events matching f, newest first. No store is created:
// when none exists the result is empty.
func (r *Recorder) List(ctx context.Context, f Filter) ([]Entry, error) {
	loc, err := r.locate(ctx, false)
	if err != nil {
		return nil, err
	}
	if loc.storePath == "" {
		return nil, nil
	}

	s, err := r.open(ctx, loc.storePath)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	entries, err := s.list(ctx, f)
	if err != nil {
		return nil, errors.NewStoreError("failed to query sync events", err).WithStorePath(loc.storePath)
	}
	return entries, nil
}

// StorePath returns the store an event would be recorded to, creating the
// state directory if needed.
func (r *Recorder) StorePath(ctx context.Context) (string, error) {
	loc, err := r.locate(ctx, true)
	if err != nil {
		return "", err
	}
	return loc.storePath, nil
}

// locate resolves the current worktree and the store to use. With create
// false an empty storePath means no store exists yet.
func (r *Recorder) locate(ctx context.Context, create bool) (*location, error) {
	st, err := r.dirs.Resolve(ctx)
	if errors.Is(err, errors.ErrNotGitRepository) {
		return r.locateOutsideWorktree(create)
	}
	if err != nil {
		return nil, err
	}

	loc := &location{worktree: st.Worktree}

	local := st.Path(r.dbName)
	if exists(local) {
		loc.storePath = canonical(local)
		return loc, nil
	}
	if main := st.Worktree.MainRepoPath(); main != "" {
		shared := filepath.Join(r.dirs.DirIn(main), r.dbName)
		if exists(shared) {
			loc.storePath = canonical(shared)
			return loc, nil
		}
	}
	if create {
		loc.storePath = canonical(local)
	}
	return loc, nil
}

func (r *Recorder) locateOutsideWorktree(create bool) (*location, error) {
	dir := r.workDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.NewStateError("failed to determine working directory", err)
		}
		dir = wd
	}

	loc := &location{}
	path := filepath.Join(r.dirs.DirIn(dir), r.dbName)
	if exists(path) {
		loc.storePath = canonical(path)
		return loc, nil
	}
	if !create {
		return loc, nil
	}
	stateDir, err := r.dirs.Bootstrap(dir)
	if err != nil {
		return nil, err
	}
	loc.storePath = canonical(filepath.Join(stateDir, r.dbName))
	return loc, nil
}

// open opens the store and applies migrations. Failure to open or reach the
// database maps to errors.ErrStoreUnavailable.
func (r *Recorder) open(ctx context.Context, path string) (*store, error) {
	s, err := openStore(ctx, path)
	if err != nil {
		r.logger.Warn("sync store unavailable", "path", path, "error", err)
		return nil, errors.NewStoreError("sync store could not be opened", errors.Join(errors.ErrStoreUnavailable, err)).
			WithStorePath(path).
			WithRemediation(unavailableHint)
	}
	if err := s.initPragmas(ctx); err != nil {
		_ = s.Close()
		return nil, errors.NewStoreError("failed to configure sync store", err).WithStorePath(path)
	}
	if err := s.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, errors.NewStoreError("failed to migrate sync store", err).WithStorePath(path)
	}
	return s, nil
}

// isBusy reports whether err is SQLite giving up on a database another
// process holds locked.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// canonical resolves symlinks in the directory part of path so two worktrees
// reaching the same store through different links agree on its path.
func canonical(path string) string {
	dir, file := filepath.Split(path)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(resolved, file)
	}
	return filepath.Clean(path)
}
