package progress

import (
	"context"
	"encoding/json"
	"os"
	"slices"
	"time"

	"github.com/Iron-Ham/wtstate/internal/errors"
	"github.com/Iron-Ham/wtstate/internal/logging"
	"github.com/Iron-Ham/wtstate/internal/statedir"
)

// DefaultLockTimeout bounds how long Update waits for a concurrent update.
const DefaultLockTimeout = 10 * time.Second

// Update describes one read-modify-write of the ledger. Nil fields are left
// unchanged.
type Update struct {
	Step          *int
	Artifact      *string
	FeatureBranch *string
	SessionID     *string
	// Fields are merged verbatim into the top level of the document.
	Fields map[string]any
}

// Ledger reads and updates workflow.json of the current worktree.
type Ledger struct {
	dirs        *statedir.Manager
	logger      *logging.Logger
	locking     bool
	lockTimeout time.Duration
	now         func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger attaches a logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLocking enables or disables the cross-process update lock.
func WithLocking(enabled bool, timeout time.Duration) Option {
	return func(l *Ledger) {
		l.locking = enabled
		if timeout >= 0 {
			l.lockTimeout = timeout
		}
	}
}

// WithClock overrides the time source used for last_updated.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger creates a Ledger over the state directories managed by dirs.
func NewLedger(dirs *statedir.Manager, opts ...Option) *Ledger {
	l := &Ledger{
		dirs:        dirs,
		logger:      logging.NopLogger(),
		locking:     true,
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithComponent("progress")
	return l
}

// Read returns the current document, or the default document when the file
// is absent or cannot be parsed. A parse failure is logged, never returned.
func (l *Ledger) Read(ctx context.Context) (*Progress, error) {
	st, err := l.dirs.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return l.read(st)
}

func (l *Ledger) read(st *statedir.State) (*Progress, error) {
	path := st.Path(statedir.ProgressFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(st.Worktree.ID), nil
	}
	if err != nil {
		return nil, errors.NewStateError("failed to read progress", err).WithPath(path)
	}

	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		l.logger.WithWorktree(st.Worktree.ID).Warn("corrupted progress file, returning default state",
			"path", path,
			"error", err,
		)
		return Default(st.Worktree.ID), nil
	}
	if ignored := p.IgnoredFields(); len(ignored) > 0 {
		l.logger.WithWorktree(st.Worktree.ID).Warn("progress fields with unusable values fell back to defaults",
			"path", path,
			"fields", ignored,
		)
	}
	return &p, nil
}

// Update applies u under the update lock and writes the result atomically.
// Invalid input is rejected before anything is touched on disk.
func (l *Ledger) Update(ctx context.Context, u Update) (*Progress, error) {
	fields, err := validateUpdate(u)
	if err != nil {
		return nil, err
	}

	st, err := l.dirs.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	logger := l.logger.WithWorktree(st.Worktree.ID)

	release, err := l.lock(ctx, st, logger)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := l.read(st)
	if err != nil {
		return nil, err
	}

	if u.Step != nil {
		p.completeStep(*u.Step)
	}
	if u.Artifact != nil {
		p.Artifacts[p.artifactKey(u.Step)] = *u.Artifact
	}
	if u.FeatureBranch != nil {
		p.FeatureBranch = *u.FeatureBranch
	}
	if u.SessionID != nil {
		p.SessionID = *u.SessionID
	}
	for k, v := range fields {
		p.Extra[k] = v
	}
	now := l.now().UTC()
	p.LastUpdated = &now
	p.WorktreeID = st.Worktree.ID

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, errors.NewStateError("failed to encode progress", err)
	}
	path := st.Path(statedir.ProgressFile)
	if err := atomicWriteFile(path, append(data, '\n'), 0644); err != nil {
		return nil, errors.NewStateError("failed to write progress", err).WithPath(path)
	}

	logger.Info("progress updated",
		"current_step", p.CurrentStep,
		"steps_completed", p.StepsCompleted,
	)
	return p, nil
}

// Clear removes the progress file. Clearing an absent ledger is a no-op.
func (l *Ledger) Clear(ctx context.Context) error {
	st, err := l.dirs.Resolve(ctx)
	if err != nil {
		return err
	}
	logger := l.logger.WithWorktree(st.Worktree.ID)

	release, err := l.lock(ctx, st, logger)
	if err != nil {
		return err
	}
	defer release()

	path := st.Path(statedir.ProgressFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewStateError("failed to clear progress", err).WithPath(path)
	}
	logger.Info("progress cleared")
	return nil
}

// IsStepCompleted reports whether step is recorded as completed.
func (l *Ledger) IsStepCompleted(ctx context.Context, step int) (bool, error) {
	p, err := l.Read(ctx)
	if err != nil {
		return false, err
	}
	return p.IsStepCompleted(step), nil
}

// lock takes the update lock when locking is enabled and returns its release.
func (l *Ledger) lock(ctx context.Context, st *statedir.State, logger *logging.Logger) (func(), error) {
	if !l.locking {
		return func() {}, nil
	}
	fl, err := acquireLock(ctx, st.Path(statedir.LockFile), l.lockTimeout, logger)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := fl.release(); err != nil {
			logger.Warn("failed to release progress lock", "error", err)
		}
	}, nil
}

// validateUpdate checks u and pre-encodes its extension fields.
func validateUpdate(u Update) (map[string]json.RawMessage, error) {
	if u.Step != nil && *u.Step < 0 {
		return nil, errors.NewValidationError("step must not be negative").
			WithField("step").
			WithValue(*u.Step)
	}

	fields := make(map[string]json.RawMessage, len(u.Fields))
	for k, v := range u.Fields {
		if k == "" {
			return nil, errors.NewValidationError("field name must not be empty").WithField("fields")
		}
		if slices.Contains(ReservedKeys, k) {
			return nil, errors.NewValidationError("field name is reserved by the ledger").
				WithField("fields").
				WithValue(k)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, errors.NewValidationError("field value is not JSON-encodable").
				WithField(k).
				WithCause(err)
		}
		fields[k] = raw
	}
	return fields, nil
}
