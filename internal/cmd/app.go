package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/Iron-Ham/wtstate/internal/config"
	"github.com/Iron-Ham/wtstate/internal/logging"
	"github.com/Iron-Ham/wtstate/internal/progress"
	"github.com/Iron-Ham/wtstate/internal/render"
	"github.com/Iron-Ham/wtstate/internal/statedir"
	"github.com/Iron-Ham/wtstate/internal/syncrecord"
	"github.com/Iron-Ham/wtstate/internal/vcs"
	"github.com/Iron-Ham/wtstate/internal/worktree"
	"github.com/spf13/cobra"
)

// app wires the components a command needs from the loaded configuration.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	resolver *worktree.Resolver
	dirs     *statedir.Manager
	flow     *worktree.FlowTokens
	printer  *render.Printer
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	format, err := render.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	noColor, _ := cmd.Flags().GetBool("no-color")

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	git := vcs.NewCLI(cwd,
		vcs.WithBinary(cfg.VCS.GitBinary),
		vcs.WithTimeout(cfg.VCS.Timeout()),
	)
	resolver := worktree.NewResolver(git)
	// Until enableLogging switches to debug.log, warnings go to stderr.
	logger := logging.NewLoggerWithWriter(cmd.ErrOrStderr(), logging.LevelWarn)

	return &app{
		cfg:      cfg,
		logger:   logger,
		resolver: resolver,
		dirs:     statedir.New(resolver, statedir.WithDirName(cfg.State.DirName), statedir.WithLogger(logger)),
		flow: worktree.NewFlowTokens(resolver, worktree.FlowRules{
			WorktreePatterns: cfg.Flow.WorktreePatterns,
			BranchPrefixes:   cfg.Flow.BranchPrefixes,
		}),
		printer: render.NewPrinter(cmd.OutOrStdout(), format, cfg.Output.Color && !noColor),
	}, nil
}

// enableLogging opens debug.log in the current state directory. Commands
// that change state call it; read-only commands stay side-effect free and
// keep the stderr warning logger. Logging is best effort and never fails a
// command: when debug.log cannot be opened warnings keep going to stderr.
func (a *app) enableLogging(ctx context.Context) {
	if !a.cfg.Logging.Enabled {
		return
	}
	dir, err := a.dirs.Dir(ctx)
	if err != nil {
		return
	}
	logger, err := logging.NewLogger(dir, a.cfg.Logging.Level)
	if err != nil {
		a.logger.Warn("debug log unavailable", "dir", dir, "error", err)
		return
	}
	a.logger = logger
	a.dirs = statedir.New(a.resolver,
		statedir.WithDirName(a.cfg.State.DirName),
		statedir.WithLogger(logger),
	)
}

func (a *app) close() {
	_ = a.logger.Close()
}

func (a *app) ledger() *progress.Ledger {
	return progress.NewLedger(a.dirs,
		progress.WithLogger(a.logger),
		progress.WithLocking(a.cfg.Ledger.Lock, a.cfg.Ledger.LockTimeout()),
	)
}

func (a *app) recorder() *syncrecord.Recorder {
	return syncrecord.NewRecorder(a.dirs, a.flow,
		syncrecord.WithLogger(a.logger),
		syncrecord.WithAgentID(a.cfg.Recorder.AgentID),
		syncrecord.WithDBName(a.cfg.Recorder.DBName),
	)
}

// sink returns the side-channel recorder used after progress updates.
func (a *app) sink() syncrecord.Sink {
	if !a.cfg.Recorder.Enabled {
		return syncrecord.Discard{}
	}
	return syncrecord.NewGraceful(a.recorder(), a.logger)
}
