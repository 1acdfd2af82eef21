// Package logging provides structured logging for wtstate.
//
// It wraps Go's log/slog JSON handler so that every process invocation that
// touches a worktree's state appends machine-readable entries to the state
// directory's debug.log, where concurrent agent sessions can be correlated
// after the fact by worktree id, session id and workflow phase.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(stateDir, "info")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	log := logger.WithWorktree(ctx.ID).WithPhase("phase_2_plan")
//	log.Info("progress updated", "step", 2)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"progress updated","worktree_id":"3f2a9c0d1e4b","phase":"phase_2_plan","step":2}
//
// # Thread Safety
//
// A [Logger] and every child created through its With* methods share one
// handler and one file, and are safe for concurrent use.
package logging
