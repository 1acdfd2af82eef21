package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Iron-Ham/wtstate/internal/errors"
	"github.com/Iron-Ham/wtstate/internal/progress"
	"github.com/Iron-Ham/wtstate/internal/render"
	"github.com/Iron-Ham/wtstate/internal/syncrecord"
	"github.com/Iron-Ham/wtstate/internal/tui"
	"github.com/Iron-Ham/wtstate/internal/worktree"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// stepPatterns maps workflow steps to the sync pattern recorded when a step
// completes.
var stepPatterns = map[int]string{
	1: "phase_1_specify",
	2: "phase_2_plan",
	3: "phase_3_tasks",
	4: "phase_4_implement",
	5: "phase_5_integrate",
	6: "phase_6_release",
	7: "phase_7_backmerge",
}

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Read and update the workflow progress ledger",
	Long: `The progress ledger (workflow.json in the state directory) records the
current workflow step, the steps completed so far and the artifacts they
produced. Each worktree has its own ledger.`,
}

var progressShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show workflow progress",
	Args:  cobra.NoArgs,
	RunE:  runProgressShow,
}

var progressUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Record progress",
	Long: `Record progress in the ledger. Only the given values change.

--step marks a step completed and makes it the current step. --artifact is
stored under step_<n> when --step is given, otherwise under the next free
artifact_<k>. --field key=value merges an extension field into the
document; values that parse as JSON are stored as JSON, anything else as a
string.

Completing a step also records a workflow_transition sync event unless the
recorder is disabled. Failing to record never fails the update.`,
	Args: cobra.NoArgs,
	RunE: runProgressUpdate,
}

var progressClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset workflow progress",
	Args:  cobra.NoArgs,
	RunE:  runProgressClear,
}

var progressCheckCmd = &cobra.Command{
	Use:   "check <step>",
	Short: "Check whether a step is completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgressCheck,
}

var progressWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch workflow progress for changes",
	Long: `Display workflow progress and refresh it whenever the ledger changes.
On a terminal this is an interactive view (q to quit); otherwise each
snapshot is printed as it arrives.`,
	Args: cobra.NoArgs,
	RunE: runProgressWatch,
}

var (
	updateStep          int
	updateArtifact      string
	updateFeatureBranch string
	updateSessionID     string
	updateFields        []string
	watchFor            time.Duration
)

func init() {
	rootCmd.AddCommand(progressCmd)
	progressCmd.AddCommand(progressShowCmd)
	progressCmd.AddCommand(progressUpdateCmd)
	progressCmd.AddCommand(progressClearCmd)
	progressCmd.AddCommand(progressCheckCmd)
	progressCmd.AddCommand(progressWatchCmd)

	progressUpdateCmd.Flags().IntVar(&updateStep, "step", 0, "mark this step completed")
	progressUpdateCmd.Flags().StringVar(&updateArtifact, "artifact", "", "record an artifact path")
	progressUpdateCmd.Flags().StringVar(&updateFeatureBranch, "feature-branch", "", "set the feature branch")
	progressUpdateCmd.Flags().StringVar(&updateSessionID, "session-id", "", "set the session id")
	progressUpdateCmd.Flags().StringArrayVar(&updateFields, "field", nil, "set an extension field (key=value, repeatable)")

	progressWatchCmd.Flags().DurationVar(&watchFor, "for", 0, "stop watching after this long (0 watches until interrupted)")
}

func runProgressShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.ledger().Read(cmd.Context())
	if err != nil {
		return err
	}
	return printProgress(a.printer, p)
}

func runProgressUpdate(cmd *cobra.Command, args []string) error {
	u := progress.Update{}
	flags := cmd.Flags()
	if flags.Changed("step") {
		u.Step = &updateStep
	}
	if flags.Changed("artifact") {
		u.Artifact = &updateArtifact
	}
	if flags.Changed("feature-branch") {
		u.FeatureBranch = &updateFeatureBranch
	}
	if flags.Changed("session-id") {
		u.SessionID = &updateSessionID
	}
	fields, err := parseFields(updateFields)
	if err != nil {
		return err
	}
	u.Fields = fields
	if u.Step == nil && u.Artifact == nil && u.FeatureBranch == nil && u.SessionID == nil && len(u.Fields) == 0 {
		return errors.NewValidationError("nothing to update: pass --step, --artifact, --feature-branch, --session-id or --field")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()
	a.enableLogging(ctx)

	p, err := a.ledger().Update(ctx, u)
	if err != nil {
		return err
	}

	if u.Step != nil {
		metadata := map[string]any{"step": *u.Step}
		if p.FeatureBranch != "" {
			metadata["feature_branch"] = p.FeatureBranch
		}
		if n, ok := worktree.IssueNumber(p.FeatureBranch + " " + a.flow.Token(ctx)); ok {
			metadata["issue"] = n
		}
		_, _ = a.sink().Record(ctx, syncrecord.Event{
			SyncType: syncrecord.TypeWorkflowTransition,
			Pattern:  stepPattern(*u.Step),
			Target:   updateArtifactOrEmpty(u),
			Metadata: metadata,
		})
	}

	return printProgress(a.printer, p)
}

func runProgressClear(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()
	a.enableLogging(ctx)

	if err := a.ledger().Clear(ctx); err != nil {
		return err
	}
	if a.printer.Format() == render.FormatText {
		_, err = fmt.Fprintln(a.printer.Writer(), "Progress cleared.")
		return err
	}
	return a.printer.Print(map[string]bool{"cleared": true}, nil)
}

func runProgressCheck(cmd *cobra.Command, args []string) error {
	step, err := strconv.Atoi(args[0])
	if err != nil {
		return errors.NewValidationError("step must be an integer").WithField("step").WithValue(args[0])
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	done, err := a.ledger().IsStepCompleted(cmd.Context(), step)
	if err != nil {
		return err
	}
	result := struct {
		Step      int  `json:"step"`
		Completed bool `json:"completed"`
	}{step, done}
	return a.printer.Print(result, func(s *render.Styles) string {
		if done {
			return s.Success.Render(fmt.Sprintf("Step %d is completed.", step))
		}
		return s.Warning.Render(fmt.Sprintf("Step %d is not completed.", step))
	})
}

func runProgressWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if watchFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, watchFor)
		defer cancel()
	}

	// The watcher needs the directory to exist.
	if _, err := a.dirs.Dir(ctx); err != nil {
		return err
	}
	ledger := a.ledger()

	if a.printer.Format() == render.FormatText && render.IsTerminal(a.printer.Writer()) {
		return watchInteractive(ctx, ledger, a.printer)
	}

	var printErr error
	err = ledger.Watch(ctx, func(p *progress.Progress) {
		if printErr == nil {
			printErr = printProgress(a.printer, p)
		}
	})
	if err != nil {
		return err
	}
	return printErr
}

// watchInteractive runs the bubbletea view fed by the ledger watcher.
func watchInteractive(ctx context.Context, ledger *progress.Ledger, printer *render.Printer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(tui.NewWatchModel(printer.Styles()), tea.WithOutput(printer.Writer()))

	go func() {
		err := ledger.Watch(ctx, func(p *progress.Progress) {
			program.Send(tui.ProgressMsg{Progress: p.Clone()})
		})
		if err != nil {
			program.Send(tui.ErrMsg{Err: err})
			return
		}
		program.Quit()
	}()

	final, err := program.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(tui.WatchModel); ok && m.Err() != nil {
		return m.Err()
	}
	return nil
}

func printProgress(printer *render.Printer, p *progress.Progress) error {
	return printer.Print(p, func(s *render.Styles) string {
		return render.Progress(s, p)
	})
}

// parseFields parses repeated key=value flags.
func parseFields(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	fields := make(map[string]any, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, errors.NewValidationError("field must be key=value").WithField("field").WithValue(kv)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			fields[key] = decoded
		} else {
			fields[key] = value
		}
	}
	return fields, nil
}

func stepPattern(step int) string {
	if p, ok := stepPatterns[step]; ok {
		return p
	}
	return fmt.Sprintf("step_%d", step)
}

func updateArtifactOrEmpty(u progress.Update) string {
	if u.Artifact == nil {
		return ""
	}
	return *u.Artifact
}
