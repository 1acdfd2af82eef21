package cmd

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/Iron-Ham/wtstate/internal/errors"
	"github.com/Iron-Ham/wtstate/internal/render"
	"github.com/Iron-Ham/wtstate/internal/syncrecord"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Record and list synchronization events",
	Long: `Synchronization events are appended to agentdb.sqlite in a state
directory: the current worktree's when it already has a store, otherwise the
main repository's shared store, otherwise a new one in the current worktree.`,
}

var syncRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a synchronization event",
	Long: `Record a synchronization event and print its sync id.

--type must be one of workflow_transition, quality_gate or file_update.
Patterns outside the recommended list (phase_1_specify ... phase_7_backmerge,
quality_gate_passed, quality_gate_failed) are accepted with a warning.

--worktree attributes the event to another worktree path; by default it is the
current one. --metadata takes a JSON object; --meta entries are merged on top.`,
	Args: cobra.NoArgs,
	RunE: runSyncRecord,
}

var syncListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded synchronization events, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSyncList,
}

var (
	syncType           string
	syncPattern        string
	syncSource         string
	syncTarget         string
	syncMeta           []string
	syncMetaJSON       string
	syncRecordWorktree string
	syncWorktree       string
	syncFlow           string
	syncLimit          int
)

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncRecordCmd)
	syncCmd.AddCommand(syncListCmd)

	syncRecordCmd.Flags().StringVar(&syncType, "type", "", "sync type (required)")
	syncRecordCmd.Flags().StringVar(&syncPattern, "pattern", "", "sync pattern (required)")
	syncRecordCmd.Flags().StringVar(&syncSource, "source", "", "source location")
	syncRecordCmd.Flags().StringVar(&syncTarget, "target", "", "target location")
	syncRecordCmd.Flags().StringArrayVar(&syncMeta, "meta", nil, "metadata entry (key=value, repeatable)")
	syncRecordCmd.Flags().StringVar(&syncMetaJSON, "metadata", "", "metadata as a JSON object")
	syncRecordCmd.Flags().StringVar(&syncRecordWorktree, "worktree", "", "worktree path (default: the current worktree)")
	_ = syncRecordCmd.MarkFlagRequired("type")
	_ = syncRecordCmd.MarkFlagRequired("pattern")

	syncListCmd.Flags().StringVar(&syncType, "type", "", "only events of this sync type")
	syncListCmd.Flags().StringVar(&syncPattern, "pattern", "", "only events with this pattern")
	syncListCmd.Flags().StringVar(&syncWorktree, "worktree", "", "only events from this worktree id")
	syncListCmd.Flags().StringVar(&syncFlow, "flow", "", "only events with this flow token")
	syncListCmd.Flags().IntVar(&syncLimit, "limit", 20, "maximum number of events (0 for all)")
}

func runSyncRecord(cmd *cobra.Command, args []string) error {
	metadata, err := parseMetadata(syncMetaJSON)
	if err != nil {
		return err
	}
	fields, err := parseFields(syncMeta)
	if err != nil {
		return err
	}
	if len(fields) > 0 && metadata == nil {
		metadata = make(map[string]any, len(fields))
	}
	maps.Copy(metadata, fields)

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()
	a.enableLogging(ctx)

	id, err := a.recorder().Record(ctx, syncrecord.Event{
		SyncType: syncType,
		Pattern:  syncPattern,
		Source:   syncSource,
		Target:   syncTarget,
		Worktree: syncRecordWorktree,
		Metadata: metadata,
	})
	if err != nil {
		return err
	}

	if a.printer.Format() == render.FormatText {
		_, err = fmt.Fprintln(a.printer.Writer(), id)
		return err
	}
	return a.printer.Print(map[string]string{"sync_id": id}, nil)
}

func runSyncList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.recorder().List(cmd.Context(), syncrecord.Filter{
		SyncType:   syncType,
		Pattern:    syncPattern,
		WorktreeID: syncWorktree,
		FlowToken:  syncFlow,
		Limit:      syncLimit,
	})
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []syncrecord.Entry{}
	}
	return a.printer.Print(entries, func(s *render.Styles) string {
		return render.Entries(s, entries)
	})
}

// parseMetadata decodes a --metadata value. Anything but a JSON object is a
// validation error.
func parseMetadata(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil || metadata == nil {
		verr := errors.NewValidationError("metadata must be a JSON object").WithField("metadata").WithValue(raw)
		if err != nil {
			verr = verr.WithCause(err)
		}
		return nil, verr
	}
	return metadata, nil
}
