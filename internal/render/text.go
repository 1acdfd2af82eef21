package render

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/wtstate/internal/progress"
	"github.com/Iron-Ham/wtstate/internal/statedir"
	"github.com/Iron-Ham/wtstate/internal/syncrecord"
	"github.com/Iron-Ham/wtstate/internal/worktree"
)

// locationWidth bounds source/target columns in sync listings.
const locationWidth = 40

// ContextView is the worktree context as shown by the context command.
type ContextView struct {
	*worktree.Context
	FlowToken string `json:"flow_token" yaml:"flow_token"`
	StateDir  string `json:"state_dir" yaml:"state_dir"`
}

// Context renders a worktree context.
func Context(s *Styles, v *ContextView) string {
	linked := "no"
	if v.IsLinked {
		linked = "yes"
	}
	rows := [][2]string{
		{"Worktree", v.Root},
		{"ID", v.ID},
		{"Branch", v.Branch},
		{"Linked", linked},
		{"Common dir", v.CommonDir},
		{"Flow token", v.FlowToken},
		{"State dir", v.StateDir},
	}
	if main := v.MainRepoPath(); main != "" {
		rows = append(rows, [2]string{"Main repo", main})
	}
	return s.KV(rows)
}

// Progress renders a progress document.
func Progress(s *Styles, p *progress.Progress) string {
	steps := "none"
	if len(p.StepsCompleted) > 0 {
		parts := make([]string, len(p.StepsCompleted))
		for i, step := range p.StepsCompleted {
			parts[i] = strconv.Itoa(step)
		}
		steps = strings.Join(parts, ", ")
	}
	updated := s.Muted.Render("never")
	if p.LastUpdated != nil {
		updated = p.LastUpdated.Local().Format(time.DateTime)
	}

	rows := [][2]string{
		{"Worktree ID", p.WorktreeID},
		{"Current step", strconv.Itoa(p.CurrentStep)},
		{"Completed", steps},
		{"Last updated", updated},
	}
	if p.FeatureBranch != "" {
		rows = append(rows, [2]string{"Feature branch", p.FeatureBranch})
	}
	if p.SessionID != "" {
		rows = append(rows, [2]string{"Session", p.SessionID})
	}

	var b strings.Builder
	b.WriteString(s.KV(rows))
	if len(p.Artifacts) > 0 {
		b.WriteString(s.Title.Render("Artifacts"))
		b.WriteString("\n")
		keys := make([]string, 0, len(p.Artifacts))
		for k := range p.Artifacts {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		arts := make([][2]string, len(keys))
		for i, k := range keys {
			arts[i] = [2]string{"  " + k, p.Artifacts[k]}
		}
		b.WriteString(s.KV(arts))
	}
	if len(p.Extra) > 0 {
		b.WriteString(s.Title.Render("Fields"))
		b.WriteString("\n")
		keys := make([]string, 0, len(p.Extra))
		for k := range p.Extra {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		fields := make([][2]string, len(keys))
		for i, k := range keys {
			fields[i] = [2]string{"  " + k, string(p.Extra[k])}
		}
		b.WriteString(s.KV(fields))
	}
	return b.String()
}

// Entries renders sync events, one per line.
func Entries(s *Styles, entries []syncrecord.Entry) string {
	if len(entries) == 0 {
		return s.Muted.Render("No sync events recorded.")
	}
	var b strings.Builder
	for _, e := range entries {
		status := s.Success.Render(e.Status)
		if e.Pattern == "quality_gate_failed" {
			status = s.Error.Render("failed")
		}
		fmt.Fprintf(&b, "%s  %s  %-19s  %-22s  %s\n",
			s.Muted.Render(shortID(e.SyncID)),
			e.CreatedAt.Local().Format(time.DateTime),
			e.SyncType,
			e.Pattern,
			status,
		)
		if e.FlowToken != "" {
			fmt.Fprintf(&b, "          %s %s\n", s.Label.Render("flow:"), e.FlowToken)
		}
		if e.SourceLocation != "" || e.TargetLocation != "" {
			fmt.Fprintf(&b, "          %s -> %s\n",
				Truncate(e.SourceLocation, locationWidth),
				Truncate(e.TargetLocation, locationWidth),
			)
		}
	}
	return b.String()
}

// Orphans renders orphaned state directories.
func Orphans(s *Styles, orphans []statedir.Orphan, removed bool) string {
	if len(orphans) == 0 {
		return s.Success.Render("No orphaned state directories.")
	}
	verb := "Orphaned"
	if removed {
		verb = "Removed"
	}
	var b strings.Builder
	b.WriteString(s.Title.Render(fmt.Sprintf("%s state directories (%d)", verb, len(orphans))))
	b.WriteString("\n")
	for _, o := range orphans {
		b.WriteString("  ")
		b.WriteString(s.Warning.Render(o.StateDir))
		if o.RecordedID != "" {
			b.WriteString(" ")
			b.WriteString(s.Muted.Render("(id " + o.RecordedID + ")"))
		}
		b.WriteString("\n")
	}
	if !removed {
		b.WriteString(s.Muted.Render("Run with --remove to delete them."))
		b.WriteString("\n")
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
