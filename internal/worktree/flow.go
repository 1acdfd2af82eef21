package worktree

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
)

// FlowRules decide how a session's flow token is derived.
type FlowRules struct {
	// WorktreePatterns are globs on the worktree directory name of the form
	// "*_<kind>_*". A match yields "<kind>/<rest of the name>".
	WorktreePatterns []string
	// BranchPrefixes are branch prefixes whose branches are used verbatim.
	BranchPrefixes []string
}

// DefaultFlowRules returns the conventional feature/hotfix directory layout
// and contributor/agent branch prefixes.
func DefaultFlowRules() FlowRules {
	return FlowRules{
		WorktreePatterns: []string{"*_feature_*", "*_hotfix_*"},
		BranchPrefixes:   []string{"contrib/", "claude/"},
	}
}

type worktreePattern struct {
	kind    string
	matcher glob.Glob
}

// FlowTokens derives flow tokens correlating sync events of one workflow
// session across worktrees.
type FlowTokens struct {
	resolver *Resolver
	patterns []worktreePattern
	prefixes []string
}

// NewFlowTokens compiles rules. Patterns that fail to compile or carry no
// literal kind are skipped.
func NewFlowTokens(resolver *Resolver, rules FlowRules) *FlowTokens {
	f := &FlowTokens{resolver: resolver, prefixes: rules.BranchPrefixes}
	for _, p := range rules.WorktreePatterns {
		g, err := glob.Compile(p)
		if err != nil {
			continue
		}
		kind := strings.Trim(p, "*_")
		if kind == "" || strings.ContainsAny(kind, "*?[]{}") {
			continue
		}
		f.patterns = append(f.patterns, worktreePattern{kind: kind, matcher: g})
	}
	return f
}

// Token returns the flow token for the current session. It never fails:
// without any git context it returns a random "ad-hoc-<8 hex>" token.
func (f *FlowTokens) Token(ctx context.Context) string {
	wt, err := f.resolver.Resolve(ctx)
	if err != nil {
		return AdHocToken()
	}
	return f.ForContext(wt)
}

// ForContext derives the token for an already resolved context.
func (f *FlowTokens) ForContext(wt *Context) string {
	name := filepath.Base(wt.Root)
	for _, p := range f.patterns {
		if !p.matcher.Match(name) {
			continue
		}
		marker := "_" + p.kind + "_"
		if idx := strings.Index(name, marker); idx >= 0 {
			if rest := name[idx+len(marker):]; rest != "" {
				return p.kind + "/" + rest
			}
		}
	}

	for _, prefix := range f.prefixes {
		if prefix != "" && strings.HasPrefix(wt.Branch, prefix) {
			return wt.Branch
		}
	}

	return "worktree-" + wt.ID
}

// AdHocToken returns a fresh "ad-hoc-<8 hex>" token.
func AdHocToken() string {
	return "ad-hoc-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

var issuePattern = regexp.MustCompile(`issue-(\d+)`)

// IssueNumber extracts an "issue-<n>" reference from a flow token.
func IssueNumber(token string) (int, bool) {
	m := issuePattern.FindStringSubmatch(token)
	if len(m) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
