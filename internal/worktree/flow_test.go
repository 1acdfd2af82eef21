package worktree

import (
	"context"
	"regexp"
	"testing"

	"github.com/Iron-Ham/wtstate/internal/vcs"
)

func TestFlowTokens_ForContext(t *testing.T) {
	tokens := NewFlowTokens(nil, DefaultFlowRules())

	tests := []struct {
		name string
		ctx  Context
		want string
	}{
		{
			name: "feature worktree directory",
			ctx:  Context{Root: "/src/german_feature_20251117T024349Z_phase-3", Branch: "feature/whatever", ID: "aaaaaaaaaaaa"},
			want: "feature/20251117T024349Z_phase-3",
		},
		{
			name: "hotfix worktree directory",
			ctx:  Context{Root: "/src/repo_hotfix_fix-login", Branch: "hotfix/fix-login", ID: "aaaaaaaaaaaa"},
			want: "hotfix/fix-login",
		},
		{
			name: "contrib branch",
			ctx:  Context{Root: "/src/repo", Branch: "contrib/alice", ID: "aaaaaaaaaaaa"},
			want: "contrib/alice",
		},
		{
			name: "agent branch",
			ctx:  Context{Root: "/src/repo", Branch: "claude/session-1", ID: "aaaaaaaaaaaa"},
			want: "claude/session-1",
		},
		{
			name: "fallback to worktree id",
			ctx:  Context{Root: "/src/repo", Branch: "main", ID: "0123456789ab"},
			want: "worktree-0123456789ab",
		},
		{
			name: "pattern needs a remainder",
			ctx:  Context{Root: "/src/repo_feature_", Branch: "main", ID: "0123456789ab"},
			want: "worktree-0123456789ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.ctx
			if got := tokens.ForContext(&ctx); got != tt.want {
				t.Errorf("ForContext() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewFlowTokens_SkipsUnusablePatterns(t *testing.T) {
	tokens := NewFlowTokens(nil, FlowRules{WorktreePatterns: []string{"[broken", "*", "*_release_*"}})
	if len(tokens.patterns) != 1 || tokens.patterns[0].kind != "release" {
		t.Fatalf("patterns = %+v", tokens.patterns)
	}
	got := tokens.ForContext(&Context{Root: "/x/app_release_2.0", ID: "aaaaaaaaaaaa"})
	if got != "release/2.0" {
		t.Errorf("ForContext() = %q", got)
	}
}

func TestFlowTokens_Token(t *testing.T) {
	adHoc := regexp.MustCompile(`^ad-hoc-[0-9a-f]{8}$`)

	t.Run("outside git", func(t *testing.T) {
		tokens := NewFlowTokens(NewResolver(&vcs.Fake{}), DefaultFlowRules())
		if got := tokens.Token(context.Background()); !adHoc.MatchString(got) {
			t.Errorf("Token() = %q, want ad-hoc token", got)
		}
	})

	t.Run("inside git", func(t *testing.T) {
		root := primaryRoot(t)
		tokens := NewFlowTokens(NewResolver(&vcs.Fake{Root: root, Branch: "main"}), DefaultFlowRules())
		if got := tokens.Token(context.Background()); got != "worktree-"+ComputeID(root) {
			t.Errorf("Token() = %q", got)
		}
	})

	if AdHocToken() == AdHocToken() {
		t.Error("ad-hoc tokens should be random")
	}
}

func TestIssueNumber(t *testing.T) {
	tests := []struct {
		token  string
		want   int
		wantOK bool
	}{
		{"issue-123", 123, true},
		{"feature/20251117_issue-42-login", 42, true},
		{"contrib/alice", 0, false},
		{"issue-", 0, false},
	}
	for _, tt := range tests {
		got, ok := IssueNumber(tt.token)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("IssueNumber(%q) = %d, %v; want %d, %v", tt.token, got, ok, tt.want, tt.wantOK)
		}
	}
}
