package vcs

import (
	"reflect"
	"testing"
)

func TestParseWorktreeList(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []WorktreeEntry
	}{
		{
			name:   "empty",
			output: "",
			want:   nil,
		},
		{
			name: "primary and linked",
			output: `worktree /src/repo
HEAD 1111111111111111111111111111111111111111
branch refs/heads/main

worktree /src/repo_feature_login
HEAD 2222222222222222222222222222222222222222
branch refs/heads/feature/login
`,
			want: []WorktreeEntry{
				{Path: "/src/repo", Head: "1111111111111111111111111111111111111111", Branch: "main"},
				{Path: "/src/repo_feature_login", Head: "2222222222222222222222222222222222222222", Branch: "feature/login"},
			},
		},
		{
			name: "detached locked prunable",
			output: "worktree /src/repo\nHEAD aaa\nbranch refs/heads/main\n\n" +
				"worktree /src/old\nHEAD bbb\ndetached\nlocked reason here\nprunable gitdir file points to non-existent location\n",
			want: []WorktreeEntry{
				{Path: "/src/repo", Head: "aaa", Branch: "main"},
				{Path: "/src/old", Head: "bbb", Detached: true, Locked: true, Prunable: true},
			},
		},
		{
			name:   "bare with crlf",
			output: "worktree /src/repo.git\r\nbare\r\n",
			want:   []WorktreeEntry{{Path: "/src/repo.git", Bare: true}},
		},
		{
			name:   "path with spaces",
			output: "worktree /src/my repo\nHEAD ccc\n",
			want:   []WorktreeEntry{{Path: "/src/my repo", Head: "ccc"}},
		},
		{
			name:   "attributes before any worktree are ignored",
			output: "HEAD ddd\n\nworktree /x\n",
			want:   []WorktreeEntry{{Path: "/x"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseWorktreeList(tt.output)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseWorktreeList() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
