package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "vcs.timeout_seconds",
		Value:   0,
		Message: "must be between 1 and 120",
	}

	expected := "vcs.timeout_seconds: must be between 1 and 120 (got: 0)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "a", Value: 1, Message: "bad"},
			{Field: "b", Value: 2, Message: "worse"},
		}
		msg := errs.Error()
		if !strings.HasPrefix(msg, "2 validation errors:") {
			t.Errorf("Error() = %q, want count prefix", msg)
		}
		if !strings.Contains(msg, "  1. a: bad (got: 1)") || !strings.Contains(msg, "  2. b: worse (got: 2)") {
			t.Errorf("Error() = %q, missing entries", msg)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"dir name with slash", func(c *Config) { c.State.DirName = "a/b" }, "state.dir_name"},
		{"dir name dotdot", func(c *Config) { c.State.DirName = ".." }, "state.dir_name"},
		{"empty dir name", func(c *Config) { c.State.DirName = "" }, "state.dir_name"},
		{"empty git binary", func(c *Config) { c.VCS.GitBinary = " " }, "vcs.git_binary"},
		{"zero timeout", func(c *Config) { c.VCS.TimeoutSeconds = 0 }, "vcs.timeout_seconds"},
		{"huge timeout", func(c *Config) { c.VCS.TimeoutSeconds = 1000 }, "vcs.timeout_seconds"},
		{"negative lock timeout", func(c *Config) { c.Ledger.LockTimeoutSeconds = -1 }, "ledger.lock_timeout_seconds"},
		{"empty agent id", func(c *Config) { c.Recorder.AgentID = "" }, "recorder.agent_id"},
		{"db name with dir", func(c *Config) { c.Recorder.DBName = "x/agentdb.sqlite" }, "recorder.db_name"},
		{"bad glob", func(c *Config) { c.Flow.WorktreePatterns = []string{"[feature"} }, "flow.worktree_patterns"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() returned %d errors, want 1: %v", len(errs), ValidationErrors(errs))
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestValidate_AcceptsUppercaseLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "DEBUG"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", ValidationErrors(errs))
	}
}
