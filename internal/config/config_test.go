package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.State.DirName != ".claude-state" {
		t.Errorf("State.DirName = %q, want %q", cfg.State.DirName, ".claude-state")
	}
	if cfg.VCS.GitBinary != "git" {
		t.Errorf("VCS.GitBinary = %q, want git", cfg.VCS.GitBinary)
	}
	if cfg.VCS.TimeoutSeconds != 5 {
		t.Errorf("VCS.TimeoutSeconds = %d, want 5", cfg.VCS.TimeoutSeconds)
	}
	if !cfg.Ledger.Lock {
		t.Error("Ledger.Lock should be true by default")
	}
	if cfg.Recorder.AgentID != "claude-code" {
		t.Errorf("Recorder.AgentID = %q, want claude-code", cfg.Recorder.AgentID)
	}
	if cfg.Recorder.DBName != "agentdb.sqlite" {
		t.Errorf("Recorder.DBName = %q, want agentdb.sqlite", cfg.Recorder.DBName)
	}
	if len(cfg.Flow.WorktreePatterns) != 2 || len(cfg.Flow.BranchPrefixes) != 2 {
		t.Errorf("unexpected flow defaults: %+v", cfg.Flow)
	}
	if cfg.Output.Format != "text" {
		t.Errorf("Output.Format = %q, want text", cfg.Output.Format)
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default() should validate cleanly, got %v", ValidationErrors(errs))
	}
}

func TestDurations(t *testing.T) {
	vcs := VCSConfig{TimeoutSeconds: 3}
	if vcs.Timeout() != 3*time.Second {
		t.Errorf("Timeout() = %v, want 3s", vcs.Timeout())
	}
	ledger := LedgerConfig{LockTimeoutSeconds: 0}
	if ledger.LockTimeout() != 0 {
		t.Errorf("LockTimeout() = %v, want 0", ledger.LockTimeout())
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/wtstate" {
			t.Errorf("ConfigDir() = %q, want /custom/config/wtstate", got)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "wtstate")
		if got := ConfigDir(); got != expected {
			t.Errorf("ConfigDir() = %q, want %q", got, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := ConfigFile(); got != "/custom/config/wtstate/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.State.DirName != ".claude-state" {
		t.Errorf("Get().State.DirName = %q", cfg.State.DirName)
	}
}

func TestLoad_Overrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	viper.Set("state.dir_name", ".wt-state")
	viper.Set("ledger.lock", false)
	viper.Set("flow.branch_prefixes", []string{"agent/"})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.State.DirName != ".wt-state" {
		t.Errorf("State.DirName = %q, want .wt-state", cfg.State.DirName)
	}
	if cfg.Ledger.Lock {
		t.Error("Ledger.Lock should be overridden to false")
	}
	if len(cfg.Flow.BranchPrefixes) != 1 || cfg.Flow.BranchPrefixes[0] != "agent/" {
		t.Errorf("Flow.BranchPrefixes = %v", cfg.Flow.BranchPrefixes)
	}
}

func TestLoad_InvalidFallsBackInGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("output.format", "xml")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject output.format=xml")
	}
	if cfg := Get(); cfg.Output.Format != "text" {
		t.Errorf("Get() should fall back to defaults, got format %q", cfg.Output.Format)
	}
}

func TestEnvKeyReplacer(t *testing.T) {
	if got := EnvKeyReplacer().Replace("ledger.lock_timeout_seconds"); got != "ledger_lock_timeout_seconds" {
		t.Errorf("Replace() = %q", got)
	}
}
