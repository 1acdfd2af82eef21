package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete wtstate configuration
type Config struct {
	State    StateConfig    `mapstructure:"state" json:"state"`
	VCS      VCSConfig      `mapstructure:"vcs" json:"vcs"`
	Ledger   LedgerConfig   `mapstructure:"ledger" json:"ledger"`
	Recorder RecorderConfig `mapstructure:"recorder" json:"recorder"`
	Flow     FlowConfig     `mapstructure:"flow" json:"flow"`
	Logging  LoggingConfig  `mapstructure:"logging" json:"logging"`
	Output   OutputConfig   `mapstructure:"output" json:"output"`
}

// StateConfig controls the per-worktree state directory
type StateConfig struct {
	// DirName is the state directory created under every worktree root (default: ".claude-state")
	DirName string `mapstructure:"dir_name" json:"dir_name"`
}

// VCSConfig controls how git is invoked
type VCSConfig struct {
	// GitBinary is the git executable to run (default: "git")
	GitBinary string `mapstructure:"git_binary" json:"git_binary"`
	// TimeoutSeconds bounds every git subprocess call (default: 5)
	TimeoutSeconds int `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// LedgerConfig controls workflow progress updates
type LedgerConfig struct {
	// Lock serializes concurrent updates from different processes with an
	// advisory file lock (default: true). When false, updates are
	// last-writer-wins.
	Lock bool `mapstructure:"lock" json:"lock"`
	// LockTimeoutSeconds is how long an update waits for the lock (default: 10)
	LockTimeoutSeconds int `mapstructure:"lock_timeout_seconds" json:"lock_timeout_seconds"`
}

// RecorderConfig controls the append-only sync event store
type RecorderConfig struct {
	// Enabled records workflow transitions after progress updates (default: true)
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// AgentID is written to agent_id and created_by (default: "claude-code")
	AgentID string `mapstructure:"agent_id" json:"agent_id"`
	// DBName is the database file inside the state directory (default: "agentdb.sqlite")
	DBName string `mapstructure:"db_name" json:"db_name"`
}

// FlowConfig controls how flow tokens are derived
type FlowConfig struct {
	// WorktreePatterns maps glob patterns on the worktree directory name to a
	// branch kind, e.g. "*_feature_*" -> feature/<rest>
	WorktreePatterns []string `mapstructure:"worktree_patterns" json:"worktree_patterns"`
	// BranchPrefixes are branch prefixes used verbatim as flow tokens
	BranchPrefixes []string `mapstructure:"branch_prefixes" json:"branch_prefixes"`
}

// LoggingConfig controls debug logging into the state directory
type LoggingConfig struct {
	// Enabled writes JSON logs to <state-dir>/debug.log (default: true)
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Level is the minimum level: debug, info, warn, error (default: "info")
	Level string `mapstructure:"level" json:"level"`
}

// OutputConfig controls CLI output
type OutputConfig struct {
	// Format is text, json or yaml (default: "text")
	Format string `mapstructure:"format" json:"format"`
	// Color enables styled text output when stdout is a terminal (default: true)
	Color bool `mapstructure:"color" json:"color"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		State: StateConfig{
			DirName: ".claude-state",
		},
		VCS: VCSConfig{
			GitBinary:      "git",
			TimeoutSeconds: 5,
		},
		Ledger: LedgerConfig{
			Lock:               true,
			LockTimeoutSeconds: 10,
		},
		Recorder: RecorderConfig{
			Enabled: true,
			AgentID: "claude-code",
			DBName:  "agentdb.sqlite",
		},
		Flow: FlowConfig{
			WorktreePatterns: []string{"*_feature_*", "*_hotfix_*"},
			BranchPrefixes:   []string{"contrib/", "claude/"},
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// Timeout returns the git call timeout as a time.Duration
func (c *VCSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LockTimeout returns the lock wait as a time.Duration
func (c *LedgerConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("state.dir_name", defaults.State.DirName)

	viper.SetDefault("vcs.git_binary", defaults.VCS.GitBinary)
	viper.SetDefault("vcs.timeout_seconds", defaults.VCS.TimeoutSeconds)

	viper.SetDefault("ledger.lock", defaults.Ledger.Lock)
	viper.SetDefault("ledger.lock_timeout_seconds", defaults.Ledger.LockTimeoutSeconds)

	viper.SetDefault("recorder.enabled", defaults.Recorder.Enabled)
	viper.SetDefault("recorder.agent_id", defaults.Recorder.AgentID)
	viper.SetDefault("recorder.db_name", defaults.Recorder.DBName)

	viper.SetDefault("flow.worktree_patterns", defaults.Flow.WorktreePatterns)
	viper.SetDefault("flow.branch_prefixes", defaults.Flow.BranchPrefixes)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)

	viper.SetDefault("output.format", defaults.Output.Format)
	viper.SetDefault("output.color", defaults.Output.Color)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// loaded values do not validate
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "wtstate")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wtstate"
	}
	return filepath.Join(home, ".config", "wtstate")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// EnvPrefix is the prefix of environment overrides, e.g. WTSTATE_LEDGER_LOCK.
const EnvPrefix = "WTSTATE"

// EnvKeyReplacer maps nested keys to environment variable names.
func EnvKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}
