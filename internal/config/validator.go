package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "vcs.timeout_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidOutputFormats returns the list of valid CLI output formats
func ValidOutputFormats() []string {
	return []string{"text", "json", "yaml"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateState()...)
	errors = append(errors, c.validateVCS()...)
	errors = append(errors, c.validateLedger()...)
	errors = append(errors, c.validateRecorder()...)
	errors = append(errors, c.validateFlow()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateOutput()...)

	return errors
}

func (c *Config) validateState() []ValidationError {
	var errors []ValidationError

	name := c.State.DirName
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, filepath.Separator) || strings.Contains(name, "/") {
		errors = append(errors, ValidationError{
			Field:   "state.dir_name",
			Value:   name,
			Message: "must be a single relative directory name",
		})
	}

	return errors
}

func (c *Config) validateVCS() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.VCS.GitBinary) == "" {
		errors = append(errors, ValidationError{
			Field:   "vcs.git_binary",
			Value:   c.VCS.GitBinary,
			Message: "must not be empty",
		})
	}

	const maxTimeout = 120
	if c.VCS.TimeoutSeconds < 1 || c.VCS.TimeoutSeconds > maxTimeout {
		errors = append(errors, ValidationError{
			Field:   "vcs.timeout_seconds",
			Value:   c.VCS.TimeoutSeconds,
			Message: fmt.Sprintf("must be between 1 and %d", maxTimeout),
		})
	}

	return errors
}

func (c *Config) validateLedger() []ValidationError {
	var errors []ValidationError

	if c.Ledger.LockTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "ledger.lock_timeout_seconds",
			Value:   c.Ledger.LockTimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateRecorder() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Recorder.AgentID) == "" {
		errors = append(errors, ValidationError{
			Field:   "recorder.agent_id",
			Value:   c.Recorder.AgentID,
			Message: "must not be empty",
		})
	}
	if c.Recorder.DBName == "" || filepath.Base(c.Recorder.DBName) != c.Recorder.DBName {
		errors = append(errors, ValidationError{
			Field:   "recorder.db_name",
			Value:   c.Recorder.DBName,
			Message: "must be a plain file name",
		})
	}

	return errors
}

func (c *Config) validateFlow() []ValidationError {
	var errors []ValidationError

	for _, pattern := range c.Flow.WorktreePatterns {
		if _, err := glob.Compile(pattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   "flow.worktree_patterns",
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob: %v", err),
			})
		}
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateOutput() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidOutputFormats(), c.Output.Format) {
		errors = append(errors, ValidationError{
			Field:   "output.format",
			Value:   c.Output.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidOutputFormats(), ", ")),
		})
	}

	return errors
}
