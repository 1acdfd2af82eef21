package cmd

import (
	"github.com/Iron-Ham/wtstate/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "wtstate",
	Short: "Worktree-aware workflow state",
	Long: `wtstate keeps workflow state per git worktree so that parallel agent
sessions in sibling worktrees never share or overwrite each other's progress.

Each worktree gets a state directory (default .claude-state) holding the
workflow progress ledger and, optionally, an append-only store of
synchronization events.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command, reports a failure on its error stream and
// returns the process exit code.
func Execute() int {
	c, err := rootCmd.ExecuteC()
	return reportError(rootCmd.ErrOrStderr(), c, err)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/wtstate/config.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "output format: text, json or yaml")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable styled output")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("output.format", rootCmd.PersistentFlags().Lookup("output"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(config.EnvPrefix)
	// e.g., WTSTATE_LEDGER_LOCK_TIMEOUT_SECONDS for ledger.lock_timeout_seconds
	viper.SetEnvKeyReplacer(config.EnvKeyReplacer())

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
