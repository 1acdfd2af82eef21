package cmd

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/wtstate/internal/config"
	"github.com/Iron-Ham/wtstate/internal/render"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View wtstate configuration",
	Long: `View wtstate configuration.

Without arguments, displays the current configuration. Values come from the
config file, then WTSTATE_* environment variables (e.g.
WTSTATE_LEDGER_LOCK_TIMEOUT_SECONDS for ledger.lock_timeout_seconds), then
flags.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	return a.printer.Print(a.cfg, func(s *render.Styles) string {
		var b strings.Builder
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintf(&b, "%s %s\n\n", s.Label.Render("Config file:"), used)
		} else {
			fmt.Fprintf(&b, "%s %s\n\n", s.Label.Render("Config file:"), s.Muted.Render("(none - using defaults)"))
		}
		data, err := render.ToYAML(a.cfg)
		if err != nil {
			return err.Error()
		}
		b.Write(data)
		return b.String()
	})
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	_, err := fmt.Fprintln(cmd.OutOrStdout(), config.ConfigFile())
	return err
}
