// Package commands implements the antrian CLI.
package commands

import (
	"github.com/spf13/cobra"
)

// Global flags.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "antrian",
	Short: "antrian - queued and cached HTTP fetching",
	Long: `antrian sends HTTP requests through a bounded priority queue and a
TTL + tag cache. The CLI is a thin front end over the antrian library, useful
for trying queue and cache settings against a real API.

Use "antrian [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
