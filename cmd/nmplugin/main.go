// Command nmplugin is a standalone harness around the Network-Manager
// plugin's persisted-config surface (§6.3): since the plugin itself is
// loaded by an external host runtime (out of scope per §1), this binary
// resolves a PluginConfig.EtcDir the way that host would and loads one
// persona's config.json out of it, and exercises the interactive fallback
// for RequestPluginUserInput when no host-provided UI is present.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nmplugin",
	Short: "Load and inspect a network-manager plugin's persisted config etcDir",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nmplugin: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (panic, fatal, error, warn, info, debug, trace)")
}
