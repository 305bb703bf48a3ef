// Command configgen runs the §4.9 offline config generator: it reads a
// range config and a channel list and writes every per-deployment artifact
// a network-manager plugin needs at genesis (personas, AES keys, config.json
// files, link-profiles.json, network-manager-request.json).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "configgen",
	Short: "Generate overlay network-manager configs from a range config",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (panic, fatal, error, warn, info, debug, trace)")
}
