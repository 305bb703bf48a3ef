package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/racecore/overlay-nm/pkg/configgen"
)

var (
	graphRangeConfigPath string
	graphChannelListPath string
	graphOutputPath      string
)

// graphCmd is the network visualizer export supplemented from the
// original's standalone network_visualizer.py: it runs the same
// committee/ring assembly as generate but only emits the Graphviz digraph,
// for inspecting a deployment's shape before committing to full output.
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Render a range config's committee/ring/reachability graph as Graphviz DOT",
	RunE:  runGraph,
}

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().StringVar(&graphRangeConfigPath, "range-config", "", "path to the range config JSON file (required)")
	graphCmd.Flags().StringVar(&graphChannelListPath, "channels", "", "path to the channel list JSON file (required)")
	graphCmd.Flags().StringVar(&graphOutputPath, "output", "", "file to write the DOT graph to (default: stdout)")

	graphCmd.MarkFlagRequired("range-config")
	graphCmd.MarkFlagRequired("channels")
}

func runGraph(cmd *cobra.Command, args []string) error {
	rc, err := configgen.LoadRangeConfig(graphRangeConfigPath)
	if err != nil {
		return err
	}
	channels, err := loadChannelList(graphChannelListPath)
	if err != nil {
		return err
	}

	result, err := configgen.NewGenerator(rc, configgen.Options{Channels: channels}).Generate()
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	dot := result.Committees.DOT()
	if graphOutputPath == "" {
		fmt.Fprint(os.Stdout, dot)
		return nil
	}
	return os.WriteFile(graphOutputPath, []byte(dot), 0o644)
}
