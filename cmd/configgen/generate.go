package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/racecore/overlay-nm/pkg/configgen"
	"github.com/racecore/overlay-nm/pkg/persona"
	"github.com/racecore/overlay-nm/pkg/raceconfig"
)

var (
	rangeConfigPath string
	channelListPath string
	outputDir       string

	committeeSize    int
	floodingFactor   int
	numRings         int
	diffEntranceExit bool

	genesisC2S string
	genesisS2S string
	dynamicC2S string
	dynamicS2S string

	directBasePort   int
	checkFrequencyMs int
	maxSeenMessages  int
	maxStaleUUIDs    int
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run the config generator over a range config and write every output artifact",
	Example: `  configgen generate --range-config range.json --channels channels.json --output ./out`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&rangeConfigPath, "range-config", "", "path to the range config JSON file (required)")
	generateCmd.Flags().StringVar(&channelListPath, "channels", "", "path to the channel list JSON file (required)")
	generateCmd.Flags().StringVar(&outputDir, "output", "./configgen-out", "directory to write generated artifacts into")

	generateCmd.Flags().IntVar(&committeeSize, "committee-size", 0, "desired committee size (0 = max(1, log2(numServers)))")
	generateCmd.Flags().IntVar(&floodingFactor, "flooding-factor", 0, "committee flooding factor (0 uses the generator default)")
	generateCmd.Flags().IntVar(&numRings, "num-rings", 0, "rings to attempt per committee (0 uses the generator default)")
	generateCmd.Flags().BoolVar(&diffEntranceExit, "diff-entrance-exit", false, "assign clients a different entrance than exit committee")

	generateCmd.Flags().StringVar(&genesisC2S, "genesis-c2s-channels", "", "comma-separated channel gids allowed for genesis client-server links (empty = any)")
	generateCmd.Flags().StringVar(&genesisS2S, "genesis-s2s-channels", "", "comma-separated channel gids allowed for genesis server-server links (empty = any)")
	generateCmd.Flags().StringVar(&dynamicC2S, "dynamic-c2s-channels", "", "comma-separated channel gids allowed for dynamic client-server links (empty = any)")
	generateCmd.Flags().StringVar(&dynamicS2S, "dynamic-s2s-channels", "", "comma-separated channel gids allowed for dynamic server-server links (empty = any)")

	generateCmd.Flags().IntVar(&directBasePort, "direct-base-port", 0, "base port for genesis direct-channel addresses (0 uses the generator default)")
	generateCmd.Flags().IntVar(&checkFrequencyMs, "check-frequency-ms", 0, "poll interval baked into genesis indirect-channel addresses (0 uses the generator default)")
	generateCmd.Flags().IntVar(&maxSeenMessages, "max-seen-messages", 0, "client config maxSeenMessages (0 uses the generator default)")
	generateCmd.Flags().IntVar(&maxStaleUUIDs, "max-stale-uuids", 0, "server config maxStaleUuids (0 uses the generator default)")

	generateCmd.MarkFlagRequired("range-config")
	generateCmd.MarkFlagRequired("channels")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runGenerate(cmd *cobra.Command, args []string) error {
	rc, err := configgen.LoadRangeConfig(rangeConfigPath)
	if err != nil {
		return err
	}
	channels, err := loadChannelList(channelListPath)
	if err != nil {
		return err
	}

	opts := configgen.Options{
		DesiredCommitteeSize: committeeSize,
		FloodingFactor:       floodingFactor,
		NumRings:             numRings,
		DiffEntranceExit:     diffEntranceExit,
		Channels:             channels,
		GenesisC2S:           splitList(genesisC2S),
		GenesisS2S:           splitList(genesisS2S),
		DynamicC2S:           splitList(dynamicC2S),
		DynamicS2S:           splitList(dynamicS2S),
		DirectBasePort:       directBasePort,
		CheckFrequencyMs:     checkFrequencyMs,
		MaxSeenMessages:      maxSeenMessages,
		MaxStaleUUIDs:        maxStaleUUIDs,
	}

	result, err := configgen.NewGenerator(rc, opts).Generate()
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	return writeResult(outputDir, result)
}

func writeResult(dir string, result *configgen.Result) error {
	personasDir := filepath.Join(dir, "personas")
	configsDir := filepath.Join(dir, "configs")
	for _, d := range []string{dir, personasDir, configsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}

	if err := persona.SaveRacePersonas(personasDir, result.Personas); err != nil {
		return err
	}
	for raceUUID, key := range result.AESKeys {
		if err := persona.SaveAESKey(personasDir, raceUUID+".aes", key); err != nil {
			return err
		}
	}

	for name, cfg := range result.ServerConfig {
		path := filepath.Join(configsDir, name+".json")
		if err := raceconfig.SaveServerConfig(path, cfg); err != nil {
			return err
		}
	}
	for name, cfg := range result.ClientConfig {
		path := filepath.Join(configsDir, name+".json")
		if err := raceconfig.SaveClientConfig(path, cfg); err != nil {
			return err
		}
	}

	if err := raceconfig.SaveLinkProfiles(filepath.Join(dir, "link-profiles.json"), result.LinkProfiles); err != nil {
		return err
	}
	if err := raceconfig.SaveNetworkManagerRequest(filepath.Join(dir, "network-manager-request.json"), result.Request); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"serverConfigs": len(result.ServerConfig),
		"clientConfigs": len(result.ClientConfig),
		"personas":      len(result.Personas),
		"dir":           dir,
	}).Info("wrote generated config bundle")
	return nil
}
