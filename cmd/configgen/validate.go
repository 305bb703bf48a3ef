package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/racecore/overlay-nm/pkg/persona"
	"github.com/racecore/overlay-nm/pkg/raceconfig"
)

var validateOutputDir string

// validateCmd re-reads a directory generate already wrote and cross-checks
// it the way a network-manager plugin would at load time: every persona's
// AES key is 32 bytes, every node config parses, and every ExpectedLink
// resolves to a known persona.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a generated config bundle for internal consistency",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateOutputDir, "output", "./configgen-out", "directory a previous generate run wrote into")
}

func runValidate(cmd *cobra.Command, args []string) error {
	personasDir := filepath.Join(validateOutputDir, "personas")
	configsDir := filepath.Join(validateOutputDir, "configs")

	entries, err := loadPersonaEntries(personasDir)
	if err != nil {
		return fmt.Errorf("personas: %w", err)
	}
	log.Infof("personas: %d entries", len(entries))

	knownUUIDs := make(map[string]persona.FileEntry, len(entries))
	for _, e := range entries {
		knownUUIDs[e.RaceUUID] = e
		if e.AESKeyFile == "" {
			continue
		}
		key, err := os.ReadFile(filepath.Join(personasDir, e.AESKeyFile))
		if err != nil {
			return fmt.Errorf("persona %s: read aes key: %w", e.DisplayName, err)
		}
		if len(key) != 32 {
			return fmt.Errorf("persona %s: aes key %s is %d bytes, want 32", e.DisplayName, e.AESKeyFile, len(key))
		}
	}

	for _, e := range entries {
		path := filepath.Join(configsDir, e.DisplayName+".json")
		var links []raceconfig.ExpectedLink
		switch e.PersonaType {
		case persona.KindServer:
			cfg, err := raceconfig.LoadServerConfig(path)
			if err != nil {
				return fmt.Errorf("server config %s: %w", e.DisplayName, err)
			}
			links = cfg.ExpectedLinks
		case persona.KindClient, persona.KindRegistry:
			cfg, err := raceconfig.LoadClientConfig(path)
			if err != nil {
				return fmt.Errorf("client config %s: %w", e.DisplayName, err)
			}
			links = cfg.ExpectedLinks
		}
		for _, link := range links {
			if _, ok := knownUUIDs[link.Persona]; !ok {
				return fmt.Errorf("%s: expectedLinks references unknown persona %s", e.DisplayName, link.Persona)
			}
		}
	}
	log.Infof("configs: %d node configs cross-checked against personas", len(entries))

	profiles, err := raceconfig.LoadLinkProfiles(filepath.Join(validateOutputDir, "link-profiles.json"))
	if err != nil {
		return fmt.Errorf("link profiles: %w", err)
	}
	profileCount := 0
	for _, list := range profiles {
		profileCount += len(list)
	}
	log.Infof("link profiles: %d channels, %d genesis links", len(profiles), profileCount)

	req, err := raceconfig.LoadNetworkManagerRequest(filepath.Join(validateOutputDir, "network-manager-request.json"))
	if err != nil {
		return fmt.Errorf("network manager request: %w", err)
	}
	log.Infof("network manager request: %d requested links", len(req.Links))

	log.Info("bundle OK")
	return nil
}

func loadPersonaEntries(personasDir string) ([]persona.FileEntry, error) {
	raw, err := os.ReadFile(filepath.Join(personasDir, "race-personas.json"))
	if err != nil {
		return nil, err
	}
	var entries []persona.FileEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
